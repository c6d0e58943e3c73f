package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.now = func() time.Time { return time.Unix(1700000000, 0) }

	m.Observe("outbox-retention", 250*time.Millisecond, nil)
	m.Observe("outbox-retention", time.Second, errors.New("boom"))
	m.Observe("", time.Millisecond, nil)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "paysettle_cron_job_runs_total", "job", "outbox-retention", "outcome", "ok"); err != nil || got != 1 {
		t.Fatalf("expected one ok run, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "paysettle_cron_job_runs_total", "job", "outbox-retention", "outcome", "failed"); err != nil || got != 1 {
		t.Fatalf("expected one failed run, got %f (%v)", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "paysettle_cron_job_duration_seconds", "job", "outbox-retention"); err != nil || got != 1.25 {
		t.Fatalf("expected duration sum 1.25, got %f (%v)", got, err)
	}
	if got, err := fetchGaugeValue(mfs, "paysettle_cron_job_last_success_timestamp_seconds", "job", "unknown"); err != nil || got != 1700000000 {
		t.Fatalf("expected last success stamped for unnamed job, got %f (%v)", got, err)
	}
}

func TestNilCronJobMetricsIsNoop(t *testing.T) {
	var m *CronJobMetrics
	m.Observe("job", time.Second, nil)
	NewCronJobMetrics(nil).Observe("job", time.Second, errors.New("x"))
}

func findMetric(mfs []*dto.MetricFamily, name string, labels []string) (*dto.Metric, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return nil, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric, nil
		}
	}
	return nil, fmt.Errorf("metric %q has no series %v", name, labels)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels ...string) (float64, error) {
	metric, err := findMetric(mfs, name, labels)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func fetchGaugeValue(mfs []*dto.MetricFamily, name string, labels ...string) (float64, error) {
	metric, err := findMetric(mfs, name, labels)
	if err != nil {
		return 0, err
	}
	return metric.GetGauge().GetValue(), nil
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name string, labels ...string) (float64, error) {
	metric, err := findMetric(mfs, name, labels)
	if err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleSum(), nil
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// matchesLabels reports whether every name/value pair is present.
func matchesLabels(have []*dto.LabelPair, want []string) bool {
	for i := 0; i+1 < len(want); i += 2 {
		found := false
		for _, label := range have {
			if label.GetName() == want[i] && label.GetValue() == want[i+1] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestPaymentMetricsRecordsTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)
	m.IncCreated("lp_unlock", "manual")
	m.IncTransition("paid", "webhook")
	m.IncTransition("paid", "webhook")
	m.IncNoop("")
	m.ObserveSettlement("lp_unlock", 20*time.Millisecond)
	m.IncWebhook("midtrans", "processed")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "paysettle_payment_status_transitions_total", "status", "paid"); err != nil || got != 2 {
		t.Fatalf("expected 2 paid transitions, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "paysettle_payment_confirmations_noop_total", "source", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected empty source normalized to unknown, got %f (%v)", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "paysettle_settlement_duration_seconds", "payment_type", "lp_unlock"); err != nil || got <= 0 {
		t.Fatalf("expected settlement duration recorded, got %f (%v)", got, err)
	}
}

func TestNilPaymentMetricsIsNoop(t *testing.T) {
	var m *PaymentMetrics
	m.IncCreated("a", "b")
	m.IncTransition("a", "b")
	m.IncNoop("a")
	m.ObserveSettlement("a", time.Second)
	m.IncWebhook("a", "b")
	NewPaymentMetrics(nil).IncCreated("a", "b")
}
