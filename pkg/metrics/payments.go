package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics tracks intent creation, status transitions and settlement latency.
type PaymentMetrics struct {
	created     *prometheus.CounterVec
	transitions *prometheus.CounterVec
	noops       *prometheus.CounterVec
	settlement  *prometheus.HistogramVec
	webhooks    *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	m := &PaymentMetrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intents_created_total",
			Help:      "Payment intents created, by type and provider.",
		}, []string{"payment_type", "provider"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_status_transitions_total",
			Help:      "Status transitions applied to payment intents.",
		}, []string{"status", "source"}),
		noops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_confirmations_noop_total",
			Help:      "Confirmation signals that found the intent already settled or terminal.",
		}, []string{"source"}),
		settlement: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_seconds",
			Help:      "Time spent applying settlement effects inside the paid transaction.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"payment_type"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Inbound webhook deliveries by provider and outcome.",
		}, []string{"provider", "outcome"}),
	}
	reg.MustRegister(m.created, m.transitions, m.noops, m.settlement, m.webhooks)
	return m
}

func (m *PaymentMetrics) IncCreated(paymentType, provider string) {
	if m == nil || m.created == nil {
		return
	}
	m.created.WithLabelValues(normalizeLabel(paymentType), normalizeLabel(provider)).Inc()
}

func (m *PaymentMetrics) IncTransition(status, source string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status), normalizeLabel(source)).Inc()
}

func (m *PaymentMetrics) IncNoop(source string) {
	if m == nil || m.noops == nil {
		return
	}
	m.noops.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *PaymentMetrics) ObserveSettlement(paymentType string, duration time.Duration) {
	if m == nil || m.settlement == nil {
		return
	}
	m.settlement.WithLabelValues(normalizeLabel(paymentType)).Observe(duration.Seconds())
}

func (m *PaymentMetrics) IncWebhook(provider, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}
