package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/paysettle-backend/pkg/config"
	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
	"github.com/angelmondragon/paysettle-backend/pkg/outbox"
	"github.com/angelmondragon/paysettle-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/paysettle-backend/pkg/outbox/registry"
)

const testTopic = "payments-topic"

func TestRelayPublishesWithOrderingKeyAndAttributes(t *testing.T) {
	row := statusRow(t, enums.EventPaymentSettled, enums.PaymentStatusPaid, 0)
	events := &fakeEvents{rows: []models.OutboxEvent{row}}
	out := &fakeSink{}
	relay := newTestRelay(t, events, &fakeDLQ{}, out, 3)

	summary, err := relay.relayBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.published)
	require.Equal(t, []uuid.UUID{row.ID}, events.published)

	require.Len(t, out.sent, 1)
	msg := out.sent[0]
	require.Equal(t, row.AggregateID.String(), msg.OrderingKey)
	require.Equal(t, "paid", msg.Attributes["payment_status"])
	require.Equal(t, "lp_unlock", msg.Attributes["payment_type"])
	require.Equal(t, string(enums.EventPaymentSettled), msg.Attributes["event_type"])
	require.JSONEq(t, string(row.Payload), string(msg.Data))
}

func TestRelayRetriesTransientFailuresAndContinues(t *testing.T) {
	first := statusRow(t, enums.EventPaymentCreated, enums.PaymentStatusPending, 0)
	second := statusRow(t, enums.EventPaymentFailed, enums.PaymentStatusFailed, 0)
	events := &fakeEvents{rows: []models.OutboxEvent{first, second}}
	out := &fakeSink{errs: []error{errors.New("unavailable"), nil}}
	relay := newTestRelay(t, events, &fakeDLQ{}, out, 3)

	summary, err := relay.relayBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, batchSummary{published: 1, retried: 1}, summary)
	require.Equal(t, []uuid.UUID{first.ID}, events.failed)
	require.Equal(t, []uuid.UUID{second.ID}, events.published)
}

func TestRelayDeadLettersUnknownEventTypes(t *testing.T) {
	row := statusRow(t, enums.EventPaymentCreated, enums.PaymentStatusPending, 0)
	row.EventType = enums.OutboxEventType("payment_teleported")
	events := &fakeEvents{rows: []models.OutboxEvent{row}}
	dlq := &fakeDLQ{}
	out := &fakeSink{}
	relay := newTestRelay(t, events, dlq, out, 3)

	summary, err := relay.relayBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.deadLettered)
	require.Empty(t, out.sent)
	require.Len(t, dlq.entries, 1)
	require.Equal(t, enums.OutboxDLQReasonNonRetryable, dlq.entries[0].ErrorReason)
	require.Equal(t, row.ID, dlq.entries[0].EventID)
	require.Equal(t, []uuid.UUID{row.ID}, events.deadLettered)
}

func TestRelayDeadLettersAfterLastAttempt(t *testing.T) {
	row := statusRow(t, enums.EventPaymentRefunded, enums.PaymentStatusRefunded, 2)
	events := &fakeEvents{rows: []models.OutboxEvent{row}}
	dlq := &fakeDLQ{}
	out := &fakeSink{errs: []error{errors.New("deadline exceeded")}}
	relay := newTestRelay(t, events, dlq, out, 3)

	summary, err := relay.relayBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.deadLettered)
	require.Empty(t, events.failed)
	require.Len(t, dlq.entries, 1)
	require.Equal(t, enums.OutboxDLQReasonMaxAttempts, dlq.entries[0].ErrorReason)
	require.Contains(t, *dlq.entries[0].ErrorMessage, "gave up after 3 attempts")
}

func TestRelayMissingPublisherIsPermanent(t *testing.T) {
	row := statusRow(t, enums.EventPaymentCancelled, enums.PaymentStatusCancelled, 0)
	events := &fakeEvents{rows: []models.OutboxEvent{row}}
	dlq := &fakeDLQ{}
	relay := newTestRelay(t, events, dlq, nil, 3)

	summary, err := relay.relayBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.deadLettered)
	require.Equal(t, enums.OutboxDLQReasonNonRetryable, dlq.entries[0].ErrorReason)
}

func TestRelayClaimErrorAbortsBatch(t *testing.T) {
	events := &fakeEvents{claimErr: errors.New("connection reset")}
	relay := newTestRelay(t, events, &fakeDLQ{}, &fakeSink{}, 3)

	_, err := relay.relayBatch(context.Background())
	require.ErrorContains(t, err, "claim outbox rows")
}

func TestRelayRunStopsOnCancel(t *testing.T) {
	relay := newTestRelay(t, &fakeEvents{}, &fakeDLQ{}, &fakeSink{}, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, relay.Run(ctx), context.Canceled)
}

func TestRelayRunFailsWhenPubSubUnreachable(t *testing.T) {
	relay := newTestRelay(t, &fakeEvents{}, &fakeDLQ{}, &fakeSink{}, 3)
	relay.topics = fakeTopics{pingErr: errors.New("permission denied")}

	err := relay.Run(context.Background())
	require.ErrorContains(t, err, "pubsub ping failed")
}

func TestGrowCapsAtCeiling(t *testing.T) {
	base := 500 * time.Millisecond
	require.Equal(t, time.Second, grow(base, base))
	require.Equal(t, idleBackoffCeiling, grow(8*time.Second, base))
	require.Equal(t, time.Second, grow(0, base))
}

func newTestRelay(t *testing.T, events *fakeEvents, dlq *fakeDLQ, out *fakeSink, maxAttempts int) *Relay {
	t.Helper()
	reg, err := registry.New(config.PubSubConfig{PaymentsTopic: testTopic})
	require.NoError(t, err)

	sinks := func(topic string) sink {
		if out == nil || topic != testTopic {
			return nil
		}
		return out
	}
	relay, err := NewRelay(RelayParams{
		Config:     &config.Config{Outbox: config.OutboxConfig{BatchSize: 10, MaxAttempts: maxAttempts, PollIntervalMS: 10}},
		Logger:     logger.New(logger.Options{ServiceName: "relay-test", Output: io.Discard}),
		DB:         fakeDB{},
		Topics:     fakeTopics{},
		Events:     events,
		DLQ:        dlq,
		Registry:   reg,
		Sinks:      sinks,
		Now:        func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		RandSource: rand.NewSource(1),
	})
	require.NoError(t, err)
	return relay
}

func statusRow(t *testing.T, eventType enums.OutboxEventType, status enums.PaymentStatus, attempts int) models.OutboxEvent {
	t.Helper()
	paymentID := uuid.New()
	data, err := json.Marshal(payloads.PaymentStatusEvent{
		PaymentID:   paymentID,
		UserID:      uuid.New(),
		PaymentType: enums.PaymentTypeLPUnlock,
		Provider:    enums.PaymentProviderGateway,
		Amount:      decimal.RequireFromString("19.90"),
		Status:      status,
		OccurredAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	envelope, err := outbox.Seal(outbox.Event{EventType: eventType, Data: json.RawMessage(data)}, uuid.New(), time.Now())
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregatePaymentIntent,
		AggregateID:   paymentID,
		Payload:       envelope,
		AttemptCount:  attempts,
	}
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakeTopics struct {
	pingErr error
}

func (f fakeTopics) Ping(context.Context) error { return f.pingErr }

func (fakeTopics) Publisher(string) *gcppubsub.Publisher { return nil }

type fakeEvents struct {
	rows         []models.OutboxEvent
	claimErr     error
	published    []uuid.UUID
	failed       []uuid.UUID
	deadLettered []uuid.UUID
}

func (f *fakeEvents) ClaimPendingTx(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.rows, f.claimErr
}

func (f *fakeEvents) MarkPublishedTx(_ *gorm.DB, id uuid.UUID, _ time.Time) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeEvents) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeEvents) MarkDeadLetteredTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.deadLettered = append(f.deadLettered, id)
	return nil
}

type fakeDLQ struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeSink struct {
	errs []error
	sent []*gcppubsub.Message
}

func (f *fakeSink) Send(_ context.Context, msg *gcppubsub.Message) (string, error) {
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	if err != nil {
		return "", err
	}
	f.sent = append(f.sent, msg)
	return "msg-" + msg.OrderingKey, nil
}
