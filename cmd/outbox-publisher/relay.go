package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/paysettle-backend/pkg/config"
	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
	"github.com/angelmondragon/paysettle-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/paysettle-backend/pkg/outbox/registry"
)

const (
	fallbackBatchSize   = 50
	fallbackPoll        = 500 * time.Millisecond
	fallbackMaxAttempts = 10
	publishTimeout      = 15 * time.Second
	idleBackoffCeiling  = 10 * time.Second
	jitterWindow        = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type pendingEvents interface {
	ClaimPendingTx(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID, publishedAt time.Time) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error
	MarkDeadLetteredTx(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.Resolved, error)
}

// sink publishes one message and blocks until the broker acknowledges it.
type sink interface {
	Send(ctx context.Context, msg *gcppubsub.Message) (string, error)
}

type sinkFactory func(topic string) sink

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLettered
)

// batchSummary is logged once per non-empty batch.
type batchSummary struct {
	published    int
	retried      int
	deadLettered int
}

func (b batchSummary) total() int { return b.published + b.retried + b.deadLettered }

type RelayParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         txRunner
	Topics     topicSource
	Events     pendingEvents
	DLQ        deadLetters
	Registry   eventResolver
	Sinks      sinkFactory
	Now        func() time.Time
	RandSource rand.Source
}

// Relay moves committed payment events from outbox_events onto Pub/Sub.
// Messages for one payment share an ordering key so subscribers observe
// transitions in commit order.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	topics      topicSource
	events      pendingEvents
	dlq         deadLetters
	registry    eventResolver
	sinks       sinkFactory
	now         func() time.Time
	jitter      *rand.Rand
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Config == nil:
		return nil, errors.New("config is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Topics == nil:
		return nil, errors.New("pubsub client is required")
	case p.Events == nil:
		return nil, errors.New("outbox repository is required")
	case p.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		topics:      p.Topics,
		events:      p.Events,
		dlq:         p.DLQ,
		registry:    p.Registry,
		sinks:       p.Sinks,
		now:         p.Now,
		batchSize:   positiveOr(p.Config.Outbox.BatchSize, fallbackBatchSize),
		maxAttempts: positiveOr(p.Config.Outbox.MaxAttempts, fallbackMaxAttempts),
		poll:        fallbackPoll,
	}
	if p.Config.Outbox.PollIntervalMS > 0 {
		r.poll = time.Duration(p.Config.Outbox.PollIntervalMS) * time.Millisecond
	}
	if r.sinks == nil {
		r.sinks = orderedTopicSinks(p.Topics)
	}
	if r.now == nil {
		r.now = time.Now
	}
	src := p.RandSource
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	r.jitter = rand.New(src)
	return r, nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// Run polls until ctx is cancelled. Empty batches back off exponentially up
// to idleBackoffCeiling, batch errors reuse the same curve.
func (r *Relay) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": r.db.Ping,
		"pubsub":   r.topics.Ping,
	} {
		if err := ping(ctx); err != nil {
			r.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	wait := r.poll
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "payment event relay stopping")
			return err
		}

		summary, err := r.relayBatch(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "payment event relay batch failed", err)
			wait = grow(wait, r.poll)
		case summary.total() > 0:
			wait = r.poll
			continue
		default:
			wait = grow(wait, r.poll)
		}

		if err := r.pause(ctx, wait); err != nil {
			return err
		}
	}
}

func grow(current, base time.Duration) time.Duration {
	if current < base {
		current = base
	}
	if next := current * 2; next < idleBackoffCeiling {
		return next
	}
	return idleBackoffCeiling
}

func (r *Relay) pause(ctx context.Context, d time.Duration) error {
	d += time.Duration(r.jitter.Int63n(int64(jitterWindow)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// relayBatch claims a batch inside one transaction so row locks are held
// until every claimed row has been marked.
func (r *Relay) relayBatch(ctx context.Context) (batchSummary, error) {
	var summary batchSummary
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		summary = batchSummary{}
		rows, err := r.events.ClaimPendingTx(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		for _, row := range rows {
			result, err := r.relayOne(ctx, tx, row)
			if err != nil {
				return err
			}
			switch result {
			case outcomePublished:
				summary.published++
			case outcomeRetry:
				summary.retried++
			case outcomeDeadLettered:
				summary.deadLettered++
			}
		}
		return nil
	})
	if err == nil && summary.total() > 0 {
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"published":     summary.published,
			"retried":       summary.retried,
			"dead_lettered": summary.deadLettered,
		}), "payment event batch relayed")
	}
	return summary, err
}

func (r *Relay) relayOne(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (outcome, error) {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"payment_id":    row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	}

	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return outcomeDeadLettered, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err, fields)
	}
	fields["topic"] = resolved.Route.Topic
	fields["event_id"] = resolved.Envelope.EventID.String()

	sendErr := r.send(ctx, row, resolved)
	if sendErr == nil {
		if err := r.events.MarkPublishedTx(tx, row.ID, r.now()); err != nil {
			return outcomePublished, fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.logg.Debug(r.logg.WithFields(ctx, fields), "payment event published")
		return outcomePublished, nil
	}

	if registry.IsPermanent(sendErr) {
		return outcomeDeadLettered, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, sendErr, fields)
	}
	if row.AttemptCount+1 >= r.maxAttempts {
		exhausted := fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, sendErr)
		return outcomeDeadLettered, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts, exhausted, fields)
	}

	fields["error"] = sendErr.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "payment event publish failed, will retry")
	if err := r.events.MarkFailedTx(tx, row.ID, sendErr); err != nil {
		return outcomeRetry, fmt.Errorf("mark failed %s: %w", row.ID, err)
	}
	return outcomeRetry, nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "payment event moved to dlq")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      r.now().UTC(),
	}
	if err := r.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := r.events.MarkDeadLetteredTx(tx, row.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark dead-lettered %s: %w", row.ID, err)
	}
	return nil
}

func (r *Relay) send(ctx context.Context, row models.OutboxEvent, resolved *registry.Resolved) error {
	topic := resolved.Route.Topic
	out := r.sinks(topic)
	if out == nil {
		return registry.Permanent(fmt.Errorf("no publisher for topic %s", topic))
	}

	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID.String(),
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"payment_id":     row.AggregateID.String(),
		"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	switch payload := resolved.Payload.(type) {
	case *payloads.PaymentStatusEvent:
		attrs["payment_status"] = string(payload.Status)
		attrs["payment_type"] = string(payload.PaymentType)
	case *payloads.SettlementAppliedEvent:
		attrs["payment_type"] = string(payload.PaymentType)
	}

	sendCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	_, err := out.Send(sendCtx, &gcppubsub.Message{
		Data:        row.Payload,
		Attributes:  attrs,
		OrderingKey: row.AggregateID.String(),
	})
	return err
}

// orderedTopicSinks caches one ordering-enabled publisher per topic.
func orderedTopicSinks(topics topicSource) sinkFactory {
	cache := map[string]sink{}
	return func(topic string) sink {
		if s, ok := cache[topic]; ok {
			return s
		}
		pub := topics.Publisher(topic)
		if pub == nil {
			return nil
		}
		pub.EnableMessageOrdering = true
		s := &pubsubSink{pub: pub}
		cache[topic] = s
		return s
	}
}

type pubsubSink struct {
	pub *gcppubsub.Publisher
}

func (s *pubsubSink) Send(ctx context.Context, msg *gcppubsub.Message) (string, error) {
	id, err := s.pub.Publish(ctx, msg).Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		// a failed ordered publish pauses the key until resumed
		s.pub.ResumePublish(msg.OrderingKey)
	}
	return id, err
}
