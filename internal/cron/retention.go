package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/paysettle-backend/pkg/logger"
)

const (
	defaultOutboxRetention       = 30 * 24 * time.Hour
	defaultWebhookEventRetention = 90 * 24 * time.Hour
	outboxMinAttempts            = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type webhookEventPruner interface {
	DeleteBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type pruneFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

// retentionJob deletes rows older than now-retention in one transaction.
type retentionJob struct {
	name      string
	logg      *logger.Logger
	db        txRunner
	prune     pruneFunc
	retention time.Duration
	now       func() time.Time
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.prune(ctx, tx, cutoff)
		deleted = rows
		return err
	})
	if err != nil {
		return fmt.Errorf("prune before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "retention cleanup complete")
	return nil
}

type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Repository  outboxPruner
	Retention   time.Duration
	MinAttempts int
}

// NewOutboxRetentionJob prunes published outbox rows, plus unpublished rows
// that already exhausted MinAttempts and were copied to the DLQ.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	minAttempts := params.MinAttempts
	if minAttempts <= 0 {
		minAttempts = outboxMinAttempts
	}
	prune := func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
		return params.Repository.DeletePublishedBefore(ctx, tx, cutoff, minAttempts)
	}
	return newRetentionJob("outbox-retention", params.Logger, params.DB, prune, params.Retention, defaultOutboxRetention)
}

type WebhookEventRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository webhookEventPruner
	Retention  time.Duration
}

// NewWebhookEventRetentionJob prunes the webhook audit log.
func NewWebhookEventRetentionJob(params WebhookEventRetentionJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("webhook event repository required")
	}
	return newRetentionJob("webhook-event-retention", params.Logger, params.DB, params.Repository.DeleteBefore, params.Retention, defaultWebhookEventRetention)
}

func newRetentionJob(name string, logg *logger.Logger, db txRunner, prune pruneFunc, retention, fallback time.Duration) (*retentionJob, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if db == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if retention <= 0 {
		retention = fallback
	}
	return &retentionJob{
		name:      name,
		logg:      logg,
		db:        db,
		prune:     prune,
		retention: retention,
		now:       time.Now,
	}, nil
}
