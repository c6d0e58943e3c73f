package webhooks

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
)

// Repository persists the webhook audit log.
type Repository interface {
	Record(ctx context.Context, event *models.PaymentWebhookEvent) (bool, error)
	Find(ctx context.Context, provider enums.WebhookProvider, eventKey string) (*models.PaymentWebhookEvent, error)
	MarkProcessed(ctx context.Context, provider enums.WebhookProvider, eventKey string, at time.Time) error
	MarkFailed(ctx context.Context, provider enums.WebhookProvider, eventKey, reason string) error
	DeleteBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Record stores the delivery once per (provider, event_key). Redeliveries keep
// the original row; the boolean reports whether a row was written.
func (r *repository) Record(ctx context.Context, event *models.PaymentWebhookEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "event_key"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Find(ctx context.Context, provider enums.WebhookProvider, eventKey string) (*models.PaymentWebhookEvent, error) {
	var event models.PaymentWebhookEvent
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND event_key = ?", provider, eventKey).
		First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) MarkProcessed(ctx context.Context, provider enums.WebhookProvider, eventKey string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentWebhookEvent{}).
		Where("provider = ? AND event_key = ?", provider, eventKey).
		Updates(map[string]any{
			"processed_at":     at,
			"processing_error": nil,
		}).Error
}

func (r *repository) MarkFailed(ctx context.Context, provider enums.WebhookProvider, eventKey, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentWebhookEvent{}).
		Where("provider = ? AND event_key = ?", provider, eventKey).
		Update("processing_error", truncateReason(reason)).Error
}

// DeleteBefore prunes audit rows created before cutoff.
func (r *repository) DeleteBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.PaymentWebhookEvent{})
	return res.RowsAffected, res.Error
}

const maxReasonLength = 1024

func truncateReason(reason string) string {
	if len(reason) <= maxReasonLength {
		return reason
	}
	return reason[:maxReasonLength]
}
