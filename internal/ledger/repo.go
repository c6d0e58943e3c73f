package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
)

// Repository is the append-only store behind settlement_ledger_events.
// Rows are never updated or deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, event *models.SettlementLedgerEvent) (bool, error)
	Exists(ctx context.Context, paymentID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
	ForPayment(ctx context.Context, paymentID uuid.UUID) ([]models.SettlementLedgerEvent, error)
}

var bookedOnce = clause.OnConflict{
	Columns:   []clause.Column{{Name: "payment_id"}, {Name: "type"}},
	DoNothing: true,
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &gormRepository{db: tx}
}

// Append books the event unless (payment_id, type) already exists and
// reports whether a row was written.
func (r *gormRepository) Append(ctx context.Context, event *models.SettlementLedgerEvent) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(bookedOnce).Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormRepository) Exists(ctx context.Context, paymentID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.SettlementLedgerEvent{}).
		Where("payment_id = ? AND type = ?", paymentID, eventType).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}

func (r *gormRepository) ForPayment(ctx context.Context, paymentID uuid.UUID) ([]models.SettlementLedgerEvent, error) {
	var events []models.SettlementLedgerEvent
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at, type").
		Find(&events).Error
	return events, err
}
