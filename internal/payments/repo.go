package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	"github.com/angelmondragon/paysettle-backend/pkg/pagination"
)

// Repository persists payment intents. Status only moves through
// TransitionFromPending, whose WHERE clause is the ordering guard for the row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.PaymentIntent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error
	TransitionFromPending(ctx context.Context, id uuid.UUID, status enums.PaymentStatus, updates map[string]any) (bool, error)
	List(ctx context.Context, params listIntentsParams) ([]models.PaymentIntent, *pagination.Cursor, error)
}

type listIntentsParams struct {
	UserID      uuid.UUID
	Status      *enums.PaymentStatus
	PaymentType *enums.PaymentType
	Limit       int
	Cursor      *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payment intent repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

// FindByIDForUpdate row-locks the intent on Postgres; sqlite serializes writers instead.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) TransitionFromPending(ctx context.Context, id uuid.UUID, status enums.PaymentStatus, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = status
	values["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND status = ?", id, enums.PaymentStatusPending).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, params listIntentsParams) ([]models.PaymentIntent, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.PaymentIntent{}).Where("user_id = ?", params.UserID)
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.PaymentType != nil {
		query = query.Where("payment_type = ?", *params.PaymentType)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			params.Cursor.CreatedAt, params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var intents []models.PaymentIntent
	if err := query.Order("created_at DESC, id DESC").Limit(normalized + 1).Find(&intents).Error; err != nil {
		return nil, nil, err
	}

	page, next := pagination.Trim(intents, normalized, func(pi models.PaymentIntent) pagination.Cursor {
		return pagination.Cursor{CreatedAt: pi.CreatedAt, ID: pi.ID}
	})
	return page, next, nil
}
