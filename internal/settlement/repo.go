package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
)

// Repository holds the row-level updates settlement applies to domain aggregates.
// Every write is conditional so a replay touches nothing.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	UnlockLandingPage(ctx context.Context, professionalID, paymentID uuid.UUID, at time.Time) (int64, error)
	ApplySubscription(ctx context.Context, userID uuid.UUID, plan enums.SubscriptionPlan, expiresAt time.Time) (int64, error)
	ApplyStorePlan(ctx context.Context, storeID uuid.UUID, expiresAt time.Time) (int64, error)
	MarkOrderPaid(ctx context.Context, orderID, paymentID uuid.UUID, at time.Time) (int64, error)
	FindHire(ctx context.Context, hireID uuid.UUID) (*models.ProfessionalHire, error)
	MarkHirePaid(ctx context.Context, hireID, paymentID uuid.UUID, fee decimal.Decimal, at time.Time) (int64, error)
	CreditProfessional(ctx context.Context, professionalID uuid.UUID, net decimal.Decimal) (int64, error)
	EnsureChatRoom(ctx context.Context, room *models.ChatRoom) (bool, error)
	Exists(ctx context.Context, model any, id uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the settlement repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) UnlockLandingPage(ctx context.Context, professionalID, paymentID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Professional{}).
		Where("id = ? AND landing_page_unlocked = ?", professionalID, false).
		Updates(map[string]any{
			"landing_page_unlocked":    true,
			"landing_page_unlocked_at": at,
			"landing_page_payment_id":  paymentID,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ApplySubscription(ctx context.Context, userID uuid.UUID, plan enums.SubscriptionPlan, expiresAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"subscription_plan":       plan,
			"subscription_expires_at": expiresAt,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ApplyStorePlan(ctx context.Context, storeID uuid.UUID, expiresAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Store{}).
		Where("id = ?", storeID).
		Updates(map[string]any{
			"plan_tier":       enums.StorePlanTierPremium,
			"plan_expires_at": expiresAt,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) MarkOrderPaid(ctx context.Context, orderID, paymentID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.MarketplaceOrder{}).
		Where("id = ? AND status <> ?", orderID, enums.MarketplaceOrderStatusPaid).
		Updates(map[string]any{
			"status":     enums.MarketplaceOrderStatusPaid,
			"paid_at":    at,
			"payment_id": paymentID,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) FindHire(ctx context.Context, hireID uuid.UUID) (*models.ProfessionalHire, error) {
	var hire models.ProfessionalHire
	if err := r.db.WithContext(ctx).Where("id = ?", hireID).First(&hire).Error; err != nil {
		return nil, err
	}
	return &hire, nil
}

func (r *repository) MarkHirePaid(ctx context.Context, hireID, paymentID uuid.UUID, fee decimal.Decimal, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ProfessionalHire{}).
		Where("id = ? AND is_paid = ?", hireID, false).
		Updates(map[string]any{
			"is_paid":        true,
			"payment_status": enums.HirePaymentStatusPaid,
			"platform_fee":   fee,
			"payment_id":     paymentID,
			"paid_at":        at,
		})
	return res.RowsAffected, res.Error
}

// CreditProfessional increments the balance in SQL so concurrent credits never
// read-modify-write the same value.
func (r *repository) CreditProfessional(ctx context.Context, professionalID uuid.UUID, net decimal.Decimal) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Professional{}).
		Where("id = ?", professionalID).
		UpdateColumn("balance", gorm.Expr("balance + ?", net))
	return res.RowsAffected, res.Error
}

func (r *repository) EnsureChatRoom(ctx context.Context, room *models.ChatRoom) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "professional_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(room)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Exists(ctx context.Context, model any, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
