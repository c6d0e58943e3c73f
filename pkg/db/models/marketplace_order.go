package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/paysettle-backend/pkg/enums"
)

type MarketplaceOrder struct {
	ID          uuid.UUID                    `gorm:"column:id;type:uuid;primaryKey"`
	BuyerUserID uuid.UUID                    `gorm:"column:buyer_user_id;type:uuid;not null"`
	StoreID     uuid.UUID                    `gorm:"column:store_id;type:uuid;not null"`
	Status      enums.MarketplaceOrderStatus `gorm:"column:status;not null;default:'created'"`
	TotalAmount decimal.Decimal              `gorm:"column:total_amount;type:numeric(12,2);not null"`
	PaymentID   *uuid.UUID                   `gorm:"column:payment_id;type:uuid"`
	PaidAt      *time.Time                   `gorm:"column:paid_at"`
	CreatedAt   time.Time                    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                    `gorm:"column:updated_at;autoUpdateTime"`
}
