package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Professional is a service provider with a landing page and a payout balance.
type Professional struct {
	ID                    uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID                uuid.UUID       `gorm:"column:user_id;type:uuid;not null"`
	DisplayName           string          `gorm:"column:display_name;not null"`
	LandingPageUnlocked   bool            `gorm:"column:landing_page_unlocked;not null;default:false"`
	LandingPageUnlockedAt *time.Time      `gorm:"column:landing_page_unlocked_at"`
	LandingPagePaymentID  *uuid.UUID      `gorm:"column:landing_page_payment_id;type:uuid"`
	Balance               decimal.Decimal `gorm:"column:balance;type:numeric(12,2);not null;default:0"`
	CreatedAt             time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
