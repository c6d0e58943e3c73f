package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/paysettle-backend/pkg/enums"
)

// ProfessionalHire is an engagement between a client and a professional.
type ProfessionalHire struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ProfessionalID uuid.UUID               `gorm:"column:professional_id;type:uuid;not null"`
	ClientUserID   uuid.UUID               `gorm:"column:client_user_id;type:uuid;not null"`
	AgreedAmount   decimal.Decimal         `gorm:"column:agreed_amount;type:numeric(12,2);not null"`
	IsPaid         bool                    `gorm:"column:is_paid;not null;default:false"`
	PaymentStatus  enums.HirePaymentStatus `gorm:"column:payment_status;not null;default:'unpaid'"`
	PlatformFee    *decimal.Decimal        `gorm:"column:platform_fee;type:numeric(12,2)"`
	PaymentID      *uuid.UUID              `gorm:"column:payment_id;type:uuid"`
	PaidAt         *time.Time              `gorm:"column:paid_at"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
