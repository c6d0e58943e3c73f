package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/paysettle-backend/pkg/enums"
)

// PaymentIntent is the source of truth for a payment request lifecycle.
type PaymentIntent struct {
	ID                    uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	UserID                uuid.UUID                 `gorm:"column:user_id;type:uuid;not null"`
	Amount                decimal.Decimal           `gorm:"column:amount;type:numeric(12,2);not null"`
	PaymentType           enums.PaymentType         `gorm:"column:payment_type;type:payment_type_enum;not null"`
	ReferenceID           *uuid.UUID                `gorm:"column:reference_id;type:uuid"`
	Provider              enums.PaymentProvider     `gorm:"column:provider;type:payment_provider_enum;not null"`
	GatewayDriver         *string                   `gorm:"column:gateway_driver"`
	Method                enums.PaymentMethod       `gorm:"column:payment_method;type:payment_method_enum;not null"`
	Status                enums.PaymentStatus       `gorm:"column:status;type:payment_status_enum;not null;default:'pending'"`
	Description           *string                   `gorm:"column:description"`
	DesiredPlan           *enums.SubscriptionPlan   `gorm:"column:desired_plan"`
	PayerEmail            string                    `gorm:"column:payer_email;not null"`
	PayerName             string                    `gorm:"column:payer_name;not null"`
	Payload               *string                   `gorm:"column:payload"`
	QRImage               *string                   `gorm:"column:qr_image"`
	PaymentURL            *string                   `gorm:"column:payment_url"`
	ExternalTransactionID *string                   `gorm:"column:external_transaction_id"`
	ReceiptURL            *string                   `gorm:"column:receipt_url"`
	CaptureMethod         *string                   `gorm:"column:capture_method"`
	ConfirmationSource    *enums.ConfirmationSource `gorm:"column:confirmation_source"`
	ExpiresAt             time.Time                 `gorm:"column:expires_at;not null"`
	PaidAt                *time.Time                `gorm:"column:paid_at"`
	CreatedAt             time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentIntent) TableName() string { return "payment_intents" }

func (p *PaymentIntent) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// IsExpiredAt reports whether a still pending intent is past its deadline.
func (p PaymentIntent) IsExpiredAt(now time.Time) bool {
	return p.Status == enums.PaymentStatusPending && now.After(p.ExpiresAt)
}
