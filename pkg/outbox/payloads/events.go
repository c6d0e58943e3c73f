package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/paysettle-backend/pkg/enums"
)

// PaymentStatusEvent is published for every payment lifecycle change.
type PaymentStatusEvent struct {
	PaymentID             uuid.UUID                 `json:"payment_id"`
	UserID                uuid.UUID                 `json:"user_id"`
	PaymentType           enums.PaymentType         `json:"payment_type"`
	ReferenceID           *uuid.UUID                `json:"reference_id,omitempty"`
	Provider              enums.PaymentProvider     `json:"provider"`
	Amount                decimal.Decimal           `json:"amount"`
	Status                enums.PaymentStatus       `json:"status"`
	Source                *enums.ConfirmationSource `json:"source,omitempty"`
	ExternalTransactionID *string                   `json:"external_transaction_id,omitempty"`
	PaidAt                *time.Time                `json:"paid_at,omitempty"`
	OccurredAt            time.Time                 `json:"occurred_at"`
}

// SettlementAppliedEvent summarizes the domain effects of a paid intent.
type SettlementAppliedEvent struct {
	PaymentID      uuid.UUID         `json:"payment_id"`
	PaymentType    enums.PaymentType `json:"payment_type"`
	ReferenceID    *uuid.UUID        `json:"reference_id,omitempty"`
	UserID         uuid.UUID         `json:"user_id"`
	ProfessionalID *uuid.UUID        `json:"professional_id,omitempty"`
	PlatformFee    *decimal.Decimal  `json:"platform_fee,omitempty"`
	NetCredit      *decimal.Decimal  `json:"net_credit,omitempty"`
	Plan           string            `json:"plan,omitempty"`
	PlanExpiresAt  *time.Time        `json:"plan_expires_at,omitempty"`
	SettledAt      time.Time         `json:"settled_at"`
}
