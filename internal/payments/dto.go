package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
)

// CreatePaymentInput is the validated request to open a payment intent.
type CreatePaymentInput struct {
	UserID            uuid.UUID
	Amount            decimal.Decimal
	PaymentType       enums.PaymentType
	ReferenceID       *uuid.UUID
	Description       string
	DesiredPlan       *enums.SubscriptionPlan
	PaymentMethod     *enums.PaymentMethod
	PayerEmail        string
	PayerName         string
	RequestedProvider *enums.PaymentProvider
	CardSourceID      string
}

// CreatePaymentResult is the provider-independent answer to a create.
type CreatePaymentResult struct {
	PaymentID  uuid.UUID             `json:"payment_id"`
	Payload    string                `json:"payload"`
	QRImage    string                `json:"qr_image"`
	ExpiresAt  time.Time             `json:"expires_at"`
	PaymentURL string                `json:"payment_url,omitempty"`
	Provider   enums.PaymentProvider `json:"provider"`
	Status     enums.PaymentStatus   `json:"status"`
}

// StatusResult is the lightweight status read.
type StatusResult struct {
	PaymentID uuid.UUID           `json:"payment_id"`
	Status    enums.PaymentStatus `json:"status"`
}

// ListParams filters a user's intents.
type ListParams struct {
	UserID      uuid.UUID
	Status      *enums.PaymentStatus
	PaymentType *enums.PaymentType
	Limit       int
	Cursor      string
}

// ListResult is one page of intents plus the cursor for the next.
type ListResult struct {
	Items  []models.PaymentIntent
	Cursor string
}
