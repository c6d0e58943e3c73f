// Package payments exposes the consumer-facing payment intent endpoints.
package payments

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/paysettle-backend/api/middleware"
	"github.com/angelmondragon/paysettle-backend/api/responses"
	"github.com/angelmondragon/paysettle-backend/api/validators"
	internalpayments "github.com/angelmondragon/paysettle-backend/internal/payments"
	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
	"github.com/angelmondragon/paysettle-backend/pkg/pagination"
)

const (
	maxDescriptionLength = 140
	maxPayerNameLength   = 120
)

type createPaymentRequest struct {
	Amount        decimal.Decimal `json:"amount" validate:"money"`
	PaymentType   string          `json:"payment_type" validate:"required,oneof=lp_unlock subscription marketplace_order store_plan professional_service"`
	ReferenceID   *uuid.UUID      `json:"reference_id,omitempty"`
	Description   string          `json:"description,omitempty" validate:"max=500"`
	DesiredPlan   *string         `json:"desired_plan,omitempty"`
	PaymentMethod *string         `json:"payment_method,omitempty" validate:"omitempty,oneof=pix card"`
	PayerEmail    string          `json:"payer_email" validate:"required,email"`
	PayerName     string          `json:"payer_name" validate:"required,max=200"`
	Provider      *string         `json:"provider,omitempty" validate:"omitempty,oneof=manual gateway"`
	CardSourceID  string          `json:"card_source_id,omitempty"`
}

func (req createPaymentRequest) toInput(userID uuid.UUID) internalpayments.CreatePaymentInput {
	input := internalpayments.CreatePaymentInput{
		UserID:       userID,
		Amount:       req.Amount,
		PaymentType:  enums.PaymentType(req.PaymentType),
		ReferenceID:  req.ReferenceID,
		Description:  validators.Clip(req.Description, maxDescriptionLength),
		PayerEmail:   strings.ToLower(strings.TrimSpace(req.PayerEmail)),
		PayerName:    validators.Clip(req.PayerName, maxPayerNameLength),
		CardSourceID: strings.TrimSpace(req.CardSourceID),
	}
	if req.DesiredPlan != nil {
		plan := enums.SubscriptionPlan(strings.ToUpper(strings.TrimSpace(*req.DesiredPlan)))
		input.DesiredPlan = &plan
	}
	if req.PaymentMethod != nil {
		method := enums.PaymentMethod(*req.PaymentMethod)
		input.PaymentMethod = &method
	}
	if req.Provider != nil {
		provider := enums.PaymentProvider(*req.Provider)
		input.RequestedProvider = &provider
	}
	return input
}

type paymentResponse struct {
	ID                    uuid.UUID                 `json:"id"`
	Amount                decimal.Decimal           `json:"amount"`
	PaymentType           enums.PaymentType         `json:"payment_type"`
	ReferenceID           *uuid.UUID                `json:"reference_id,omitempty"`
	Provider              enums.PaymentProvider     `json:"provider"`
	PaymentMethod         enums.PaymentMethod       `json:"payment_method"`
	Status                enums.PaymentStatus       `json:"status"`
	Description           *string                   `json:"description,omitempty"`
	DesiredPlan           *enums.SubscriptionPlan   `json:"desired_plan,omitempty"`
	Payload               *string                   `json:"payload,omitempty"`
	QRImage               *string                   `json:"qr_image,omitempty"`
	PaymentURL            *string                   `json:"payment_url,omitempty"`
	ExternalTransactionID *string                   `json:"external_transaction_id,omitempty"`
	ReceiptURL            *string                   `json:"receipt_url,omitempty"`
	ConfirmationSource    *enums.ConfirmationSource `json:"confirmation_source,omitempty"`
	ExpiresAt             time.Time                 `json:"expires_at"`
	PaidAt                *time.Time                `json:"paid_at,omitempty"`
	CreatedAt             time.Time                 `json:"created_at"`
	UpdatedAt             time.Time                 `json:"updated_at"`
}

func newPaymentResponse(intent *models.PaymentIntent) paymentResponse {
	return paymentResponse{
		ID:                    intent.ID,
		Amount:                intent.Amount,
		PaymentType:           intent.PaymentType,
		ReferenceID:           intent.ReferenceID,
		Provider:              intent.Provider,
		PaymentMethod:         intent.Method,
		Status:                intent.Status,
		Description:           intent.Description,
		DesiredPlan:           intent.DesiredPlan,
		Payload:               intent.Payload,
		QRImage:               intent.QRImage,
		PaymentURL:            intent.PaymentURL,
		ExternalTransactionID: intent.ExternalTransactionID,
		ReceiptURL:            intent.ReceiptURL,
		ConfirmationSource:    intent.ConfirmationSource,
		ExpiresAt:             intent.ExpiresAt,
		PaidAt:                intent.PaidAt,
		CreatedAt:             intent.CreatedAt,
		UpdatedAt:             intent.UpdatedAt,
	}
}

type listPaymentsResponse struct {
	Items      []paymentResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// CreatePayment opens a payment intent for the authenticated user.
func CreatePayment(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), payload.toInput(userID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ListPayments returns the caller's intents, newest first.
func ListPayments(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryLimit(r, "limit", pagination.DefaultLimit, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := validators.ParseQueryEnum(r, "status", func(v string) bool { return enums.PaymentStatus(v).IsValid() })
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentType, err := validators.ParseQueryEnum(r, "payment_type", func(v string) bool { return enums.PaymentType(v).IsValid() })
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := internalpayments.ListParams{
			UserID: userID,
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		if status != "" {
			value := enums.PaymentStatus(status)
			params.Status = &value
		}
		if paymentType != "" {
			value := enums.PaymentType(paymentType)
			params.PaymentType = &value
		}

		page, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := listPaymentsResponse{Items: make([]paymentResponse, 0, len(page.Items)), NextCursor: page.Cursor}
		for i := range page.Items {
			resp.Items = append(resp.Items, newPaymentResponse(&page.Items[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}

// GetPayment returns the full intent view.
func GetPayment(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, paymentID, err := ownedPaymentFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		intent, err := svc.Get(r.Context(), userID, paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentResponse(intent))
	}
}

// GetPaymentStatus is the polling endpoint; an overdue pending intent is
// expired before it is reported.
func GetPaymentStatus(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, paymentID, err := ownedPaymentFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := svc.GetStatus(r.Context(), userID, paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

// CancelPayment withdraws a pending intent.
func CancelPayment(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, paymentID, err := ownedPaymentFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		intent, err := svc.Cancel(r.Context(), userID, paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentResponse(intent))
	}
}

func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return userID, nil
}

func ownedPaymentFromRequest(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	paymentID, err := validators.ParseUUIDParam(r, "paymentId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return userID, paymentID, nil
}

