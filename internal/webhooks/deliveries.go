package webhooks

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/paysettle-backend/internal/reconciler"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
	"github.com/angelmondragon/paysettle-backend/pkg/midtrans"
	"github.com/angelmondragon/paysettle-backend/pkg/square"
)

// Delivery is a verified webhook normalized across providers. Event is empty
// for notifications that carry no status change (pending, approved, unknown).
type Delivery struct {
	Provider  enums.WebhookProvider
	EventKey  string
	EventType string
	Event     enums.PaymentEvent
	PaymentID uuid.UUID
	Evidence  reconciler.Evidence
	Payload   []byte
}

// Actionable reports whether the delivery should reach the reconciler.
func (d Delivery) Actionable() bool {
	return d.Event != ""
}

// GenericNotification is the body of the provider-agnostic gateway webhook.
type GenericNotification struct {
	Event          string `json:"event"`
	OrderNSU       string `json:"order_nsu"`
	TransactionNSU string `json:"transaction_nsu"`
	ReceiptURL     string `json:"receipt_url,omitempty"`
	CaptureMethod  string `json:"capture_method,omitempty"`
}

// ParseGeneric decodes a generic webhook. order_nsu carries the payment id.
func ParseGeneric(body []byte) (Delivery, error) {
	var n GenericNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return Delivery{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	eventType := strings.TrimSpace(n.Event)
	if eventType == "" {
		return Delivery{}, pkgerrors.New(pkgerrors.CodeValidation, "event is required")
	}
	paymentID, err := parsePaymentID(n.OrderNSU, "order_nsu")
	if err != nil {
		return Delivery{}, err
	}

	d := Delivery{
		Provider:  enums.WebhookProviderGeneric,
		EventKey:  fmt.Sprintf("%s:%s:%s", paymentID, eventType, strings.TrimSpace(n.TransactionNSU)),
		EventType: eventType,
		PaymentID: paymentID,
		Evidence: reconciler.Evidence{
			ExternalTransactionID: strings.TrimSpace(n.TransactionNSU),
			ReceiptURL:            strings.TrimSpace(n.ReceiptURL),
			CaptureMethod:         strings.TrimSpace(n.CaptureMethod),
		},
		Payload: body,
	}
	if event, err := enums.ParsePaymentEvent(eventType); err == nil {
		d.Event = event
	}
	return d, nil
}

// ParseMidtrans decodes and verifies a Midtrans HTTP notification.
func ParseMidtrans(body []byte, serverKey string) (Delivery, error) {
	var n midtrans.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Delivery{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid midtrans notification")
	}
	if !n.VerifySignature(serverKey) {
		return Delivery{}, pkgerrors.New(pkgerrors.CodeSignature, "invalid midtrans signature")
	}
	paymentID, err := parsePaymentID(n.OrderID, "order_id")
	if err != nil {
		return Delivery{}, err
	}

	var amount *decimal.Decimal
	if raw := strings.TrimSpace(n.GrossAmount); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return Delivery{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid midtrans gross_amount")
		}
		amount = &v
	}

	d := Delivery{
		Provider:  enums.WebhookProviderMidtrans,
		EventKey:  n.DeliveryKey(),
		EventType: n.TransactionStatus,
		PaymentID: paymentID,
		Evidence: reconciler.Evidence{
			ExternalTransactionID: n.TransactionID,
			CaptureMethod:         n.PaymentType,
			Amount:                amount,
		},
		Payload: body,
	}
	if event, ok := n.Event(); ok {
		d.Event = event
	}
	return d, nil
}

// ParseSquare decodes a Square payment.updated notification. The signature
// is checked by the caller because it covers the notification URL too.
func ParseSquare(body []byte) (Delivery, error) {
	var evt square.WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return Delivery{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid square notification")
	}
	payment := evt.Data.Object.Payment
	if payment == nil {
		return Delivery{}, pkgerrors.New(pkgerrors.CodeValidation, "square payment object missing")
	}
	paymentID, err := parsePaymentID(payment.ReferenceID, "reference_id")
	if err != nil {
		return Delivery{}, err
	}

	key := strings.TrimSpace(evt.EventID)
	if key == "" {
		key = fmt.Sprintf("%s:%s", payment.ID, payment.Status)
	}
	d := Delivery{
		Provider:  enums.WebhookProviderSquare,
		EventKey:  key,
		EventType: fmt.Sprintf("%s:%s", evt.Type, payment.Status),
		PaymentID: paymentID,
		Evidence: reconciler.Evidence{
			ExternalTransactionID: payment.ID,
			ReceiptURL:            payment.ReceiptURL,
			CaptureMethod:         strings.ToLower(payment.SourceType),
		},
		Payload: body,
	}
	if evt.Type != "payment.updated" && evt.Type != "payment.created" {
		return d, nil
	}
	switch strings.ToUpper(payment.Status) {
	case square.PaymentStatusCompleted:
		d.Event = enums.PaymentEventSucceeded
	case square.PaymentStatusFailed, square.PaymentStatusCanceled:
		d.Event = enums.PaymentEventFailed
	}
	return d, nil
}

func parsePaymentID(raw, field string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, field+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found").
			WithDetails(map[string]any{field: raw})
	}
	return id, nil
}
