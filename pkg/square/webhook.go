package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignatureHeader carries the HMAC Square attaches to every webhook delivery.
const SignatureHeader = "X-Square-Hmacsha256-Signature"

// Payment statuses reported in payment.updated notifications.
const (
	PaymentStatusApproved  = "APPROVED"
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusCanceled  = "CANCELED"
	PaymentStatusFailed    = "FAILED"
)

// WebhookEvent is the subset of a Square notification the payment flow reads.
type WebhookEvent struct {
	MerchantID string      `json:"merchant_id"`
	EventID    string      `json:"event_id"`
	Type       string      `json:"type"`
	CreatedAt  string      `json:"created_at"`
	Data       WebhookData `json:"data"`
}

type WebhookData struct {
	Type   string        `json:"type"`
	ID     string        `json:"id"`
	Object WebhookObject `json:"object"`
}

type WebhookObject struct {
	Payment *WebhookPayment `json:"payment"`
}

type WebhookPayment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ReferenceID string `json:"reference_id"`
	ReceiptURL  string `json:"receipt_url"`
	SourceType  string `json:"source_type"`
}

// VerifySignature checks header against base64(HMAC-SHA256(key, notificationURL+body)).
func VerifySignature(body []byte, notificationURL, signatureKey, header string) bool {
	header = strings.TrimSpace(header)
	if header == "" || signatureKey == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(body, notificationURL, signatureKey)), []byte(header))
}

// Sign produces the header value Square would send; used by tests and local tooling.
func Sign(body []byte, notificationURL, signatureKey string) string {
	mac := hmac.New(sha256.New, []byte(signatureKey))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
