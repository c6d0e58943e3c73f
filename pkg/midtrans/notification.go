package midtrans

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/angelmondragon/paysettle-backend/pkg/enums"
)

// Notification is the HTTP notification Midtrans posts after a status change.
type Notification struct {
	TransactionTime   string `json:"transaction_time"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
	SettlementTime    string `json:"settlement_time"`
}

// Signature computes SHA512(order_id + status_code + gross_amount + server_key) as lowercase hex.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature reports whether n was signed with serverKey.
func (n Notification) VerifySignature(serverKey string) bool {
	want := strings.ToLower(strings.TrimSpace(n.SignatureKey))
	if want == "" || serverKey == "" {
		return false
	}
	got := Signature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// Event maps the transaction/fraud status pair onto a payment event.
// Pending, challenged captures and unknown statuses return false.
func (n Notification) Event() (enums.PaymentEvent, bool) {
	switch strings.ToLower(n.TransactionStatus) {
	case "settlement":
		return enums.PaymentEventSucceeded, true
	case "capture":
		if strings.EqualFold(n.FraudStatus, "accept") || n.FraudStatus == "" {
			return enums.PaymentEventSucceeded, true
		}
		return "", false
	case "deny", "cancel", "expire", "failure":
		return enums.PaymentEventFailed, true
	case "refund", "partial_refund":
		return enums.PaymentEventRefunded, true
	default:
		return "", false
	}
}

// DeliveryKey identifies one status notification for replay detection.
func (n Notification) DeliveryKey() string {
	return n.OrderID + ":" + strings.ToLower(n.TransactionStatus) + ":" + n.StatusCode
}
