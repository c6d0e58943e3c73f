package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// WebhookSignatureHeader carries the hex HMAC on generic gateway webhooks.
const WebhookSignatureHeader = "X-Webhook-Signature"

// SignHex returns hex(HMAC-SHA256(secret, body)).
func SignHex(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHex compares header against the expected signature in constant time.
// An empty secret never verifies.
func VerifyHex(body []byte, secret, header string) bool {
	header = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), "sha256=")))
	if header == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(SignHex(body, secret)), []byte(header))
}

// Digest is the hex SHA-256 of body, used to key deliveries that carry no id
// of their own.
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
