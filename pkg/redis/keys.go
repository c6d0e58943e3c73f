package redis

import "strings"

// Every key this service writes lives under one namespace so a shared Redis
// can be scanned or flushed per service.
const namespace = "ps"

const (
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
	lockPrefix        = "lock"
	channelPrefix     = "payments"
)

func (c *Client) IdempotencyKey(scope, id string) string {
	return key(idempotencyPrefix, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return key(rateLimitPrefix, scope)
}

func (c *Client) LockKey(name string) string {
	return key(lockPrefix, name)
}

// PaymentStatusChannel is the pub/sub channel carrying status changes for one payment.
func (c *Client) PaymentStatusChannel(paymentID string) string {
	return key(channelPrefix, "status", paymentID)
}

// key joins the non-blank parts under the namespace.
func key(parts ...string) string {
	var b strings.Builder
	b.WriteString(namespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
