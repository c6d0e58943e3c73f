package enums

import "slices"

// PaymentEvent is a normalized gateway notification.
type PaymentEvent string

const (
	PaymentEventSucceeded PaymentEvent = "payment.succeeded"
	PaymentEventFailed    PaymentEvent = "payment.failed"
	PaymentEventRefunded  PaymentEvent = "payment.refunded"
)

var validPaymentEvents = []PaymentEvent{
	PaymentEventSucceeded,
	PaymentEventFailed,
	PaymentEventRefunded,
}

func (p PaymentEvent) String() string {
	return string(p)
}

func (p PaymentEvent) IsValid() bool {
	return slices.Contains(validPaymentEvents, p)
}

func ParsePaymentEvent(value string) (PaymentEvent, error) {
	return parseKnown(validPaymentEvents, value, "payment event")
}

// TargetStatus returns the status an event moves a pending intent to.
func (p PaymentEvent) TargetStatus() (PaymentStatus, bool) {
	switch p {
	case PaymentEventSucceeded:
		return PaymentStatusPaid, true
	case PaymentEventFailed:
		return PaymentStatusFailed, true
	case PaymentEventRefunded:
		return PaymentStatusRefunded, true
	default:
		return "", false
	}
}
