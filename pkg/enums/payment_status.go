package enums

import "slices"

// PaymentStatus tracks the lifecycle of a payment intent. Pending is the
// only non-terminal value.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusExpired   PaymentStatus = "expired"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusExpired,
	PaymentStatusCancelled,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

func (p PaymentStatus) String() string {
	return string(p)
}

func (p PaymentStatus) IsValid() bool {
	return slices.Contains(validPaymentStatuses, p)
}

// IsTerminal reports whether no further transition is permitted.
func (p PaymentStatus) IsTerminal() bool {
	return p.IsValid() && p != PaymentStatusPending
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parseKnown(validPaymentStatuses, value, "payment status")
}
