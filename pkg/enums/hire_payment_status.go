package enums

import "slices"

// HirePaymentStatus mirrors whether a professional hire has been paid.
type HirePaymentStatus string

const (
	HirePaymentStatusUnpaid HirePaymentStatus = "unpaid"
	HirePaymentStatusPaid   HirePaymentStatus = "paid"
)

var validHirePaymentStatuss = []HirePaymentStatus{
	HirePaymentStatusUnpaid,
	HirePaymentStatusPaid,
}

func (h HirePaymentStatus) String() string {
	return string(h)
}

func (h HirePaymentStatus) IsValid() bool {
	return slices.Contains(validHirePaymentStatuss, h)
}

func ParseHirePaymentStatus(value string) (HirePaymentStatus, error) {
	return parseKnown(validHirePaymentStatuss, value, "hire payment status")
}
