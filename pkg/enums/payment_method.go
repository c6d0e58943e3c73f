package enums

import "slices"

// PaymentMethod is the payer-facing instrument.
type PaymentMethod string

const (
	PaymentMethodPix  PaymentMethod = "pix"
	PaymentMethodCard PaymentMethod = "card"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodPix,
	PaymentMethodCard,
}

func (p PaymentMethod) String() string {
	return string(p)
}

func (p PaymentMethod) IsValid() bool {
	return slices.Contains(validPaymentMethods, p)
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parseKnown(validPaymentMethods, value, "payment method")
}
