package enums

import "slices"

// PaymentProvider identifies who issued the payment payload.
type PaymentProvider string

const (
	PaymentProviderManual  PaymentProvider = "manual"
	PaymentProviderGateway PaymentProvider = "gateway"
)

var validPaymentProviders = []PaymentProvider{
	PaymentProviderManual,
	PaymentProviderGateway,
}

func (p PaymentProvider) String() string {
	return string(p)
}

func (p PaymentProvider) IsValid() bool {
	return slices.Contains(validPaymentProviders, p)
}

func ParsePaymentProvider(value string) (PaymentProvider, error) {
	return parseKnown(validPaymentProviders, value, "payment provider")
}
