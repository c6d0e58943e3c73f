package enums

import "slices"

// PaymentType selects which settlement branch a paid intent runs.
type PaymentType string

const (
	PaymentTypeLPUnlock            PaymentType = "lp_unlock"
	PaymentTypeSubscription        PaymentType = "subscription"
	PaymentTypeMarketplaceOrder    PaymentType = "marketplace_order"
	PaymentTypeStorePlan           PaymentType = "store_plan"
	PaymentTypeProfessionalService PaymentType = "professional_service"
)

var validPaymentTypes = []PaymentType{
	PaymentTypeLPUnlock,
	PaymentTypeSubscription,
	PaymentTypeMarketplaceOrder,
	PaymentTypeStorePlan,
	PaymentTypeProfessionalService,
}

func (p PaymentType) String() string {
	return string(p)
}

func (p PaymentType) IsValid() bool {
	return slices.Contains(validPaymentTypes, p)
}

func ParsePaymentType(value string) (PaymentType, error) {
	return parseKnown(validPaymentTypes, value, "payment type")
}
