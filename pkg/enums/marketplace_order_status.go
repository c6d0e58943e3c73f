package enums

import "slices"

// MarketplaceOrderStatus tracks a marketplace order through payment.
type MarketplaceOrderStatus string

const (
	MarketplaceOrderStatusCreated        MarketplaceOrderStatus = "created"
	MarketplaceOrderStatusPendingPayment MarketplaceOrderStatus = "pending_payment"
	MarketplaceOrderStatusPaid           MarketplaceOrderStatus = "paid"
	MarketplaceOrderStatusCancelled      MarketplaceOrderStatus = "cancelled"
)

var validMarketplaceOrderStatuss = []MarketplaceOrderStatus{
	MarketplaceOrderStatusCreated,
	MarketplaceOrderStatusPendingPayment,
	MarketplaceOrderStatusPaid,
	MarketplaceOrderStatusCancelled,
}

func (m MarketplaceOrderStatus) String() string {
	return string(m)
}

func (m MarketplaceOrderStatus) IsValid() bool {
	return slices.Contains(validMarketplaceOrderStatuss, m)
}

func ParseMarketplaceOrderStatus(value string) (MarketplaceOrderStatus, error) {
	return parseKnown(validMarketplaceOrderStatuss, value, "marketplace order status")
}
