package settlement

import "github.com/shopspring/decimal"

// DefaultPlatformFeeRate is the share kept by the platform on professional services.
var DefaultPlatformFeeRate = decimal.RequireFromString("0.15")

// SplitFee divides agreed into the platform fee and the professional's net credit.
// The fee is rounded to cents and the net absorbs the remainder, so fee+net == agreed.
func SplitFee(agreed, rate decimal.Decimal) (fee, net decimal.Decimal) {
	fee = agreed.Mul(rate).Round(2)
	net = agreed.Sub(fee)
	return fee, net
}
