package enums

import "slices"

// StorePlanTier is the store subscription tier.
type StorePlanTier string

const (
	StorePlanTierFree    StorePlanTier = "free"
	StorePlanTierPremium StorePlanTier = "premium"
)

var validStorePlanTiers = []StorePlanTier{
	StorePlanTierFree,
	StorePlanTierPremium,
}

func (s StorePlanTier) String() string {
	return string(s)
}

func (s StorePlanTier) IsValid() bool {
	return slices.Contains(validStorePlanTiers, s)
}

func ParseStorePlanTier(value string) (StorePlanTier, error) {
	return parseKnown(validStorePlanTiers, value, "store plan tier")
}
