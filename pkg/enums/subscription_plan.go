package enums

import "slices"

// SubscriptionPlan is the user-level plan tier.
type SubscriptionPlan string

const (
	SubscriptionPlanBasic SubscriptionPlan = "BASIC"
	SubscriptionPlanPro   SubscriptionPlan = "PRO"
	SubscriptionPlanElite SubscriptionPlan = "ELITE"
)

var validSubscriptionPlans = []SubscriptionPlan{
	SubscriptionPlanBasic,
	SubscriptionPlanPro,
	SubscriptionPlanElite,
}

func (s SubscriptionPlan) String() string {
	return string(s)
}

func (s SubscriptionPlan) IsValid() bool {
	return slices.Contains(validSubscriptionPlans, s)
}

func ParseSubscriptionPlan(value string) (SubscriptionPlan, error) {
	return parseKnown(validSubscriptionPlans, value, "subscription plan")
}
