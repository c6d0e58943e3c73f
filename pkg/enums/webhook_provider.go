package enums

import "slices"

// WebhookProvider names the origin of an inbound webhook.
type WebhookProvider string

const (
	WebhookProviderGeneric  WebhookProvider = "generic"
	WebhookProviderMidtrans WebhookProvider = "midtrans"
	WebhookProviderSquare   WebhookProvider = "square"
)

var validWebhookProviders = []WebhookProvider{
	WebhookProviderGeneric,
	WebhookProviderMidtrans,
	WebhookProviderSquare,
}

func (w WebhookProvider) String() string {
	return string(w)
}

func (w WebhookProvider) IsValid() bool {
	return slices.Contains(validWebhookProviders, w)
}

func ParseWebhookProvider(value string) (WebhookProvider, error) {
	return parseKnown(validWebhookProviders, value, "webhook provider")
}
