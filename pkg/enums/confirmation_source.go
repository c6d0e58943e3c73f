package enums

import "slices"

// ConfirmationSource names the channel a confirmation signal arrived on.
type ConfirmationSource string

const (
	ConfirmationSourceWebhook  ConfirmationSource = "webhook"
	ConfirmationSourcePoll     ConfirmationSource = "poll"
	ConfirmationSourceRealtime ConfirmationSource = "realtime"
)

var validConfirmationSources = []ConfirmationSource{
	ConfirmationSourceWebhook,
	ConfirmationSourcePoll,
	ConfirmationSourceRealtime,
}

func (c ConfirmationSource) String() string {
	return string(c)
}

func (c ConfirmationSource) IsValid() bool {
	return slices.Contains(validConfirmationSources, c)
}

func ParseConfirmationSource(value string) (ConfirmationSource, error) {
	return parseKnown(validConfirmationSources, value, "confirmation source")
}

// Authoritative reports whether the source may move an intent out of pending.
// Poll and realtime signals only observe state written by an authoritative source.
func (c ConfirmationSource) Authoritative() bool {
	return c == ConfirmationSourceWebhook
}
