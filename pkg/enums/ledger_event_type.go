package enums

import "slices"

// LedgerEventType classifies immutable settlement money events.
type LedgerEventType string

const (
	LedgerEventPaymentCaptured    LedgerEventType = "payment_captured"
	LedgerEventPlatformFee        LedgerEventType = "platform_fee"
	LedgerEventProfessionalCredit LedgerEventType = "professional_credit"
)

var validLedgerEventTypes = []LedgerEventType{
	LedgerEventPaymentCaptured,
	LedgerEventPlatformFee,
	LedgerEventProfessionalCredit,
}

func (l LedgerEventType) String() string {
	return string(l)
}

func (l LedgerEventType) IsValid() bool {
	return slices.Contains(validLedgerEventTypes, l)
}

func ParseLedgerEventType(value string) (LedgerEventType, error) {
	return parseKnown(validLedgerEventTypes, value, "ledger event type")
}
