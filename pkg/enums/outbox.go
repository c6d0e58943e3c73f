package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregatePaymentIntent OutboxAggregateType = "payment_intent"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePaymentIntent,
}

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parseKnown(validAggregateTypes, value, "aggregate type")
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventPaymentCreated   OutboxEventType = "payment_created"
	EventPaymentSettled   OutboxEventType = "payment_settled"
	EventPaymentFailed    OutboxEventType = "payment_failed"
	EventPaymentRefunded  OutboxEventType = "payment_refunded"
	EventPaymentCancelled OutboxEventType = "payment_cancelled"
	EventPaymentExpired   OutboxEventType = "payment_expired"

	EventSettlementApplied OutboxEventType = "settlement_applied"
)

var validEventTypes = []OutboxEventType{
	EventPaymentCreated,
	EventPaymentSettled,
	EventPaymentFailed,
	EventPaymentRefunded,
	EventPaymentCancelled,
	EventPaymentExpired,
	EventSettlementApplied,
}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validEventTypes, e)
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parseKnown(validEventTypes, value, "event type")
}

// EventForStatus maps a terminal payment status onto its outbox event.
func EventForStatus(status PaymentStatus) (OutboxEventType, bool) {
	switch status {
	case PaymentStatusPaid:
		return EventPaymentSettled, true
	case PaymentStatusFailed:
		return EventPaymentFailed, true
	case PaymentStatusRefunded:
		return EventPaymentRefunded, true
	case PaymentStatusCancelled:
		return EventPaymentCancelled, true
	case PaymentStatusExpired:
		return EventPaymentExpired, true
	default:
		return "", false
	}
}

// OutboxDLQErrorReason records why the relay stopped retrying a row.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
