// Package registry maps outbox event types to their topic and payload schema.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/paysettle-backend/pkg/config"
	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	"github.com/angelmondragon/paysettle-backend/pkg/outbox"
	"github.com/angelmondragon/paysettle-backend/pkg/outbox/payloads"
)

// Route is where one event type is published and how its data decodes.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

// Resolved is a row that passed validation, ready to publish.
type Resolved struct {
	Route    Route
	Envelope outbox.Envelope
	Payload  any
}

type Registry struct {
	routes map[enums.OutboxEventType]Route
}

func New(cfg config.PubSubConfig) (*Registry, error) {
	topic := strings.TrimSpace(cfg.PaymentsTopic)
	if topic == "" {
		return nil, errors.New("payments topic is required")
	}

	reg := &Registry{routes: map[enums.OutboxEventType]Route{}}
	for _, t := range []enums.OutboxEventType{
		enums.EventPaymentCreated,
		enums.EventPaymentSettled,
		enums.EventPaymentFailed,
		enums.EventPaymentRefunded,
		enums.EventPaymentCancelled,
		enums.EventPaymentExpired,
	} {
		reg.add(t, topic, decodeAs[payloads.PaymentStatusEvent])
	}
	reg.add(enums.EventSettlementApplied, topic, decodeAs[payloads.SettlementAppliedEvent])
	return reg, nil
}

// Every payment event is keyed by the intent it describes.
func (r *Registry) add(t enums.OutboxEventType, topic string, decode func(json.RawMessage) (any, error)) {
	r.routes[t] = Route{EventType: t, AggregateType: enums.AggregatePaymentIntent, Topic: topic, decode: decode}
}

// Resolve checks the row against its route and decodes the typed payload.
// Every failure is permanent: retrying the same bytes cannot succeed.
func (r *Registry) Resolve(row models.OutboxEvent) (*Resolved, error) {
	route, ok := r.routes[row.EventType]
	switch {
	case !ok:
		return nil, Permanent(fmt.Errorf("unsupported event type %s", row.EventType))
	case route.AggregateType != row.AggregateType:
		return nil, Permanent(fmt.Errorf("%s expects aggregate %s, row has %s", row.EventType, route.AggregateType, row.AggregateType))
	case row.AggregateID == uuid.Nil:
		return nil, Permanent(errors.New("missing aggregate_id"))
	}

	env, err := outbox.Open(row.Payload)
	if err != nil {
		return nil, Permanent(err)
	}
	payload, err := route.decode(env.Data)
	if err != nil {
		return nil, Permanent(fmt.Errorf("decode %s data: %w", row.EventType, err))
	}
	return &Resolved{Route: route, Envelope: env, Payload: payload}, nil
}

func decodeAs[T any](raw json.RawMessage) (any, error) {
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, err
	}
	return v, nil
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as one the relay must dead-letter rather than retry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
