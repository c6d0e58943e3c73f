package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/paysettle-backend/pkg/enums"
)

// EnvelopeVersion is bumped when the envelope layout changes incompatibly.
const EnvelopeVersion = 1

var errEmptyData = errors.New("envelope has no data")

// Event is a domain fact queued alongside the state change that produced it.
type Event struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *Actor
	Data          any
	OccurredAt    time.Time
}

// Actor names who caused the event: a payer, or a system source such as a
// webhook or the expiry check.
type Actor struct {
	UserID *uuid.UUID `json:"user_id,omitempty"`
	Source string     `json:"source,omitempty"`
}

// Envelope is the JSON stored in outbox_events.payload and published as the
// message body.
type Envelope struct {
	Version    int             `json:"v"`
	EventID    uuid.UUID       `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Actor      *Actor          `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Seal serializes e into its envelope.
func Seal(e Event, id uuid.UUID, now time.Time) ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", e.EventType, err)
	}
	at := e.OccurredAt
	if at.IsZero() {
		at = now
	}
	return json.Marshal(Envelope{
		Version:    EnvelopeVersion,
		EventID:    id,
		OccurredAt: at.UTC(),
		Actor:      e.Actor,
		Data:       data,
	})
}

// Open parses a stored envelope and rejects versions this build cannot read.
func Open(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version < 1 || env.Version > EnvelopeVersion {
		return Envelope{}, fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	if d := bytes.TrimSpace(env.Data); len(d) == 0 || bytes.Equal(d, []byte("null")) {
		return Envelope{}, errEmptyData
	}
	return env, nil
}
