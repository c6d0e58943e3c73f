// Package realtime fans payment status changes out to interested watchers
// over Redis pub/sub, one channel per payment.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
	"github.com/angelmondragon/paysettle-backend/pkg/redis"
)

// Bus is the pub/sub surface of pkg/redis the hub relies on.
type Bus interface {
	Publish(ctx context.Context, channel string, message any) error
	Subscribe(ctx context.Context, channel string) (redis.Subscription, error)
	PaymentStatusChannel(paymentID string) string
}

// StatusChange is the message broadcast after a committed status change.
type StatusChange struct {
	PaymentID  uuid.UUID           `json:"payment_id"`
	Status     enums.PaymentStatus `json:"status"`
	Source     string              `json:"source,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// Hub publishes and subscribes to per-payment status channels.
type Hub struct {
	bus  Bus
	logg *logger.Logger
}

func NewHub(bus Bus, logg *logger.Logger) (*Hub, error) {
	if bus == nil {
		return nil, errors.New("realtime bus required")
	}
	return &Hub{bus: bus, logg: logg}, nil
}

// Publish broadcasts change on the payment's channel.
func (h *Hub) Publish(ctx context.Context, change StatusChange) error {
	if change.PaymentID == uuid.Nil {
		return errors.New("payment id required")
	}
	if change.OccurredAt.IsZero() {
		change.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal status change: %w", err)
	}
	if err := h.bus.Publish(ctx, h.bus.PaymentStatusChannel(change.PaymentID.String()), string(body)); err != nil {
		return fmt.Errorf("publish status change: %w", err)
	}
	return nil
}

// Subscription delivers decoded status changes for a single payment.
type Subscription struct {
	C <-chan StatusChange

	raw  redis.Subscription
	done chan struct{}
	once sync.Once
}

// Subscribe starts listening for changes to paymentID. Callers must Close the
// subscription; malformed messages are logged and skipped.
func (h *Hub) Subscribe(ctx context.Context, paymentID uuid.UUID) (*Subscription, error) {
	if paymentID == uuid.Nil {
		return nil, errors.New("payment id required")
	}
	raw, err := h.bus.Subscribe(ctx, h.bus.PaymentStatusChannel(paymentID.String()))
	if err != nil {
		return nil, err
	}

	out := make(chan StatusChange, 8)
	sub := &Subscription{C: out, raw: raw, done: make(chan struct{})}
	go func() {
		defer close(out)
		for {
			select {
			case <-sub.done:
				return
			case msg, ok := <-raw.Messages():
				if !ok {
					return
				}
				var change StatusChange
				if err := json.Unmarshal([]byte(msg), &change); err != nil {
					if h.logg != nil {
						h.logg.Warn(h.logg.WithPaymentID(ctx, paymentID.String()), "dropping malformed status change")
					}
					continue
				}
				if change.PaymentID != paymentID {
					continue
				}
				select {
				case out <- change:
				case <-sub.done:
					return
				}
			}
		}
	}()
	return sub, nil
}

// Close stops delivery and releases the underlying subscription.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.raw.Close()
	})
	return err
}
