// Package watcher drives the client side reconciliation loop: it follows a
// single payment until it settles into a terminal status.
package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/paysettle-backend/internal/realtime"
	"github.com/angelmondragon/paysettle-backend/internal/reconciler"
	"github.com/angelmondragon/paysettle-backend/pkg/config"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultTimeout      = 15 * time.Minute
)

// StatusUpdate is emitted every time the observed status changes.
type StatusUpdate struct {
	PaymentID  uuid.UUID           `json:"payment_id"`
	Status     enums.PaymentStatus `json:"status"`
	Source     string              `json:"source"`
	ObservedAt time.Time           `json:"observed_at"`
}

type confirmer interface {
	Confirm(ctx context.Context, c reconciler.Confirmation) (*reconciler.Outcome, error)
}

type subscriber interface {
	Subscribe(ctx context.Context, paymentID uuid.UUID) (*realtime.Subscription, error)
}

// Watcher combines realtime notifications with periodic polls. Every signal
// is re-read through the reconciler so a notification never decides status
// on its own.
type Watcher struct {
	confirmer    confirmer
	hub          subscriber
	pollInterval time.Duration
	timeout      time.Duration
	logg         *logger.Logger
}

// New builds a watcher; hub may be nil, in which case only polling is used.
func New(confirmer confirmer, hub subscriber, cfg config.WatcherConfig, logg *logger.Logger) (*Watcher, error) {
	if confirmer == nil {
		return nil, errors.New("confirmer required")
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Watcher{
		confirmer:    confirmer,
		hub:          hub,
		pollInterval: interval,
		timeout:      timeout,
		logg:         logg,
	}, nil
}

// Watch emits the current status, then every change, until the payment is
// terminal, ctx is cancelled or the watch timeout elapses. It returns the last
// observed status. Timeout is not an error; cancellation returns ctx.Err().
func (w *Watcher) Watch(ctx context.Context, paymentID uuid.UUID, emit func(StatusUpdate) error) (enums.PaymentStatus, error) {
	if paymentID == uuid.Nil {
		return "", errors.New("payment id required")
	}
	if emit == nil {
		return "", errors.New("emit callback required")
	}
	if w.logg != nil {
		ctx = w.logg.WithPaymentID(ctx, paymentID.String())
	}

	last, err := w.check(ctx, paymentID, enums.ConfirmationSourcePoll)
	if err != nil {
		return "", err
	}
	if err := emit(w.update(paymentID, last, enums.ConfirmationSourcePoll)); err != nil {
		return last, err
	}
	if last.IsTerminal() {
		return last, nil
	}

	var notifications <-chan realtime.StatusChange
	if w.hub != nil {
		sub, err := w.hub.Subscribe(ctx, paymentID)
		if err != nil {
			if w.logg != nil {
				w.logg.Warn(ctx, "realtime subscribe failed, falling back to polling")
			}
		} else {
			defer sub.Close()
			notifications = sub.C
		}
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(w.timeout)
	defer deadline.Stop()

	for {
		source := enums.ConfirmationSourcePoll
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-deadline.C:
			if w.logg != nil {
				w.logg.Info(ctx, "watch timed out")
			}
			return last, nil
		case <-ticker.C:
		case _, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			source = enums.ConfirmationSourceRealtime
		}

		status, err := w.check(ctx, paymentID, source)
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			if w.logg != nil {
				w.logg.Error(ctx, "watch check failed", err)
			}
			continue
		}
		if status == last {
			continue
		}
		last = status
		if err := emit(w.update(paymentID, status, source)); err != nil {
			return last, err
		}
		if status.IsTerminal() {
			return last, nil
		}
	}
}

func (w *Watcher) check(ctx context.Context, paymentID uuid.UUID, source enums.ConfirmationSource) (enums.PaymentStatus, error) {
	outcome, err := w.confirmer.Confirm(ctx, reconciler.Confirmation{PaymentID: paymentID, Source: source})
	if err != nil {
		return "", err
	}
	return outcome.Status, nil
}

func (w *Watcher) update(paymentID uuid.UUID, status enums.PaymentStatus, source enums.ConfirmationSource) StatusUpdate {
	return StatusUpdate{
		PaymentID:  paymentID,
		Status:     status,
		Source:     source.String(),
		ObservedAt: time.Now().UTC(),
	}
}
