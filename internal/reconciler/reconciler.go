// Package reconciler is the single entry point for payment confirmations.
// Webhooks, client polls and realtime notifications all funnel through
// Confirm; only webhooks may move an intent out of pending.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/paysettle-backend/internal/payments"
	"github.com/angelmondragon/paysettle-backend/internal/settlement"
	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
	"github.com/angelmondragon/paysettle-backend/pkg/metrics"
	"github.com/angelmondragon/paysettle-backend/pkg/outbox"
	"github.com/angelmondragon/paysettle-backend/pkg/outbox/payloads"
)

// Confirmation is one signal about a payment's state.
type Confirmation struct {
	PaymentID uuid.UUID
	Source    enums.ConfirmationSource
	Event     enums.PaymentEvent
	Evidence  Evidence
}

// Evidence is what the gateway reported alongside the event.
type Evidence struct {
	ExternalTransactionID string
	ReceiptURL            string
	CaptureMethod         string
	// Amount is what the processor reports it collected, when it says.
	Amount *decimal.Decimal
}

// Outcome reports the intent state after the signal was handled.
type Outcome struct {
	PaymentID  uuid.UUID
	Previous   enums.PaymentStatus
	Status     enums.PaymentStatus
	Applied    bool
	Intent     *models.PaymentIntent
	Settlement *settlement.Result
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.Event) error
}

type settler interface {
	Settle(ctx context.Context, tx *gorm.DB, intent *models.PaymentIntent, settledAt time.Time) (*settlement.Result, error)
}

type expirer interface {
	ExpireIfDue(ctx context.Context, intent *models.PaymentIntent, source string) (*models.PaymentIntent, error)
}

// Params groups reconciler dependencies.
type Params struct {
	Repo     payments.Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Settler  settler
	Expirer  expirer
	Notifier *payments.Notifier
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
}

type Reconciler struct {
	repo     payments.Repository
	tx       txRunner
	outbox   outboxPublisher
	settler  settler
	expirer  expirer
	notifier *payments.Notifier
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func New(params Params) (*Reconciler, error) {
	if params.Repo == nil {
		return nil, errors.New("payments repository required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox publisher required")
	}
	if params.Settler == nil {
		return nil, errors.New("settlement engine required")
	}
	if params.Expirer == nil {
		return nil, errors.New("expirer required")
	}
	return &Reconciler{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		settler:  params.Settler,
		expirer:  params.Expirer,
		notifier: params.Notifier,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Confirm handles one signal. Duplicate, late and observational signals are
// not errors: they return Applied=false with the stored status.
func (r *Reconciler) Confirm(ctx context.Context, c Confirmation) (*Outcome, error) {
	if c.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	if !c.Source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown confirmation source %q", c.Source))
	}
	if r.logg != nil {
		ctx = r.logg.WithFields(r.logg.WithPaymentID(ctx, c.PaymentID.String()), map[string]any{
			"source": c.Source,
			"event":  c.Event,
		})
	}

	if !c.Source.Authoritative() {
		return r.observe(ctx, c)
	}
	target, ok := c.Event.TargetStatus()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment event %q", c.Event))
	}
	return r.apply(ctx, c, target)
}

// observe reads the stored status for poll and realtime sources, expiring an
// overdue pending intent on the way.
func (r *Reconciler) observe(ctx context.Context, c Confirmation) (*Outcome, error) {
	intent, err := r.load(ctx, r.repo, c.PaymentID, false)
	if err != nil {
		return nil, err
	}
	previous := intent.Status
	current, err := r.expirer.ExpireIfDue(ctx, intent, c.Source.String())
	if err != nil {
		return nil, err
	}
	r.metrics.IncNoop(c.Source.String())
	return &Outcome{
		PaymentID: current.ID,
		Previous:  previous,
		Status:    current.Status,
		Applied:   false,
		Intent:    current,
	}, nil
}

func (r *Reconciler) apply(ctx context.Context, c Confirmation, target enums.PaymentStatus) (*Outcome, error) {
	var (
		outcome *Outcome
		changed bool
		started = time.Now()
	)
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		intent, err := r.load(ctx, repo, c.PaymentID, true)
		if err != nil {
			return err
		}
		outcome = &Outcome{PaymentID: intent.ID, Previous: intent.Status, Status: intent.Status, Intent: intent}
		changed = false

		if intent.Status != enums.PaymentStatusPending {
			return nil
		}
		now := r.now()
		if intent.IsExpiredAt(now) {
			// late signal: the deadline wins and the signal is dropped
			changed, err = r.transition(ctx, tx, repo, outcome, enums.PaymentStatusExpired, nil, nil)
			return err
		}

		if target == enums.PaymentStatusPaid {
			if err := checkAmount(intent, c.Evidence.Amount); err != nil {
				return err
			}
		}

		source := c.Source
		updates := map[string]any{"confirmation_source": source}
		if v := c.Evidence.ExternalTransactionID; v != "" {
			updates["external_transaction_id"] = v
		}
		if v := c.Evidence.ReceiptURL; v != "" {
			updates["receipt_url"] = v
		}
		if v := c.Evidence.CaptureMethod; v != "" {
			updates["capture_method"] = v
		}
		if target == enums.PaymentStatusPaid {
			updates["paid_at"] = now
		}
		changed, err = r.transition(ctx, tx, repo, outcome, target, updates, &source)
		if err != nil {
			return err
		}
		outcome.Applied = changed
		if !changed || target != enums.PaymentStatusPaid {
			return nil
		}

		result, err := r.settler.Settle(ctx, tx, outcome.Intent, now)
		if err != nil {
			return err
		}
		outcome.Settlement = result
		return r.outbox.Emit(ctx, tx, settlementEvent(outcome.Intent, result, now))
	})
	if err != nil {
		if r.logg != nil {
			r.logg.Error(ctx, "confirmation failed", err)
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirm payment")
	}

	if changed {
		r.notifier.StatusChanged(ctx, outcome.Intent, c.Source.String())
	}
	if !outcome.Applied {
		r.metrics.IncNoop(c.Source.String())
		if r.logg != nil {
			r.logg.Info(ctx, fmt.Sprintf("confirmation ignored, payment is %s", outcome.Status))
		}
		return outcome, nil
	}

	if outcome.Settlement != nil {
		r.metrics.ObserveSettlement(outcome.Intent.PaymentType.String(), time.Since(started))
	}
	if r.logg != nil {
		r.logg.Info(ctx, fmt.Sprintf("payment %s", outcome.Status))
	}
	return outcome, nil
}

// transition runs the pending->status guard, reloads the row and queues the
// matching outbox event. It reports whether this call moved the row.
func (r *Reconciler) transition(ctx context.Context, tx *gorm.DB, repo payments.Repository, outcome *Outcome, status enums.PaymentStatus, updates map[string]any, source *enums.ConfirmationSource) (bool, error) {
	ok, err := repo.TransitionFromPending(ctx, outcome.PaymentID, status, updates)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transition payment intent")
	}
	current, err := repo.FindByID(ctx, outcome.PaymentID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payment intent")
	}
	outcome.Intent = current
	outcome.Status = current.Status
	if !ok {
		return false, nil
	}

	if eventType, known := enums.EventForStatus(status); known {
		if err := r.outbox.Emit(ctx, tx, payments.StatusEvent(eventType, current, source, r.now())); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue status event")
		}
	}
	return true, nil
}

func (r *Reconciler) load(ctx context.Context, repo payments.Repository, id uuid.UUID, forUpdate bool) (*models.PaymentIntent, error) {
	var (
		intent *models.PaymentIntent
		err    error
	)
	if forUpdate {
		intent, err = repo.FindByIDForUpdate(ctx, id)
	} else {
		intent, err = repo.FindByID(ctx, id)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment intent")
	}
	return intent, nil
}

func settlementEvent(intent *models.PaymentIntent, result *settlement.Result, at time.Time) outbox.Event {
	data := payloads.SettlementAppliedEvent{
		PaymentID:   intent.ID,
		PaymentType: intent.PaymentType,
		ReferenceID: intent.ReferenceID,
		UserID:      intent.UserID,
		SettledAt:   at,
	}
	if result != nil {
		data.ProfessionalID = result.ProfessionalID
		data.PlatformFee = result.PlatformFee
		data.NetCredit = result.NetCredit
		data.Plan = result.Plan
		data.PlanExpiresAt = result.PlanExpiresAt
	}
	userID := intent.UserID
	return outbox.Event{
		EventType:     enums.EventSettlementApplied,
		AggregateType: enums.AggregatePaymentIntent,
		AggregateID:   intent.ID,
		Actor:         &outbox.Actor{UserID: &userID, Source: enums.ConfirmationSourceWebhook.String()},
		Data:          data,
		OccurredAt:    at,
	}
}

// checkAmount refuses a signal whose reported amount differs from the
// intent's. The intent stays pending.
func checkAmount(intent *models.PaymentIntent, reported *decimal.Decimal) error {
	if reported == nil || reported.Equal(intent.Amount) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "reported amount does not match the payment").
		WithDetails(map[string]any{
			"payment_id":      intent.ID.String(),
			"intent_amount":   intent.Amount.StringFixed(2),
			"reported_amount": reported.StringFixed(2),
		})
}
