package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
	"github.com/angelmondragon/paysettle-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.Event) error
}

// Expirer flips overdue pending intents to expired on read. There is no
// background sweep; every reader that sees an overdue row repairs it.
type Expirer struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	notifier *Notifier
	now      func() time.Time
}

func NewExpirer(repo Repository, tx txRunner, outbox outboxPublisher, notifier *Notifier) *Expirer {
	return &Expirer{
		repo:     repo,
		tx:       tx,
		outbox:   outbox,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ExpireIfDue returns intent unchanged unless it is pending and past its
// deadline, in which case it attempts the pending→expired transition and
// returns the row as it stands afterwards.
func (e *Expirer) ExpireIfDue(ctx context.Context, intent *models.PaymentIntent, source string) (*models.PaymentIntent, error) {
	if intent == nil || !intent.IsExpiredAt(e.now()) {
		return intent, nil
	}

	var (
		current *models.PaymentIntent
		applied bool
	)
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		ok, err := repo.TransitionFromPending(ctx, intent.ID, enums.PaymentStatusExpired, nil)
		if err != nil {
			return err
		}
		current, err = repo.FindByID(ctx, intent.ID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		applied = true
		return e.outbox.Emit(ctx, tx, StatusEvent(enums.EventPaymentExpired, current, nil, e.now()))
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "expire payment intent")
	}
	if applied {
		e.notifier.StatusChanged(ctx, current, source)
	}
	return current, nil
}

func findIntent(ctx context.Context, repo Repository, id uuid.UUID) (*models.PaymentIntent, error) {
	intent, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment intent")
	}
	return intent, nil
}
