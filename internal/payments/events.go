package payments

import (
	"context"
	"time"

	"github.com/angelmondragon/paysettle-backend/internal/realtime"
	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
	"github.com/angelmondragon/paysettle-backend/pkg/metrics"
	"github.com/angelmondragon/paysettle-backend/pkg/outbox"
	"github.com/angelmondragon/paysettle-backend/pkg/outbox/payloads"
)

// StatusEvent builds the outbox event for the intent's current status.
func StatusEvent(eventType enums.OutboxEventType, intent *models.PaymentIntent, source *enums.ConfirmationSource, at time.Time) outbox.Event {
	userID := intent.UserID
	actor := &outbox.Actor{UserID: &userID}
	if source != nil {
		actor.Source = source.String()
	}
	return outbox.Event{
		EventType:     eventType,
		AggregateType: enums.AggregatePaymentIntent,
		AggregateID:   intent.ID,
		Actor:         actor,
		OccurredAt:    at,
		Data: payloads.PaymentStatusEvent{
			PaymentID:             intent.ID,
			UserID:                intent.UserID,
			PaymentType:           intent.PaymentType,
			ReferenceID:           intent.ReferenceID,
			Provider:              intent.Provider,
			Amount:                intent.Amount,
			Status:                intent.Status,
			Source:                source,
			ExternalTransactionID: intent.ExternalTransactionID,
			PaidAt:                intent.PaidAt,
			OccurredAt:            at,
		},
	}
}

type statusPublisher interface {
	Publish(ctx context.Context, change realtime.StatusChange) error
}

// Notifier runs the after-commit side of a status change: the realtime
// broadcast and the transition counter. Failures are logged, never returned,
// because the change is already durable.
type Notifier struct {
	hub     statusPublisher
	metrics *metrics.PaymentMetrics
	logg    *logger.Logger
}

func NewNotifier(hub statusPublisher, m *metrics.PaymentMetrics, logg *logger.Logger) *Notifier {
	return &Notifier{hub: hub, metrics: m, logg: logg}
}

func (n *Notifier) StatusChanged(ctx context.Context, intent *models.PaymentIntent, source string) {
	if n == nil || intent == nil {
		return
	}
	n.metrics.IncTransition(intent.Status.String(), source)
	if n.hub == nil {
		return
	}
	err := n.hub.Publish(ctx, realtime.StatusChange{
		PaymentID:  intent.ID,
		Status:     intent.Status,
		Source:     source,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil && n.logg != nil {
		n.logg.Error(n.logg.WithPaymentID(ctx, intent.ID.String()), "realtime publish failed", err)
	}
}
