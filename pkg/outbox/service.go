package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
)

// Service queues events on the caller's transaction so they commit or roll
// back with the state change. Publishing is the relay's job.
type Service struct {
	repo  *Repository
	logg  *logger.Logger
	now   func() time.Time
	newID func() uuid.UUID
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now, newID: uuid.New}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, e Event) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	eventID := s.newID()
	payload, err := Seal(e, eventID, s.now().UTC())
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, models.OutboxEvent{
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       payload,
	}); err != nil {
		return err
	}

	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":     eventID.String(),
			"event_type":   e.EventType,
			"aggregate_id": e.AggregateID.String(),
		}), "outbox.queued")
	}
	return nil
}
