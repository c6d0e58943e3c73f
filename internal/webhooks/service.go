// Package webhooks turns verified gateway notifications into reconciler
// confirmations, with a Redis guard per delivery and an audit row per event.
package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/paysettle-backend/internal/reconciler"
	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
	"github.com/angelmondragon/paysettle-backend/pkg/metrics"
	"github.com/angelmondragon/paysettle-backend/pkg/security"
)

type confirmer interface {
	Confirm(ctx context.Context, c reconciler.Confirmation) (*reconciler.Outcome, error)
}

type deliveryGuard interface {
	Claim(ctx context.Context, consumer, key string) (bool, error)
	Release(ctx context.Context, consumer, key string) error
}

type ServiceParams struct {
	Repo      Repository
	Guard     deliveryGuard
	Confirmer confirmer
	Metrics   *metrics.PaymentMetrics
	Logger    *logger.Logger
}

type Service struct {
	repo      Repository
	guard     deliveryGuard
	confirmer confirmer
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook repository required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	if params.Confirmer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "confirmer required")
	}
	return &Service{
		repo:      params.Repo,
		guard:     params.Guard,
		confirmer: params.Confirmer,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Result describes what happened to one delivery.
type Result struct {
	Duplicate bool
	Ignored   bool
	Outcome   *reconciler.Outcome
}

// Process handles a verified delivery. Replays of an event whose audit row is
// marked processed return Duplicate without touching the reconciler. Failures
// release the guard so the gateway retry is processed again.
func (s *Service) Process(ctx context.Context, d Delivery) (*Result, error) {
	if !d.Provider.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown webhook provider %q", d.Provider))
	}
	if d.EventKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event key required")
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(s.logg.WithPaymentID(ctx, d.PaymentID.String()), map[string]any{
			"webhook_provider": d.Provider,
			"event_key":        d.EventKey,
		})
	}

	paymentID := d.PaymentID
	row := &models.PaymentWebhookEvent{
		Provider:       d.Provider,
		EventKey:       d.EventKey,
		EventType:      d.EventType,
		PaymentID:      &paymentID,
		Payload:        jsonPayload(d.Payload),
		SignatureValid: true,
	}
	if _, err := s.repo.Record(ctx, row); err != nil {
		s.metrics.IncWebhook(d.Provider.String(), "error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record webhook event")
	}

	consumer := consumerName(d.Provider)
	claimed, err := s.guard.Claim(ctx, consumer, d.EventKey)
	if err != nil {
		s.metrics.IncWebhook(d.Provider.String(), "error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook idempotency")
	}
	if !claimed {
		settled, err := s.alreadyProcessed(ctx, d)
		if err != nil {
			s.metrics.IncWebhook(d.Provider.String(), "error")
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load webhook event")
		}
		if settled {
			s.metrics.IncWebhook(d.Provider.String(), "duplicate")
			if s.logg != nil {
				s.logg.Info(ctx, "duplicate webhook delivery skipped")
			}
			return &Result{Duplicate: true}, nil
		}
		// The claim outlived an attempt that never finished. Confirm is
		// idempotent, so the retry goes through.
		if s.logg != nil {
			s.logg.Warn(ctx, "webhook claim held for unprocessed delivery, retrying")
		}
	}

	if !d.Actionable() {
		s.markProcessed(ctx, d)
		s.metrics.IncWebhook(d.Provider.String(), "ignored")
		if s.logg != nil {
			s.logg.Info(ctx, fmt.Sprintf("webhook event %q ignored", d.EventType))
		}
		return &Result{Ignored: true}, nil
	}

	outcome, err := s.confirmer.Confirm(ctx, reconciler.Confirmation{
		PaymentID: d.PaymentID,
		Source:    enums.ConfirmationSourceWebhook,
		Event:     d.Event,
		Evidence:  d.Evidence,
	})
	if err != nil {
		// The sender may have hung up; cleanup must outlive its context.
		cleanupCtx := context.WithoutCancel(ctx)
		if delErr := s.guard.Release(cleanupCtx, consumer, d.EventKey); delErr != nil && s.logg != nil {
			s.logg.Error(ctx, "release webhook guard", delErr)
		}
		if markErr := s.repo.MarkFailed(cleanupCtx, d.Provider, d.EventKey, err.Error()); markErr != nil && s.logg != nil {
			s.logg.Error(ctx, "mark webhook failed", markErr)
		}
		s.metrics.IncWebhook(d.Provider.String(), "failed")
		return nil, err
	}

	s.markProcessed(ctx, d)
	label := "noop"
	if outcome.Applied {
		label = "applied"
	}
	s.metrics.IncWebhook(d.Provider.String(), label)
	return &Result{Outcome: outcome}, nil
}

// Reject keeps an audit row for a delivery whose signature did not verify.
func (s *Service) Reject(ctx context.Context, provider enums.WebhookProvider, payload []byte, reason string) {
	s.metrics.IncWebhook(provider.String(), "rejected")
	reasonCopy := reason
	row := &models.PaymentWebhookEvent{
		Provider:        provider,
		EventKey:        "rejected:" + security.Digest(payload),
		EventType:       "rejected",
		Payload:         jsonPayload(payload),
		SignatureValid:  false,
		ProcessingError: &reasonCopy,
	}
	if _, err := s.repo.Record(ctx, row); err != nil && s.logg != nil {
		s.logg.Error(ctx, "record rejected webhook", err)
	}
}

// alreadyProcessed reports whether the audit row for d was marked processed.
func (s *Service) alreadyProcessed(ctx context.Context, d Delivery) (bool, error) {
	row, err := s.repo.Find(ctx, d.Provider, d.EventKey)
	if err != nil {
		return false, err
	}
	return row.ProcessedAt != nil, nil
}

func (s *Service) markProcessed(ctx context.Context, d Delivery) {
	if err := s.repo.MarkProcessed(context.WithoutCancel(ctx), d.Provider, d.EventKey, s.now()); err != nil && s.logg != nil {
		s.logg.Error(ctx, "mark webhook processed", err)
	}
}

func consumerName(provider enums.WebhookProvider) string {
	return "webhook-" + provider.String()
}

// jsonPayload returns body as-is when it is JSON, otherwise a JSON string so
// the jsonb column always accepts it.
func jsonPayload(body []byte) json.RawMessage {
	if len(body) > 0 && json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return json.RawMessage(`""`)
	}
	return json.RawMessage(quoted)
}
