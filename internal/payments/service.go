// Package payments creates payment intents and serves their lifecycle reads.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/paysettle-backend/pkg/config"
	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
	"github.com/angelmondragon/paysettle-backend/pkg/metrics"
	"github.com/angelmondragon/paysettle-backend/pkg/pagination"
)

// Service is the consumer-facing payment surface.
type Service interface {
	Create(ctx context.Context, input CreatePaymentInput) (*CreatePaymentResult, error)
	Get(ctx context.Context, userID, paymentID uuid.UUID) (*models.PaymentIntent, error)
	GetStatus(ctx context.Context, userID, paymentID uuid.UUID) (*StatusResult, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Cancel(ctx context.Context, userID, paymentID uuid.UUID) (*models.PaymentIntent, error)
}

// ServiceParams groups dependencies for the payments service.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Gateway  GatewayClient
	Notifier *Notifier
	Metrics  *metrics.PaymentMetrics
	Config   config.PaymentsConfig
	Timeout  time.Duration
	Logger   *logger.Logger
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	notifier  *Notifier
	metrics   *metrics.PaymentMetrics
	expirer   *Expirer
	providers map[enums.PaymentProvider]providerStrategy
	cfg       config.PaymentsConfig
	gateway   GatewayClient
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the payments service. A nil Gateway leaves gateway-routed
// payment types failing with DEPENDENCY_ERROR.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("payments repository required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox publisher required")
	}
	if strings.TrimSpace(params.Config.ReceiverKey) == "" {
		return nil, errors.New("payments receiver key required")
	}
	cfg := params.Config
	if cfg.ExpiryWindow <= 0 {
		cfg.ExpiryWindow = 24 * time.Hour
	}

	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		metrics:  params.Metrics,
		expirer:  NewExpirer(params.Repo, params.Tx, params.Outbox, params.Notifier),
		providers: map[enums.PaymentProvider]providerStrategy{
			enums.PaymentProviderManual:  newManualProvider(params.Repo, cfg, params.Logger),
			enums.PaymentProviderGateway: newGatewayProvider(params.Repo, params.Gateway, cfg, params.Timeout),
		},
		cfg:     cfg,
		gateway: params.Gateway,
		logg:    params.Logger,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, input CreatePaymentInput) (*CreatePaymentResult, error) {
	provider, method, err := s.validateCreate(input)
	if err != nil {
		return nil, err
	}

	now := s.now()
	intent := &models.PaymentIntent{
		ID:          uuid.New(),
		UserID:      input.UserID,
		Amount:      input.Amount,
		PaymentType: input.PaymentType,
		ReferenceID: input.ReferenceID,
		Provider:    provider,
		Method:      method,
		Status:      enums.PaymentStatusPending,
		Description: optionalString(input.Description),
		DesiredPlan: input.DesiredPlan,
		PayerEmail:  strings.TrimSpace(input.PayerEmail),
		PayerName:   strings.TrimSpace(input.PayerName),
		ExpiresAt:   now.Add(s.cfg.ExpiryWindow),
	}

	strategy := s.providers[provider]
	result, err := strategy.Create(ctx, intent, input)
	if err != nil {
		s.logError(ctx, intent.ID, "payment create failed", err)
		return nil, err
	}
	if err := s.emitCreated(ctx, intent); err != nil {
		s.logError(ctx, intent.ID, "payment_created outbox emit failed", err)
	}

	s.metrics.IncCreated(intent.PaymentType.String(), provider.String())
	s.notifier.StatusChanged(ctx, intent, "create")
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithPaymentID(ctx, intent.ID.String()), map[string]any{
			"payment_type": intent.PaymentType,
			"provider":     provider,
			"user_id":      intent.UserID.String(),
		})
		s.logg.Info(logCtx, "payment intent created")
	}
	return normalizeResult(result), nil
}

// emitCreated queues payment_created after the provider has persisted the row.
func (s *service) emitCreated(ctx context.Context, intent *models.PaymentIntent) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, StatusEvent(enums.EventPaymentCreated, intent, nil, s.now()))
	})
}

func (s *service) validateCreate(input CreatePaymentInput) (enums.PaymentProvider, enums.PaymentMethod, error) {
	if input.UserID == uuid.Nil {
		return "", "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.PaymentType.IsValid() {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment type %q", input.PaymentType))
	}
	if !input.Amount.IsPositive() {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Amount.Equal(input.Amount.Round(2)) {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "amount supports at most two decimal places")
	}
	if strings.TrimSpace(input.PayerEmail) == "" || strings.TrimSpace(input.PayerName) == "" {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "payer name and email are required")
	}

	if input.PaymentType == enums.PaymentTypeSubscription {
		if input.ReferenceID != nil {
			return "", "", pkgerrors.New(pkgerrors.CodeValidation, "subscription payments must not carry a reference_id")
		}
	} else if input.ReferenceID == nil || *input.ReferenceID == uuid.Nil {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reference_id is required for %s payments", input.PaymentType))
	}
	if input.DesiredPlan != nil {
		if input.PaymentType != enums.PaymentTypeSubscription {
			return "", "", pkgerrors.New(pkgerrors.CodeValidation, "desired_plan only applies to subscription payments")
		}
		if !input.DesiredPlan.IsValid() {
			return "", "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported plan %q", *input.DesiredPlan))
		}
	}

	provider, ok := ProviderFor(input.PaymentType)
	if !ok {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no provider routed for %s", input.PaymentType))
	}
	if input.RequestedProvider != nil && *input.RequestedProvider != provider {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("%s payments are served by the %s provider, not %s", input.PaymentType, provider, *input.RequestedProvider))
	}

	method := enums.PaymentMethodPix
	if provider == enums.PaymentProviderGateway {
		method = enums.PaymentMethodCard
	}
	if input.PaymentMethod != nil {
		if !input.PaymentMethod.IsValid() {
			return "", "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", *input.PaymentMethod))
		}
		if provider == enums.PaymentProviderManual && *input.PaymentMethod != enums.PaymentMethodPix {
			return "", "", pkgerrors.New(pkgerrors.CodeValidation, "manual payments only accept pix")
		}
		method = *input.PaymentMethod
	}
	if provider == enums.PaymentProviderGateway && s.gateway != nil && s.gateway.Driver() == config.GatewayDriverSquare &&
		strings.TrimSpace(input.CardSourceID) == "" {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "card_source_id is required for card payments")
	}
	if checker, ok := s.gateway.(amountChecker); ok && provider == enums.PaymentProviderGateway {
		if err := checker.CheckAmount(input.Amount); err != nil {
			return "", "", err
		}
	}
	return provider, method, nil
}

func (s *service) Get(ctx context.Context, userID, paymentID uuid.UUID) (*models.PaymentIntent, error) {
	intent, err := s.loadOwned(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}
	return s.expirer.ExpireIfDue(ctx, intent, "read")
}

// GetStatus is the lazy expiry point: an overdue pending intent is expired
// before its status is returned.
func (s *service) GetStatus(ctx context.Context, userID, paymentID uuid.UUID) (*StatusResult, error) {
	intent, err := s.Get(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}
	return &StatusResult{PaymentID: intent.ID, Status: intent.Status}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported status filter %q", *params.Status))
	}
	if params.PaymentType != nil && !params.PaymentType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment_type filter %q", *params.PaymentType))
	}

	query := listIntentsParams{
		UserID:      params.UserID,
		Status:      params.Status,
		PaymentType: params.PaymentType,
		Limit:       params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

// Cancel moves a pending intent to cancelled. An intent that already left
// pending, or is overdue, answers STATE_CONFLICT.
func (s *service) Cancel(ctx context.Context, userID, paymentID uuid.UUID) (*models.PaymentIntent, error) {
	intent, err := s.loadOwned(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}
	intent, err = s.expirer.ExpireIfDue(ctx, intent, "cancel")
	if err != nil {
		return nil, err
	}
	if intent.Status != enums.PaymentStatusPending {
		return nil, stateConflict(intent.Status)
	}

	var current *models.PaymentIntent
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.TransitionFromPending(ctx, intent.ID, enums.PaymentStatusCancelled, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel payment intent")
		}
		current, err = repo.FindByID(ctx, intent.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payment intent")
		}
		if !ok {
			return stateConflict(current.Status)
		}
		return s.outbox.Emit(ctx, tx, StatusEvent(enums.EventPaymentCancelled, current, nil, s.now()))
	})
	if err != nil {
		return nil, err
	}

	s.notifier.StatusChanged(ctx, current, "cancel")
	return current, nil
}

func (s *service) loadOwned(ctx context.Context, userID, paymentID uuid.UUID) (*models.PaymentIntent, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	intent, err := findIntent(ctx, s.repo, paymentID)
	if err != nil {
		return nil, err
	}
	// other users' intents are reported as missing
	if intent.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return intent, nil
}

func stateConflict(status enums.PaymentStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payment is %s and can no longer be cancelled", status)).
		WithDetails(map[string]any{"status": status})
}

func (s *service) logError(ctx context.Context, paymentID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(s.logg.WithPaymentID(ctx, paymentID.String()), msg, err)
}
