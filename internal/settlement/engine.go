// Package settlement applies the domain side effects of a paid payment intent.
// It always runs inside the caller's transaction, together with the status
// transition that made the intent paid.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/paysettle-backend/internal/ledger"
	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
)

const defaultPlanDuration = 30 * 24 * time.Hour

// Result describes what settlement changed.
type Result struct {
	PaymentType     enums.PaymentType
	Applied         bool
	ProfessionalID  *uuid.UUID
	PlatformFee     *decimal.Decimal
	NetCredit       *decimal.Decimal
	Plan            string
	PlanExpiresAt   *time.Time
	ChatRoomCreated bool
}

type handlerFunc func(ctx context.Context, repo Repository, book ledger.Service, intent *models.PaymentIntent, settledAt time.Time) (*Result, error)

// EngineParams groups the settlement dependencies.
type EngineParams struct {
	Repo         Repository
	Ledger       ledger.Service
	FeeRate      decimal.Decimal
	PlanDuration time.Duration
	DefaultPlan  enums.SubscriptionPlan
	Logger       *logger.Logger
}

// Engine dispatches settlement by payment type.
type Engine struct {
	repo         Repository
	ledger       ledger.Service
	feeRate      decimal.Decimal
	planDuration time.Duration
	defaultPlan  enums.SubscriptionPlan
	logg         *logger.Logger
	handlers     map[enums.PaymentType]handlerFunc
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Repo == nil {
		return nil, errors.New("settlement repository required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger service required")
	}
	feeRate := params.FeeRate
	if feeRate.IsZero() {
		feeRate = DefaultPlatformFeeRate
	}
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("platform fee rate must be in [0, 1), got %s", feeRate)
	}
	planDuration := params.PlanDuration
	if planDuration <= 0 {
		planDuration = defaultPlanDuration
	}
	defaultPlan := params.DefaultPlan
	if !defaultPlan.IsValid() {
		defaultPlan = enums.SubscriptionPlanPro
	}

	e := &Engine{
		repo:         params.Repo,
		ledger:       params.Ledger,
		feeRate:      feeRate,
		planDuration: planDuration,
		defaultPlan:  defaultPlan,
		logg:         params.Logger,
	}
	e.handlers = map[enums.PaymentType]handlerFunc{
		enums.PaymentTypeLPUnlock:            e.settleLandingPage,
		enums.PaymentTypeSubscription:        e.settleSubscription,
		enums.PaymentTypeStorePlan:           e.settleStorePlan,
		enums.PaymentTypeMarketplaceOrder:    e.settleMarketplaceOrder,
		enums.PaymentTypeProfessionalService: e.settleProfessionalService,
	}
	return e, nil
}

// Settle applies the effects of intent on tx. A missing aggregate aborts with
// NOT_FOUND so the caller's transaction, status transition included, rolls back.
func (e *Engine) Settle(ctx context.Context, tx *gorm.DB, intent *models.PaymentIntent, settledAt time.Time) (*Result, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if intent == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent required")
	}
	handler, ok := e.handlers[intent.PaymentType]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no settlement handler for payment type %q", intent.PaymentType))
	}
	if intent.PaymentType != enums.PaymentTypeSubscription && intent.ReferenceID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s payment is missing its reference id", intent.PaymentType))
	}

	settledAt = settledAt.UTC()
	repo := e.repo.WithTx(tx)
	book := e.ledger.WithTx(tx)

	result, err := handler(ctx, repo, book, intent, settledAt)
	if err != nil {
		return nil, err
	}
	result.PaymentType = intent.PaymentType

	if result.Applied {
		if _, _, err := book.RecordEvent(ctx, ledger.RecordLedgerEventInput{
			PaymentID:   intent.ID,
			PaymentType: intent.PaymentType,
			UserID:      intent.UserID,
			Type:        enums.LedgerEventPaymentCaptured,
			Amount:      intent.Amount,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record captured payment")
		}
	}

	if e.logg != nil {
		logCtx := e.logg.WithFields(e.logg.WithPaymentID(ctx, intent.ID.String()), map[string]any{
			"payment_type": intent.PaymentType,
			"applied":      result.Applied,
		})
		e.logg.Info(logCtx, "settlement processed")
	}
	return result, nil
}

func (e *Engine) settleLandingPage(ctx context.Context, repo Repository, _ ledger.Service, intent *models.PaymentIntent, settledAt time.Time) (*Result, error) {
	professionalID := *intent.ReferenceID
	rows, err := repo.UnlockLandingPage(ctx, professionalID, intent.ID, settledAt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unlock landing page")
	}
	if rows == 0 {
		if err := ensureExists(ctx, repo, &models.Professional{}, professionalID, "professional"); err != nil {
			return nil, err
		}
	}
	return &Result{Applied: rows == 1, ProfessionalID: &professionalID}, nil
}

func (e *Engine) settleSubscription(ctx context.Context, repo Repository, _ ledger.Service, intent *models.PaymentIntent, settledAt time.Time) (*Result, error) {
	plan := e.defaultPlan
	if intent.DesiredPlan != nil && intent.DesiredPlan.IsValid() {
		plan = *intent.DesiredPlan
	}
	expiresAt := settledAt.Add(e.planDuration)
	rows, err := repo.ApplySubscription(ctx, intent.UserID, plan, expiresAt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply subscription")
	}
	if rows == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return &Result{Applied: true, Plan: plan.String(), PlanExpiresAt: &expiresAt}, nil
}

func (e *Engine) settleStorePlan(ctx context.Context, repo Repository, _ ledger.Service, intent *models.PaymentIntent, settledAt time.Time) (*Result, error) {
	expiresAt := settledAt.Add(e.planDuration)
	rows, err := repo.ApplyStorePlan(ctx, *intent.ReferenceID, expiresAt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply store plan")
	}
	if rows == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
	}
	return &Result{Applied: true, Plan: enums.StorePlanTierPremium.String(), PlanExpiresAt: &expiresAt}, nil
}

func (e *Engine) settleMarketplaceOrder(ctx context.Context, repo Repository, _ ledger.Service, intent *models.PaymentIntent, settledAt time.Time) (*Result, error) {
	orderID := *intent.ReferenceID
	rows, err := repo.MarkOrderPaid(ctx, orderID, intent.ID, settledAt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
	}
	if rows == 0 {
		if err := ensureExists(ctx, repo, &models.MarketplaceOrder{}, orderID, "marketplace order"); err != nil {
			return nil, err
		}
	}
	return &Result{Applied: rows == 1}, nil
}

func (e *Engine) settleProfessionalService(ctx context.Context, repo Repository, book ledger.Service, intent *models.PaymentIntent, settledAt time.Time) (*Result, error) {
	hire, err := repo.FindHire(ctx, *intent.ReferenceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "professional hire not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load professional hire")
	}
	if hire.ClientUserID != intent.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "professional hire belongs to another client").
			WithDetails(map[string]any{"hire_id": hire.ID.String()})
	}

	fee, net := SplitFee(hire.AgreedAmount, e.feeRate)
	professionalID := hire.ProfessionalID
	result := &Result{ProfessionalID: &professionalID, PlatformFee: &fee, NetCredit: &net}

	rows, err := repo.MarkHirePaid(ctx, hire.ID, intent.ID, fee, settledAt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark hire paid")
	}
	if rows == 0 {
		return result, nil
	}
	result.Applied = true

	credited, err := repo.CreditProfessional(ctx, professionalID, net)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "credit professional balance")
	}
	if credited == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "professional not found")
	}

	hireID := hire.ID
	created, err := repo.EnsureChatRoom(ctx, &models.ChatRoom{
		ProfessionalID: professionalID,
		UserID:         intent.UserID,
		HireID:         &hireID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "ensure chat room")
	}
	result.ChatRoomCreated = created

	meta, _ := json.Marshal(map[string]string{
		"hire_id":       hire.ID.String(),
		"agreed_amount": hire.AgreedAmount.StringFixed(2),
		"fee_rate":      e.feeRate.String(),
	})
	for _, entry := range []struct {
		kind   enums.LedgerEventType
		amount decimal.Decimal
	}{
		{enums.LedgerEventPlatformFee, fee},
		{enums.LedgerEventProfessionalCredit, net},
	} {
		if _, _, err := book.RecordEvent(ctx, ledger.RecordLedgerEventInput{
			PaymentID:      intent.ID,
			PaymentType:    intent.PaymentType,
			UserID:         intent.UserID,
			ProfessionalID: &professionalID,
			Type:           entry.kind,
			Amount:         entry.amount,
			Metadata:       meta,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record "+entry.kind.String())
		}
	}
	return result, nil
}

func ensureExists(ctx context.Context, repo Repository, model any, id uuid.UUID, label string) error {
	ok, err := repo.Exists(ctx, model, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check "+label)
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, label+" not found")
	}
	return nil
}
