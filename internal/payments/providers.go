package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/paysettle-backend/pkg/config"
	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
	"github.com/angelmondragon/paysettle-backend/pkg/pix"
)

// providerRoutes fixes which provider serves each payment type.
var providerRoutes = map[enums.PaymentType]enums.PaymentProvider{
	enums.PaymentTypeLPUnlock:            enums.PaymentProviderManual,
	enums.PaymentTypeProfessionalService: enums.PaymentProviderManual,
	enums.PaymentTypeSubscription:        enums.PaymentProviderGateway,
	enums.PaymentTypeStorePlan:           enums.PaymentProviderGateway,
	enums.PaymentTypeMarketplaceOrder:    enums.PaymentProviderGateway,
}

// ProviderFor returns the provider routed for paymentType.
func ProviderFor(paymentType enums.PaymentType) (enums.PaymentProvider, bool) {
	provider, ok := providerRoutes[paymentType]
	return provider, ok
}

// ProviderResult is either a ManualResult or a GatewayResult.
type ProviderResult interface {
	provider() enums.PaymentProvider
	intent() *models.PaymentIntent
}

// ManualResult carries the checksummed payload and its QR rendering.
type ManualResult struct {
	Intent  *models.PaymentIntent
	Payload string
	QRImage string
}

func (r ManualResult) provider() enums.PaymentProvider { return enums.PaymentProviderManual }
func (r ManualResult) intent() *models.PaymentIntent   { return r.Intent }

// GatewayResult carries what the gateway returned for the charge.
type GatewayResult struct {
	Intent                *models.PaymentIntent
	Driver                string
	ExternalTransactionID string
	Payload               string
	PaymentURL            string
}

func (r GatewayResult) provider() enums.PaymentProvider { return enums.PaymentProviderGateway }
func (r GatewayResult) intent() *models.PaymentIntent   { return r.Intent }

// providerStrategy persists the intent and obtains whatever the payer needs.
type providerStrategy interface {
	Create(ctx context.Context, intent *models.PaymentIntent, input CreatePaymentInput) (ProviderResult, error)
}

type payloadBuilder func(pix.Fields) (string, error)
type qrRenderer func(payload string, size int) (string, error)

type manualProvider struct {
	repo     Repository
	cfg      config.PaymentsConfig
	build    payloadBuilder
	renderQR qrRenderer
	logg     *logger.Logger
}

func newManualProvider(repo Repository, cfg config.PaymentsConfig, logg *logger.Logger) *manualProvider {
	return &manualProvider{
		repo:     repo,
		cfg:      cfg,
		build:    pix.BuildPayload,
		renderQR: pix.RenderQR,
		logg:     logg,
	}
}

// Create inserts the row before building the payload because the payload
// reference is derived from the intent id.
func (p *manualProvider) Create(ctx context.Context, intent *models.PaymentIntent, input CreatePaymentInput) (ProviderResult, error) {
	intent.Provider = enums.PaymentProviderManual
	if err := p.repo.Create(ctx, intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment intent")
	}

	payload, err := p.build(pix.Fields{
		ReceiverKey:  p.cfg.ReceiverKey,
		MerchantName: p.cfg.MerchantName,
		MerchantCity: p.cfg.MerchantCity,
		Amount:       intent.Amount,
		Description:  derefOr(intent.Description, p.cfg.DefaultDescription),
		Reference:    manualReference(intent.ID),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build payment payload")
	}

	updates := map[string]any{"payload": payload}
	qrImage, err := p.renderQR(payload, p.cfg.QRSize)
	if err != nil {
		if p.logg != nil {
			p.logg.Error(p.logg.WithPaymentID(ctx, intent.ID.String()), "qr render failed", err)
		}
		qrImage = ""
	} else {
		updates["qr_image"] = qrImage
	}
	if err := p.repo.UpdateFields(ctx, intent.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store payment payload")
	}
	intent.Payload = &payload
	if qrImage != "" {
		intent.QRImage = &qrImage
	}
	return ManualResult{Intent: intent, Payload: payload, QRImage: qrImage}, nil
}

// manualReference is the intent id without dashes, cut to the reference limit.
func manualReference(id uuid.UUID) string {
	ref := strings.ReplaceAll(id.String(), "-", "")
	if len(ref) > pix.MaxReferenceLength {
		ref = ref[:pix.MaxReferenceLength]
	}
	return ref
}

type gatewayProvider struct {
	repo    Repository
	gateway GatewayClient
	cfg     config.PaymentsConfig
	timeout time.Duration
}

func newGatewayProvider(repo Repository, gateway GatewayClient, cfg config.PaymentsConfig, timeout time.Duration) *gatewayProvider {
	return &gatewayProvider{repo: repo, gateway: gateway, cfg: cfg, timeout: timeout}
}

// Create charges first and only persists on success, so a rejected charge leaves no row.
func (p *gatewayProvider) Create(ctx context.Context, intent *models.PaymentIntent, input CreatePaymentInput) (ProviderResult, error) {
	if p.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}
	metadata := map[string]string{
		"payment_type": intent.PaymentType.String(),
		"user_id":      intent.UserID.String(),
		"payment_id":   intent.ID.String(),
	}
	if intent.ReferenceID != nil {
		metadata["reference_id"] = intent.ReferenceID.String()
	}

	chargeCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		chargeCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	charge, err := p.gateway.Charge(chargeCtx, GatewayChargeRequest{
		PaymentID:    intent.ID,
		Amount:       intent.Amount,
		Description:  derefOr(intent.Description, p.cfg.DefaultDescription),
		PayerEmail:   intent.PayerEmail,
		PayerName:    intent.PayerName,
		Method:       intent.Method,
		CardSourceID: input.CardSourceID,
		Metadata:     metadata,
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gateway charge failed")
	}

	driver := p.gateway.Driver()
	intent.Provider = enums.PaymentProviderGateway
	intent.GatewayDriver = &driver
	intent.ExternalTransactionID = optionalString(charge.ExternalTransactionID)
	intent.Payload = optionalString(charge.Payload)
	intent.PaymentURL = optionalString(charge.PaymentURL)
	intent.ReceiptURL = optionalString(charge.ReceiptURL)
	if err := p.repo.Create(ctx, intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("create payment intent after %s charge", driver))
	}
	return GatewayResult{
		Intent:                intent,
		Driver:                driver,
		ExternalTransactionID: charge.ExternalTransactionID,
		Payload:               charge.Payload,
		PaymentURL:            charge.PaymentURL,
	}, nil
}

// normalizeResult flattens either provider result into the API shape.
func normalizeResult(result ProviderResult) *CreatePaymentResult {
	intent := result.intent()
	out := &CreatePaymentResult{
		PaymentID: intent.ID,
		ExpiresAt: intent.ExpiresAt,
		Provider:  result.provider(),
		Status:    intent.Status,
	}
	switch r := result.(type) {
	case ManualResult:
		out.Payload = r.Payload
		out.QRImage = r.QRImage
	case GatewayResult:
		out.Payload = r.Payload
		out.PaymentURL = r.PaymentURL
	}
	return out
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func derefOr(value *string, fallback string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return fallback
	}
	return *value
}
