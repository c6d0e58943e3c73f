package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/paysettle-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
)

var hosts = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

type paymentsAPI interface {
	Create(ctx context.Context, request *sq.CreatePaymentRequest, opts ...sqoption.RequestOption) (*sq.CreatePaymentResponse, error)
}

// Client charges card sources at a single Square location.
type Client struct {
	payments   paymentsAPI
	locationID string
	currency   sq.Currency
	logg       *logger.Logger
}

// ChargeParams describes one card charge for a payment intent.
type ChargeParams struct {
	PaymentID uuid.UUID
	Amount    decimal.Decimal
	SourceID  string
	Note      string
}

// Payment is the slice of a Square payment the settlement flow needs.
type Payment struct {
	ID         string
	Status     string
	ReceiptURL string
}

// Declined reports whether Square refused the charge outright.
func (p Payment) Declined() bool {
	return p.Status == PaymentStatusFailed || p.Status == PaymentStatusCanceled
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	env := strings.ToLower(strings.TrimSpace(cfg.Environment()))
	if env == "" {
		env = "sandbox"
	}
	host, ok := hosts[env]
	if !ok {
		return nil, fmt.Errorf("square environment %q is not sandbox or production", cfg.Env)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("square access token is required")
	}
	if strings.TrimSpace(cfg.LocationID) == "" {
		return nil, errors.New("square location id is required")
	}

	sdk := sqclient.NewClient(sqoption.WithBaseURL(host), sqoption.WithToken(token))
	c := newClient(sdk.Payments, cfg.LocationID, cfg.Currency, logg)
	if logg != nil {
		logg.Info(logg.WithField(ctx, "square_env", env), "square client initialized")
	}
	return c, nil
}

func newClient(api paymentsAPI, locationID, currency string, logg *logger.Logger) *Client {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if cur == "" {
		cur = "BRL"
	}
	return &Client{
		payments:   api,
		locationID: strings.TrimSpace(locationID),
		currency:   sq.Currency(cur),
		logg:       logg,
	}
}

// Charge captures Amount from SourceID immediately. The payment id doubles
// as the idempotency key and the reference_id echoed back in webhooks.
func (c *Client) Charge(ctx context.Context, p ChargeParams) (*Payment, error) {
	source := strings.TrimSpace(p.SourceID)
	if source == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card source is required")
	}
	if !p.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge amount must be positive")
	}

	cents := p.Amount.Shift(2).Round(0).IntPart()
	ref := p.PaymentID.String()
	req := &sq.CreatePaymentRequest{
		IdempotencyKey: ref,
		SourceID:       source,
		LocationID:     &c.locationID,
		ReferenceID:    &ref,
		AmountMoney:    &sq.Money{Amount: &cents, Currency: &c.currency},
		Autocomplete:   ptr(true),
	}
	if note := strings.TrimSpace(p.Note); note != "" {
		if len(note) > 500 {
			note = note[:500]
		}
		req.Note = &note
	}

	ctx = c.scope(ctx, ref)
	resp, err := c.payments.Create(ctx, req)
	if err != nil {
		mapped := classify(err)
		if c.logg != nil {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "square charge failed")
		}
		return nil, mapped
	}
	sp := resp.GetPayment()
	if sp == nil {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "square returned no payment")
	}

	out := &Payment{
		ID:         value(sp.GetID()),
		Status:     value(sp.GetStatus()),
		ReceiptURL: value(sp.GetReceiptURL()),
	}
	if c.logg != nil {
		c.logg.Info(c.logg.WithFields(ctx, map[string]any{
			"square_payment_id": out.ID,
			"square_status":     out.Status,
		}), "square charge created")
	}
	return out, nil
}

func (c *Client) scope(ctx context.Context, paymentID string) context.Context {
	if c.logg == nil {
		return ctx
	}
	return c.logg.WithFields(ctx, map[string]any{
		"payment_id":  paymentID,
		"location_id": c.locationID,
	})
}

// classify maps a Square SDK failure onto an application error code.
// Body-level error codes win over the HTTP status.
func classify(err error) error {
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "square unreachable")
	}

	code := codeForStatus(apiErr.StatusCode)
	for _, e := range bodyErrors(apiErr) {
		switch {
		case e.Code == sq.ErrorCodeIdempotencyKeyReused:
			code = pkgerrors.CodeIdempotency
		case e.Category == sq.ErrorCategoryAuthenticationError:
			code = pkgerrors.CodeDependency
		case e.Category == sq.ErrorCategoryPaymentMethodError:
			code = pkgerrors.CodeGateway
		default:
			continue
		}
		break
	}
	return pkgerrors.Wrap(code, err, "square rejected the charge")
}

func bodyErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if json.Unmarshal([]byte(inner.Error()), &body) != nil {
		return nil
	}
	out := body.Errors[:0]
	for _, e := range body.Errors {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// codeForStatus treats auth failures as our misconfiguration rather than the
// caller's, so they surface as dependency errors.
func codeForStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return pkgerrors.CodeDependency
	case status == http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case status == http.StatusConflict:
		return pkgerrors.CodeConflict
	case status == http.StatusPaymentRequired, status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return pkgerrors.CodeGateway
	case status >= 500:
		return pkgerrors.CodeDependency
	default:
		return pkgerrors.CodeGateway
	}
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr[T any](v T) *T { return &v }
