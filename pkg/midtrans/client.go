package midtrans

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/paysettle-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
)

const (
	maxCustomFieldLen = 255
	maxItemNameLen    = 50
)

var errServerKeyRequired = errors.New("midtrans server key is required")

type snapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

// Client issues Snap checkout sessions.
type Client struct {
	snap      snapAPI
	serverKey string
	logg      *logger.Logger
}

// SnapParams is the normalized input for one checkout session.
type SnapParams struct {
	OrderID      string
	Amount       decimal.Decimal
	Description  string
	PayerName    string
	PayerEmail   string
	PaymentType  string
	ReferenceID  string
	UserID       string
	CardPayments bool
}

// SnapResult carries what the payer needs to finish the payment.
type SnapResult struct {
	Token       string
	RedirectURL string
}

// NewClient builds a Snap client for the configured environment.
func NewClient(cfg config.MidtransConfig, logg *logger.Logger) (*Client, error) {
	key := strings.TrimSpace(cfg.ServerKey)
	if key == "" {
		return nil, errServerKeyRequired
	}
	env := midtrans.Sandbox
	if cfg.IsProduction() {
		env = midtrans.Production
	}
	var sc snap.Client
	sc.New(key, env)
	return &Client{snap: &sc, serverKey: key, logg: logg}, nil
}

// ServerKey is also the secret that signs notifications.
func (c *Client) ServerKey() string {
	if c == nil {
		return ""
	}
	return c.serverKey
}

// CreateTransaction opens a Snap session. The payment metadata rides in the custom
// fields so the notification can be correlated even without our order id.
func (c *Client) CreateTransaction(ctx context.Context, params SnapParams) (*SnapResult, error) {
	if strings.TrimSpace(params.OrderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "midtrans order id is required")
	}
	gross, err := GrossAmount(params.Amount)
	if err != nil {
		return nil, err
	}

	first, last := splitName(params.PayerName)
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  params.OrderID,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: first,
			LName: last,
			Email: params.PayerEmail,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:       params.OrderID,
				Price:    gross,
				Qty:      1,
				Name:     truncate(firstNonEmpty(params.Description, params.PaymentType), maxItemNameLen),
				Category: params.PaymentType,
			},
		},
		CustomField1: truncate(params.PaymentType, maxCustomFieldLen),
		CustomField2: truncate(params.ReferenceID, maxCustomFieldLen),
		CustomField3: truncate(params.UserID, maxCustomFieldLen),
	}
	if params.CardPayments {
		req.CreditCard = &snap.CreditCardDetails{Secure: true}
	}

	c.log(ctx, "midtrans create_transaction request", params.OrderID)
	resp, mErr := c.snap.CreateTransaction(req)
	if mErr != nil {
		return nil, mapError(mErr)
	}
	if resp == nil || resp.Token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "midtrans returned an empty snap token")
	}
	c.log(ctx, "midtrans create_transaction response", params.OrderID)
	return &SnapResult{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// GrossAmount converts an amount into the integer units Snap accepts. Snap has
// no minor units, so a fractional amount is refused rather than rounded.
func GrossAmount(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "midtrans gross amount must be positive")
	}
	if !amount.Equal(amount.Truncate(0)) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "midtrans gross amount must be a whole number").
			WithDetails(map[string]any{"amount": amount.String()})
	}
	return amount.IntPart(), nil
}

func mapError(mErr *midtrans.Error) error {
	msg := fmt.Sprintf("midtrans create transaction failed (status %d): %s", mErr.StatusCode, mErr.Message)
	switch {
	case mErr.StatusCode == 0 || mErr.StatusCode >= http.StatusInternalServerError:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, mErr, msg)
	case mErr.StatusCode == http.StatusUnauthorized:
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, mErr, msg)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeGateway, mErr, msg)
	}
}

func (c *Client) log(ctx context.Context, msg, orderID string) {
	if c == nil || c.logg == nil {
		return
	}
	c.logg.Info(c.logg.WithField(ctx, "order_id", orderID), msg)
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
