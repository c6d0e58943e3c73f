package square

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/paysettle-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
)

type stubPayments struct {
	got  *sq.CreatePaymentRequest
	resp *sq.CreatePaymentResponse
	err  error
}

func (s *stubPayments) Create(_ context.Context, req *sq.CreatePaymentRequest, _ ...sqoption.RequestOption) (*sq.CreatePaymentResponse, error) {
	s.got = req
	return s.resp, s.err
}

func completedPayment(id string) *sq.CreatePaymentResponse {
	status := PaymentStatusCompleted
	receipt := "https://squareup.com/receipt/preview/" + id
	return &sq.CreatePaymentResponse{Payment: &sq.Payment{ID: &id, Status: &status, ReceiptURL: &receipt}}
}

func TestChargeBuildsRequestFromIntent(t *testing.T) {
	api := &stubPayments{resp: completedPayment("sq-pay-1")}
	c := newClient(api, " L1 ", "brl", nil)
	paymentID := uuid.New()

	got, err := c.Charge(context.Background(), ChargeParams{
		PaymentID: paymentID,
		Amount:    decimal.RequireFromString("89.90"),
		SourceID:  " cnon:card-nonce-ok ",
		Note:      "  Pedido 123 ",
	})
	require.NoError(t, err)
	require.Equal(t, &Payment{ID: "sq-pay-1", Status: "COMPLETED", ReceiptURL: "https://squareup.com/receipt/preview/sq-pay-1"}, got)
	require.False(t, got.Declined())

	req := api.got
	require.Equal(t, paymentID.String(), req.IdempotencyKey)
	require.Equal(t, paymentID.String(), *req.ReferenceID)
	require.Equal(t, "cnon:card-nonce-ok", req.SourceID)
	require.Equal(t, "L1", *req.LocationID)
	require.EqualValues(t, 8990, *req.AmountMoney.Amount)
	require.Equal(t, sq.Currency("BRL"), *req.AmountMoney.Currency)
	require.Equal(t, "Pedido 123", *req.Note)
	require.True(t, *req.Autocomplete)
}

func TestChargeValidatesInput(t *testing.T) {
	c := newClient(&stubPayments{}, "L1", "", nil)

	_, err := c.Charge(context.Background(), ChargeParams{Amount: decimal.NewFromInt(10)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = c.Charge(context.Background(), ChargeParams{Amount: decimal.Zero, SourceID: "cnon:x"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestChargeMapsSquareFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   pkgerrors.Code
	}{
		{"card declined", http.StatusPaymentRequired, `{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"CARD_DECLINED"}]}`, pkgerrors.CodeGateway},
		{"idempotency reuse", http.StatusBadRequest, `{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`, pkgerrors.CodeIdempotency},
		{"bad token", http.StatusUnauthorized, `{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`, pkgerrors.CodeDependency},
		{"throttled", http.StatusTooManyRequests, `not json`, pkgerrors.CodeRateLimit},
		{"outage", http.StatusServiceUnavailable, ``, pkgerrors.CodeDependency},
	}
	for _, tc := range cases {
		api := &stubPayments{err: sqcore.NewAPIError(tc.status, errors.New(tc.body))}
		_, err := newClient(api, "L1", "BRL", nil).Charge(context.Background(), ChargeParams{
			PaymentID: uuid.New(),
			Amount:    decimal.NewFromInt(5),
			SourceID:  "cnon:x",
		})
		require.True(t, pkgerrors.IsCode(err, tc.want), "%s: %v", tc.name, err)
	}

	api := &stubPayments{err: errors.New("dial tcp: i/o timeout")}
	_, err := newClient(api, "L1", "BRL", nil).Charge(context.Background(), ChargeParams{Amount: decimal.NewFromInt(5), SourceID: "cnon:x"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestChargeRejectsEmptyResponse(t *testing.T) {
	api := &stubPayments{resp: &sq.CreatePaymentResponse{}}
	_, err := newClient(api, "L1", "BRL", nil).Charge(context.Background(), ChargeParams{Amount: decimal.NewFromInt(5), SourceID: "cnon:x"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.SquareConfig{Env: "staging", AccessToken: "t", LocationID: "L"}, nil)
	require.ErrorContains(t, err, "not sandbox or production")

	_, err = NewClient(context.Background(), config.SquareConfig{AccessToken: "t"}, nil)
	require.ErrorContains(t, err, "location id")

	c, err := NewClient(context.Background(), config.SquareConfig{Env: " Production ", AccessToken: "t", LocationID: "L"}, nil)
	require.NoError(t, err)
	require.Equal(t, "L", c.locationID)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"type":"payment.updated"}`)
	url := "https://api.paysettle.example/api/v1/webhooks/square"
	header := Sign(body, url, "sig-key")

	if !VerifySignature(body, url, "sig-key", header) {
		t.Fatalf("expected signature to verify")
	}
	if VerifySignature(body, url+"x", "sig-key", header) {
		t.Fatalf("signature must cover the notification url")
	}
	if VerifySignature([]byte(`{"type":"payment.created"}`), url, "sig-key", header) {
		t.Fatalf("signature must cover the body")
	}
	if VerifySignature(body, url, "", header) || VerifySignature(body, url, "sig-key", "") {
		t.Fatalf("empty key or header must fail")
	}
}
