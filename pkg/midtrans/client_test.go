package midtrans

import (
	"context"
	"errors"
	"net/http"
	"testing"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/paysettle-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
)

type stubSnap struct {
	createFn func(req *snap.Request) (*snap.Response, *midtrans.Error)
	last     *snap.Request
}

func (s *stubSnap) CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error) {
	s.last = req
	return s.createFn(req)
}

func TestCreateTransactionBuildsRequest(t *testing.T) {
	stub := &stubSnap{createFn: func(*snap.Request) (*snap.Response, *midtrans.Error) {
		return &snap.Response{Token: "tok-1", RedirectURL: "https://app.sandbox.midtrans.com/snap/v2/vtweb/tok-1"}, nil
	}}
	c := &Client{snap: stub, serverKey: "SB-key"}

	res, err := c.CreateTransaction(context.Background(), SnapParams{
		OrderID:      "pay-1",
		Amount:       decimal.RequireFromString("89900"),
		Description:  "Pedido 123",
		PayerName:    "Maria da Silva",
		PayerEmail:   "maria@example.com",
		PaymentType:  "marketplace_order",
		ReferenceID:  "order-123",
		UserID:       "user-1",
		CardPayments: true,
	})
	require.NoError(t, err)
	require.Equal(t, "tok-1", res.Token)
	require.Contains(t, res.RedirectURL, "tok-1")

	req := stub.last
	require.Equal(t, "pay-1", req.TransactionDetails.OrderID)
	require.EqualValues(t, 89900, req.TransactionDetails.GrossAmt)
	require.Equal(t, "Maria", req.CustomerDetail.FName)
	require.Equal(t, "da Silva", req.CustomerDetail.LName)
	require.Equal(t, "marketplace_order", req.CustomField1)
	require.Equal(t, "order-123", req.CustomField2)
	require.Equal(t, "user-1", req.CustomField3)
	require.NotNil(t, req.CreditCard)
	require.Len(t, *req.Items, 1)
}

func TestCreateTransactionRejectsFractionalAmounts(t *testing.T) {
	called := false
	stub := &stubSnap{createFn: func(*snap.Request) (*snap.Response, *midtrans.Error) {
		called = true
		return &snap.Response{Token: "tok"}, nil
	}}
	c := &Client{snap: stub}

	for _, amount := range []string{"89.90", "0.40", "0", "-5"} {
		_, err := c.CreateTransaction(context.Background(), SnapParams{OrderID: "o", Amount: decimal.RequireFromString(amount)})
		require.Error(t, err, amount)
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), amount)
	}
	require.False(t, called)
}

func TestGrossAmountKeepsWholeUnits(t *testing.T) {
	gross, err := GrossAmount(decimal.RequireFromString("150000.00"))
	require.NoError(t, err)
	require.EqualValues(t, 150000, gross)

	_, err = GrossAmount(decimal.RequireFromString("150000.01"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCreateTransactionMapsErrors(t *testing.T) {
	cases := []struct {
		status int
		code   pkgerrors.Code
	}{
		{http.StatusBadRequest, pkgerrors.CodeGateway},
		{http.StatusUnauthorized, pkgerrors.CodeUnauthorized},
		{http.StatusBadGateway, pkgerrors.CodeDependency},
		{0, pkgerrors.CodeDependency},
	}
	for _, tc := range cases {
		stub := &stubSnap{createFn: func(*snap.Request) (*snap.Response, *midtrans.Error) {
			return nil, &midtrans.Error{Message: "rejected", StatusCode: tc.status, RawError: errors.New("rejected")}
		}}
		c := &Client{snap: stub}
		_, err := c.CreateTransaction(context.Background(), SnapParams{OrderID: "o", Amount: decimal.NewFromInt(10)})
		require.Error(t, err)
		require.True(t, pkgerrors.IsCode(err, tc.code), "status %d: got %v", tc.status, err)
	}
}

func TestCreateTransactionValidatesInput(t *testing.T) {
	c := &Client{snap: &stubSnap{}}
	_, err := c.CreateTransaction(context.Background(), SnapParams{Amount: decimal.NewFromInt(10)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = c.CreateTransaction(context.Background(), SnapParams{OrderID: "o", Amount: decimal.RequireFromString("0.20")})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCreateTransactionRejectsEmptyToken(t *testing.T) {
	stub := &stubSnap{createFn: func(*snap.Request) (*snap.Response, *midtrans.Error) {
		return &snap.Response{}, nil
	}}
	_, err := (&Client{snap: stub}).CreateTransaction(context.Background(), SnapParams{OrderID: "o", Amount: decimal.NewFromInt(5)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
}

func TestNewClientRequiresServerKey(t *testing.T) {
	_, err := NewClient(config.MidtransConfig{}, nil)
	require.Error(t, err)

	c, err := NewClient(config.MidtransConfig{ServerKey: " SB-key ", Env: "sandbox"}, nil)
	require.NoError(t, err)
	require.Equal(t, "SB-key", c.ServerKey())
}

func TestNotificationSignature(t *testing.T) {
	n := Notification{OrderID: "pay-1", StatusCode: "200", GrossAmount: "90.00", TransactionStatus: "settlement"}
	n.SignatureKey = Signature(n.OrderID, n.StatusCode, n.GrossAmount, "server-key")

	require.True(t, n.VerifySignature("server-key"))
	require.False(t, n.VerifySignature("other-key"))

	tampered := n
	tampered.GrossAmount = "1.00"
	require.False(t, tampered.VerifySignature("server-key"))

	unsigned := n
	unsigned.SignatureKey = ""
	require.False(t, unsigned.VerifySignature("server-key"))
}

func TestNotificationEventMapping(t *testing.T) {
	cases := []struct {
		status string
		fraud  string
		event  enums.PaymentEvent
		ok     bool
	}{
		{"settlement", "", enums.PaymentEventSucceeded, true},
		{"capture", "accept", enums.PaymentEventSucceeded, true},
		{"capture", "challenge", "", false},
		{"deny", "", enums.PaymentEventFailed, true},
		{"expire", "", enums.PaymentEventFailed, true},
		{"cancel", "", enums.PaymentEventFailed, true},
		{"refund", "", enums.PaymentEventRefunded, true},
		{"pending", "", "", false},
	}
	for _, tc := range cases {
		event, ok := Notification{TransactionStatus: tc.status, FraudStatus: tc.fraud}.Event()
		require.Equal(t, tc.ok, ok, tc.status)
		require.Equal(t, tc.event, event, tc.status)
	}
}
