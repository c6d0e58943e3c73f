package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/paysettle-backend/internal/reconciler"
	internalwebhooks "github.com/angelmondragon/paysettle-backend/internal/webhooks"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
	"github.com/angelmondragon/paysettle-backend/pkg/midtrans"
	"github.com/angelmondragon/paysettle-backend/pkg/security"
	"github.com/angelmondragon/paysettle-backend/pkg/square"
)

type rejection struct {
	provider enums.WebhookProvider
	reason   string
}

type stubProcessor struct {
	process    func(ctx context.Context, d internalwebhooks.Delivery) (*internalwebhooks.Result, error)
	deliveries []internalwebhooks.Delivery
	rejected   []rejection
}

func (s *stubProcessor) Process(ctx context.Context, d internalwebhooks.Delivery) (*internalwebhooks.Result, error) {
	s.deliveries = append(s.deliveries, d)
	if s.process != nil {
		return s.process(ctx, d)
	}
	return &internalwebhooks.Result{Outcome: &reconciler.Outcome{Applied: true, Status: enums.PaymentStatusPaid}}, nil
}

func (s *stubProcessor) Reject(_ context.Context, provider enums.WebhookProvider, _ []byte, reason string) {
	s.rejected = append(s.rejected, rejection{provider: provider, reason: reason})
}

var testOptions = Options{
	GenericSecret:         "whsec",
	MidtransServerKey:     "SB-Mid-server-key",
	SquareSignatureKey:    "sq-key",
	SquareNotificationURL: "https://api.paysettle.example/api/v1/webhooks/square",
}

func genericBody(paymentID uuid.UUID, event string) string {
	return fmt.Sprintf(`{"event":%q,"order_nsu":%q,"transaction_nsu":"nsu-1","capture_method":"pix"}`, event, paymentID)
}

func TestGenericWebhookAppliesSignedDelivery(t *testing.T) {
	svc := &stubProcessor{}
	paymentID := uuid.New()
	body := genericBody(paymentID, "payment.succeeded")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(body))
	req.Header.Set(security.WebhookSignatureHeader, security.SignHex([]byte(body), testOptions.GenericSecret))
	rec := httptest.NewRecorder()
	GenericWebhook(svc, testOptions, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.deliveries, 1)
	require.Equal(t, paymentID, svc.deliveries[0].PaymentID)
	require.Equal(t, enums.PaymentEventSucceeded, svc.deliveries[0].Event)

	var ack ackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	require.True(t, ack.Success)
	require.True(t, ack.Applied)
	require.NotContains(t, rec.Body.String(), `"data"`)
}

func TestGenericWebhookRejectsBadSignature(t *testing.T) {
	svc := &stubProcessor{}
	body := genericBody(uuid.New(), "payment.succeeded")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(body))
	req.Header.Set(security.WebhookSignatureHeader, security.SignHex([]byte(body), "wrong"))
	rec := httptest.NewRecorder()
	GenericWebhook(svc, testOptions, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, svc.deliveries)
	require.Equal(t, []rejection{{provider: enums.WebhookProviderGeneric, reason: "signature mismatch"}}, svc.rejected)
}

func TestGenericWebhookPropagatesFailures(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"unknown payment": {pkgerrors.New(pkgerrors.CodeNotFound, "payment not found"), http.StatusNotFound},
		"internal":        {pkgerrors.New(pkgerrors.CodeInternal, "boom"), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		svc := &stubProcessor{process: func(ctx context.Context, d internalwebhooks.Delivery) (*internalwebhooks.Result, error) {
			return nil, tc.err
		}}
		body := genericBody(uuid.New(), "payment.succeeded")
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(body))
		req.Header.Set(security.WebhookSignatureHeader, security.SignHex([]byte(body), testOptions.GenericSecret))
		rec := httptest.NewRecorder()
		GenericWebhook(svc, testOptions, nil).ServeHTTP(rec, req)
		require.Equal(t, tc.want, rec.Code, name)
	}
}

func TestGenericWebhookRejectsOversizedBody(t *testing.T) {
	svc := &stubProcessor{}
	opts := testOptions
	opts.MaxBodyBytes = 16
	body := genericBody(uuid.New(), "payment.succeeded")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(body))
	req.Header.Set(security.WebhookSignatureHeader, security.SignHex([]byte(body), opts.GenericSecret))
	rec := httptest.NewRecorder()
	GenericWebhook(svc, opts, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, svc.deliveries)
}

func TestMidtransWebhook(t *testing.T) {
	paymentID := uuid.New()
	sig := midtrans.Signature(paymentID.String(), "200", "8990", testOptions.MidtransServerKey)
	body := fmt.Sprintf(`{"transaction_status":"settlement","transaction_id":"mt-1","status_code":"200","signature_key":%q,"order_id":%q,"gross_amount":"8990","payment_type":"qris"}`, sig, paymentID)

	svc := &stubProcessor{}
	rec := httptest.NewRecorder()
	MidtransWebhook(svc, testOptions, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/midtrans", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.deliveries, 1)
	require.Equal(t, "mt-1", svc.deliveries[0].Evidence.ExternalTransactionID)

	tampered := strings.Replace(body, `"gross_amount":"8990"`, `"gross_amount":"1"`, 1)
	rec = httptest.NewRecorder()
	MidtransWebhook(svc, testOptions, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/midtrans", strings.NewReader(tampered)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Len(t, svc.rejected, 1)
	require.Equal(t, enums.WebhookProviderMidtrans, svc.rejected[0].provider)
}

func TestSquareWebhook(t *testing.T) {
	paymentID := uuid.New()
	body := fmt.Sprintf(`{"event_id":"evt-1","type":"payment.updated","data":{"type":"payment","id":"sq-1","object":{"payment":{"id":"sq-1","status":"COMPLETED","reference_id":%q,"source_type":"CARD"}}}}`, paymentID)

	svc := &stubProcessor{process: func(ctx context.Context, d internalwebhooks.Delivery) (*internalwebhooks.Result, error) {
		return &internalwebhooks.Result{Duplicate: true}, nil
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", strings.NewReader(body))
	req.Header.Set(square.SignatureHeader, square.Sign([]byte(body), testOptions.SquareNotificationURL, testOptions.SquareSignatureKey))
	rec := httptest.NewRecorder()
	SquareWebhook(svc, testOptions, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "evt-1", svc.deliveries[0].EventKey)
	require.Contains(t, rec.Body.String(), `"duplicate":true`)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", strings.NewReader(body))
	req.Header.Set(square.SignatureHeader, "bogus")
	rec = httptest.NewRecorder()
	SquareWebhook(svc, testOptions, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Len(t, svc.deliveries, 1)
}
