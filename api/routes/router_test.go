package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/paysettle-backend/internal/payments"
	"github.com/angelmondragon/paysettle-backend/pkg/auth"
	"github.com/angelmondragon/paysettle-backend/pkg/config"
	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubPaymentsService struct {
	payments.Service
	statusCalls int
}

func (s *stubPaymentsService) GetStatus(ctx context.Context, userID, paymentID uuid.UUID) (*payments.StatusResult, error) {
	s.statusCalls++
	return &payments.StatusResult{PaymentID: paymentID, Status: enums.PaymentStatusPending}, nil
}

func (s *stubPaymentsService) Get(ctx context.Context, userID, paymentID uuid.UUID) (*models.PaymentIntent, error) {
	return &models.PaymentIntent{ID: paymentID, UserID: userID, Status: enums.PaymentStatusPending}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "paysettle", ExpirationMinutes: 5},
	}
}

func testKeys(t *testing.T, cfg *config.Config) *auth.Keys {
	t.Helper()
	keys, err := auth.NewKeys(cfg.JWT)
	require.NoError(t, err)
	return keys
}

func TestHealthRoutes(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(Dependencies{Config: cfg, Tokens: testKeys(t, cfg), DB: stubPinger{}, Payments: &stubPaymentsService{}})

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.NotEmpty(t, rec.Header().Get("X-Request-Id"), path)
	}
}

func TestPaymentRoutesRequireAuth(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(Dependencies{Config: cfg, Tokens: testKeys(t, cfg), Payments: &stubPaymentsService{}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+uuid.NewString()+"/status", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPaymentStatusRouteWithToken(t *testing.T) {
	cfg := testConfig()
	svc := &stubPaymentsService{}
	keys := testKeys(t, cfg)
	router := NewRouter(Dependencies{Config: cfg, Tokens: keys, Payments: svc})

	token, err := keys.Issue(auth.Payer{UserID: uuid.New(), Email: "buyer@example.com"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+uuid.NewString()+"/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, svc.statusCalls)
}
