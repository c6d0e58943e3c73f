package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/paysettle-backend/pkg/auth"
	"github.com/angelmondragon/paysettle-backend/pkg/config"
)

func testKeys(t *testing.T) *auth.Keys {
	t.Helper()
	keys, err := auth.NewKeys(config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 10})
	require.NoError(t, err)
	return keys
}

// testUser maps a readable name onto a stable user id.
func testUser(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
}

func withUser(r *http.Request, name string) *http.Request {
	return r.WithContext(WithPayer(r.Context(), auth.Payer{UserID: testUser(name)}))
}

func capturePayer(got *uuid.UUID) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = UserIDFromContext(r.Context())
	})
}

func TestAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	var got uuid.UUID
	handler := Auth(testKeys(t), nil)(capturePayer(&got))

	for _, header := range []string{"", "Bearer invalid", "Bearer ", "Basic dXNlcjpwYXNz", "naked-token"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, header)
		require.Contains(t, rec.Body.String(), `"UNAUTHORIZED"`)
	}
	require.Equal(t, uuid.Nil, got)
}

func TestAuthBindsPayer(t *testing.T) {
	keys := testKeys(t)
	userID := uuid.New()
	token, err := keys.Issue(auth.Payer{UserID: userID})
	require.NoError(t, err)

	var got uuid.UUID
	handler := Auth(keys, nil)(capturePayer(&got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, userID, got)
}

func TestAuthAcceptsQueryTokenForEventStreams(t *testing.T) {
	keys := testKeys(t)
	userID := uuid.New()
	token, err := keys.Issue(auth.Payer{UserID: userID})
	require.NoError(t, err)

	var got uuid.UUID
	handler := Auth(keys, nil)(capturePayer(&got))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payments/x/events?access_token="+token, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, userID, got)
}

func TestPayerFromContext(t *testing.T) {
	_, ok := PayerFromContext(context.Background())
	require.False(t, ok)
	require.Equal(t, uuid.Nil, UserIDFromContext(nil))

	ctx := WithPayer(context.Background(), auth.Payer{UserID: testUser("a"), Email: "a@example.com"})
	p, ok := PayerFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "a@example.com", p.Email)
	require.Equal(t, testUser("a"), UserIDFromContext(ctx))
}
