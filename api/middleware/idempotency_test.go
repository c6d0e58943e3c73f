package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
)

type memoryIdempotencyStore struct {
	data   map[string]string
	ttls   map[string]time.Duration
	setErr error
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryIdempotencyStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryIdempotencyStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.data[key] = value.(string)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return scope + "#" + id
}

func paymentPost(path, userID, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return withUser(req, userID)
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestIdempotencyTTL(t *testing.T) {
	cases := []struct {
		method, path string
		want         time.Duration
	}{
		{http.MethodPost, "/api/v1/payments", createTTL},
		{http.MethodPost, "/api/v1/payments/", createTTL},
		{http.MethodPost, "/api/v1/payments/2f1c0d8e-51a4-4a53-8d55-0d8b1c3f7a10/cancel", cancelTTL},
		{http.MethodGet, "/api/v1/payments", 0},
		{http.MethodPost, "/api/v1/webhooks/payments", 0},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, idempotencyTTL(tc.method, tc.path), "%s %s", tc.method, tc.path)
	}
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	called := false
	h := Idempotency(newMemoryIdempotencyStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, paymentPost("/api/v1/payments", "user-1", "", `{}`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, called)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newMemoryIdempotencyStore()
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		require.JSONEq(t, `{"amount":"10.00"}`, string(body), "handler still sees the body")
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Debug", "not replayed")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"p1"}`))
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, paymentPost("/api/v1/payments", "user-1", "abc", `{"amount":"10.00"}`))
	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, createTTL, store.ttls[testUser("user-1").String()+"|POST|/api/v1/payments#abc"])

	again := httptest.NewRecorder()
	h.ServeHTTP(again, paymentPost("/api/v1/payments", "user-1", "abc", `{"amount":"10.00"}`))
	require.Equal(t, http.StatusCreated, again.Code)
	require.Equal(t, `{"id":"p1"}`, again.Body.String())
	require.Equal(t, "application/json", again.Header().Get("Content-Type"))
	require.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	require.Empty(t, again.Header().Get("X-Debug"))
	require.Equal(t, 1, calls)
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	h := Idempotency(newMemoryIdempotencyStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	h.ServeHTTP(httptest.NewRecorder(), paymentPost("/api/v1/payments", "user-1", "xyz", `{"amount":"10.00"}`))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, paymentPost("/api/v1/payments", "user-1", "xyz", `{"amount":"99.00"}`))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newMemoryIdempotencyStore()
	var outer http.Handler
	var inner *httptest.ResponseRecorder
	outer = Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inner == nil {
			// a duplicate arrives while the first request is still running
			inner = httptest.NewRecorder()
			outer.ServeHTTP(inner, paymentPost("/api/v1/payments", "user-1", "dup", `{}`))
		}
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	outer.ServeHTTP(rec, paymentPost("/api/v1/payments", "user-1", "dup", `{}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, http.StatusConflict, inner.Code)
	require.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, inner))
}

func TestIdempotencyScopesKeysPerUser(t *testing.T) {
	calls := 0
	h := Idempotency(newMemoryIdempotencyStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for _, user := range []string{"user-1", "user-2"} {
		h.ServeHTTP(httptest.NewRecorder(), paymentPost("/api/v1/payments", user, "shared", `{}`))
	}
	require.Equal(t, 2, calls)
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newMemoryIdempotencyStore()
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, paymentPost("/api/v1/payments/p1/cancel", "user-1", "retry", ``))
	require.Equal(t, http.StatusServiceUnavailable, first.Code)
	require.Empty(t, store.data)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, paymentPost("/api/v1/payments/p1/cancel", "user-1", "retry", ``))
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, 2, calls)
	require.Equal(t, cancelTTL, store.ttls[testUser("user-1").String()+"|POST|/api/v1/payments/p1/cancel#retry"])
}

func TestIdempotencyStoreFailureIsDependencyError(t *testing.T) {
	store := newMemoryIdempotencyStore()
	store.setErr = errors.New("redis down")
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a claimed key")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, paymentPost("/api/v1/payments", "user-1", "k", `{}`))
	require.Equal(t, string(pkgerrors.CodeDependency), errorCode(t, rec))
}

func TestIdempotencySkipsUnguardedRoutes(t *testing.T) {
	called := false
	h := Idempotency(newMemoryIdempotencyStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil))
	require.True(t, called)
}
