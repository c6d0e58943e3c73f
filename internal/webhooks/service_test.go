package webhooks

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/paysettle-backend/internal/reconciler"
	"github.com/angelmondragon/paysettle-backend/internal/testdb"
	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
)

type memoryGuard struct {
	mu      sync.Mutex
	keys    map[string]bool
	deleted []string
	err     error
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{keys: map[string]bool{}}
}

func (g *memoryGuard) Claim(_ context.Context, consumer, key string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	full := consumer + ":" + key
	if g.keys[full] {
		return false, nil
	}
	g.keys[full] = true
	return true, nil
}

func (g *memoryGuard) Release(ctx context.Context, consumer, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	full := consumer + ":" + key
	delete(g.keys, full)
	g.deleted = append(g.deleted, full)
	return nil
}

type stubConfirmer struct {
	calls     []reconciler.Confirmation
	confirmFn func(c reconciler.Confirmation) (*reconciler.Outcome, error)
}

func (s *stubConfirmer) Confirm(_ context.Context, c reconciler.Confirmation) (*reconciler.Outcome, error) {
	s.calls = append(s.calls, c)
	if s.confirmFn != nil {
		return s.confirmFn(c)
	}
	return &reconciler.Outcome{PaymentID: c.PaymentID, Status: enums.PaymentStatusPaid, Applied: true}, nil
}

func newTestService(t *testing.T, confirmer *stubConfirmer) (*Service, Repository, *memoryGuard) {
	t.Helper()
	repo := NewRepository(testdb.Open(t))
	guard := newMemoryGuard()
	svc, err := NewService(ServiceParams{Repo: repo, Guard: guard, Confirmer: confirmer})
	require.NoError(t, err)
	return svc, repo, guard
}

func genericDelivery(t *testing.T, paymentID uuid.UUID, event string) Delivery {
	t.Helper()
	d, err := ParseGeneric([]byte(`{"event":"` + event + `","order_nsu":"` + paymentID.String() + `","transaction_nsu":"nsu-1","receipt_url":"https://r.example/1","capture_method":"pix"}`))
	require.NoError(t, err)
	return d
}

func TestProcessConfirmsOnceAndRecordsAudit(t *testing.T) {
	confirmer := &stubConfirmer{}
	svc, repo, _ := newTestService(t, confirmer)
	ctx := context.Background()
	paymentID := uuid.New()
	d := genericDelivery(t, paymentID, "payment.succeeded")

	res, err := svc.Process(ctx, d)
	require.NoError(t, err)
	require.False(t, res.Duplicate)
	require.True(t, res.Outcome.Applied)
	require.Len(t, confirmer.calls, 1)
	call := confirmer.calls[0]
	require.Equal(t, paymentID, call.PaymentID)
	require.Equal(t, enums.ConfirmationSourceWebhook, call.Source)
	require.Equal(t, enums.PaymentEventSucceeded, call.Event)
	require.Equal(t, "nsu-1", call.Evidence.ExternalTransactionID)
	require.Equal(t, "https://r.example/1", call.Evidence.ReceiptURL)
	require.Equal(t, "pix", call.Evidence.CaptureMethod)

	again, err := svc.Process(ctx, d)
	require.NoError(t, err)
	require.True(t, again.Duplicate)
	require.Len(t, confirmer.calls, 1)

	stored, err := repo.Find(ctx, enums.WebhookProviderGeneric, d.EventKey)
	require.NoError(t, err)
	require.True(t, stored.SignatureValid)
	require.NotNil(t, stored.ProcessedAt)
	require.Nil(t, stored.ProcessingError)
	require.Equal(t, paymentID, *stored.PaymentID)
}

func TestProcessFailureReleasesGuardForRetry(t *testing.T) {
	attempts := 0
	confirmer := &stubConfirmer{confirmFn: func(c reconciler.Confirmation) (*reconciler.Outcome, error) {
		attempts++
		if attempts == 1 {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "db down")
		}
		return &reconciler.Outcome{PaymentID: c.PaymentID, Status: enums.PaymentStatusPaid, Applied: true}, nil
	}}
	svc, repo, guard := newTestService(t, confirmer)
	ctx := context.Background()
	d := genericDelivery(t, uuid.New(), "payment.succeeded")

	_, err := svc.Process(ctx, d)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
	require.Len(t, guard.deleted, 1)

	stored, err := repo.Find(ctx, d.Provider, d.EventKey)
	require.NoError(t, err)
	require.NotNil(t, stored.ProcessingError)
	require.Contains(t, *stored.ProcessingError, "db down")
	require.Nil(t, stored.ProcessedAt)

	res, err := svc.Process(ctx, d)
	require.NoError(t, err)
	require.True(t, res.Outcome.Applied)

	stored, err = repo.Find(ctx, d.Provider, d.EventKey)
	require.NoError(t, err)
	require.NotNil(t, stored.ProcessedAt)
	require.Nil(t, stored.ProcessingError)
}

func TestProcessSenderHangupDoesNotStrandRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	attempts := 0
	confirmer := &stubConfirmer{confirmFn: func(c reconciler.Confirmation) (*reconciler.Outcome, error) {
		attempts++
		if attempts == 1 {
			cancel()
			return nil, context.Canceled
		}
		return &reconciler.Outcome{PaymentID: c.PaymentID, Status: enums.PaymentStatusPaid, Applied: true}, nil
	}}
	svc, repo, guard := newTestService(t, confirmer)
	d := genericDelivery(t, uuid.New(), "payment.succeeded")

	_, err := svc.Process(ctx, d)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, guard.deleted, 1)

	res, err := svc.Process(context.Background(), d)
	require.NoError(t, err)
	require.False(t, res.Duplicate)
	require.True(t, res.Outcome.Applied)
	require.Len(t, confirmer.calls, 2)

	stored, err := repo.Find(context.Background(), d.Provider, d.EventKey)
	require.NoError(t, err)
	require.NotNil(t, stored.ProcessedAt)
}

func TestProcessRetriesDeliveryWhoseClaimOutlivedAttempt(t *testing.T) {
	confirmer := &stubConfirmer{}
	svc, _, guard := newTestService(t, confirmer)
	ctx := context.Background()
	d := genericDelivery(t, uuid.New(), "payment.succeeded")

	// a previous attempt claimed the key and died before finishing
	guard.keys[consumerName(d.Provider)+":"+d.EventKey] = true

	res, err := svc.Process(ctx, d)
	require.NoError(t, err)
	require.False(t, res.Duplicate)
	require.Len(t, confirmer.calls, 1)

	again, err := svc.Process(ctx, d)
	require.NoError(t, err)
	require.True(t, again.Duplicate)
	require.Len(t, confirmer.calls, 1)
}

func TestProcessNotFoundPropagates(t *testing.T) {
	confirmer := &stubConfirmer{confirmFn: func(reconciler.Confirmation) (*reconciler.Outcome, error) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}}
	svc, _, _ := newTestService(t, confirmer)

	_, err := svc.Process(context.Background(), genericDelivery(t, uuid.New(), "payment.failed"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestProcessIgnoresUnknownEvents(t *testing.T) {
	confirmer := &stubConfirmer{}
	svc, repo, _ := newTestService(t, confirmer)
	d := genericDelivery(t, uuid.New(), "payment.authorized")
	require.False(t, d.Actionable())

	res, err := svc.Process(context.Background(), d)
	require.NoError(t, err)
	require.True(t, res.Ignored)
	require.Empty(t, confirmer.calls)

	stored, err := repo.Find(context.Background(), d.Provider, d.EventKey)
	require.NoError(t, err)
	require.NotNil(t, stored.ProcessedAt)
}

func TestProcessGuardError(t *testing.T) {
	svc, _, guard := newTestService(t, &stubConfirmer{})
	guard.err = errors.New("redis unavailable")

	_, err := svc.Process(context.Background(), genericDelivery(t, uuid.New(), "payment.succeeded"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestRejectRecordsInvalidSignature(t *testing.T) {
	svc, repo, _ := newTestService(t, &stubConfirmer{})
	ctx := context.Background()
	payload := []byte("not json at all")

	svc.Reject(ctx, enums.WebhookProviderGeneric, payload, "invalid signature")
	svc.Reject(ctx, enums.WebhookProviderGeneric, payload, "invalid signature")

	var rows []models.PaymentWebhookEvent
	require.NoError(t, repo.(*repository).db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.False(t, rows[0].SignatureValid)
	require.Equal(t, "invalid signature", *rows[0].ProcessingError)
	require.Equal(t, `"not json at all"`, string(rows[0].Payload))
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Repo: NewRepository(nil), Guard: newMemoryGuard()})
	require.Error(t, err)
}
