// Package idempotency claims webhook deliveries so each provider event is
// acted on once per TTL even when the provider retries it.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/paysettle-backend/pkg/redis"
)

const scopePrefix = "webhook:"

var (
	errNoConsumer = errors.New("consumer name is required")
	errNoKey      = errors.New("event key is required")
)

type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

// NewGuard returns a Guard whose claims expire after ttl. Zero keeps them
// until they are released.
func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl, now: time.Now}, nil
}

// Claim reports true for the first caller presenting (consumer, key) and
// false for every repeat while the claim lives.
func (g *Guard) Claim(ctx context.Context, consumer, key string) (bool, error) {
	full, err := g.key(consumer, key)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, full, g.now().UTC().Format(time.RFC3339), g.ttl)
}

// Release drops a claim so the provider's next retry is processed.
func (g *Guard) Release(ctx context.Context, consumer, key string) error {
	full, err := g.key(consumer, key)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, full)
}

func (g *Guard) key(consumer, key string) (string, error) {
	if consumer == "" {
		return "", errNoConsumer
	}
	if key = strings.TrimSpace(key); key == "" {
		return "", errNoKey
	}
	return g.store.IdempotencyKey(scopePrefix+consumer, key), nil
}
