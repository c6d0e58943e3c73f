package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 10 * time.Minute

// ReleaseFunc gives back a lease won by TryLock.
type ReleaseFunc func(ctx context.Context) error

// Lock elects a single cron worker per cycle.
type Lock interface {
	TryLock(ctx context.Context) (release ReleaseFunc, won bool, err error)
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(name string) string
}

// RedisLock leases a key with SET NX. Each win stores a fresh token so a
// worker whose lease expired cannot free a lease someone else now holds.
type RedisLock struct {
	store leaseStore
	key   string
	ttl   time.Duration
}

func NewRedisLock(store leaseStore, name string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis store required for lock")
	case name == "":
		return nil, errors.New("lock name is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: store.LockKey(name), ttl: ttl}, nil
}

func (l *RedisLock) TryLock(ctx context.Context) (ReleaseFunc, bool, error) {
	token := uuid.NewString()
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("lease %s: %w", l.key, err)
	}
	if !won {
		return nil, false, nil
	}
	return func(ctx context.Context) error { return l.release(ctx, token) }, true, nil
}

func (l *RedisLock) release(ctx context.Context, token string) error {
	holder, err := l.store.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read holder of %s: %w", l.key, err)
	}
	if holder != token {
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
