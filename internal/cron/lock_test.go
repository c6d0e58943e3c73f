package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const workerKey = "ps:lock:cron-worker"

type leaseMap struct {
	vals   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newLeaseMap() *leaseMap {
	return &leaseMap{vals: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *leaseMap) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, taken := m.vals[key]; taken {
		return false, nil
	}
	m.vals[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *leaseMap) Get(_ context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.vals[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *leaseMap) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.vals, k)
	}
	return nil
}

func (m *leaseMap) LockKey(name string) string { return "ps:lock:" + name }

func TestRedisLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := newLeaseMap()
	a, err := NewRedisLock(store, "cron-worker", 0)
	require.NoError(t, err)
	b, err := NewRedisLock(store, "cron-worker", time.Minute)
	require.NoError(t, err)

	releaseA, won, err := a.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, won)
	require.Equal(t, defaultLockTTL, store.ttls[workerKey])

	releaseB, won, err := b.TryLock(ctx)
	require.NoError(t, err)
	require.False(t, won)
	require.Nil(t, releaseB)

	require.NoError(t, releaseA(ctx))
	require.NotContains(t, store.vals, workerKey)

	_, won, err = b.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, won)
	require.Equal(t, time.Minute, store.ttls[workerKey])
}

func TestRedisLockReleaseLeavesNewHolderAlone(t *testing.T) {
	ctx := context.Background()
	store := newLeaseMap()
	lock, err := NewRedisLock(store, "cron-worker", time.Second)
	require.NoError(t, err)

	release, won, err := lock.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, won)

	// lease expired and another worker took it
	store.vals[workerKey] = "someone-else"
	require.NoError(t, release(ctx))
	require.Equal(t, "someone-else", store.vals[workerKey])

	delete(store.vals, workerKey)
	require.NoError(t, release(ctx))

	store.getErr = errors.New("conn reset")
	require.ErrorContains(t, release(ctx), "conn reset")
}

func TestNewRedisLockValidation(t *testing.T) {
	_, err := NewRedisLock(nil, "x", time.Second)
	require.Error(t, err)
	_, err = NewRedisLock(newLeaseMap(), "", time.Second)
	require.Error(t, err)
}
