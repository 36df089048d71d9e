package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRedisLockSingleOwner(t *testing.T) {
	t.Parallel()

	store := newOwnedKeys()
	key := "fl:lock:" + LockName("test")
	first, err := NewRedisLock(store, key, time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, key, time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, second.Release(context.Background()))
	require.Contains(t, store.values, key)

	require.NoError(t, first.Release(context.Background()))
	require.NotContains(t, store.values, key)

	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockLeavesTakenOverKey(t *testing.T) {
	t.Parallel()

	store := newOwnedKeys()
	lock, err := NewRedisLock(store, "fl:lock:cron-worker:prod", time.Minute)
	require.NoError(t, err)
	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// the key expired and another worker now holds it
	store.values["fl:lock:cron-worker:prod"] = "other-worker"
	require.NoError(t, lock.Release(context.Background()))
	require.Equal(t, "other-worker", store.values["fl:lock:cron-worker:prod"])
}

func TestRedisLockReleaseError(t *testing.T) {
	t.Parallel()

	store := newOwnedKeys()
	lock, err := NewRedisLock(store, "k", time.Minute)
	require.NoError(t, err)
	_, err = lock.Acquire(context.Background())
	require.NoError(t, err)

	store.releaseErr = errors.New("connection refused")
	require.ErrorContains(t, lock.Release(context.Background()), "connection refused")
}

func TestNewRedisLockValidates(t *testing.T) {
	t.Parallel()

	_, err := NewRedisLock(nil, "key", time.Minute)
	require.Error(t, err)
	_, err = NewRedisLock(newOwnedKeys(), "", time.Minute)
	require.Error(t, err)

	lock, err := NewRedisLock(newOwnedKeys(), "key", 0)
	require.NoError(t, err)
	require.Equal(t, fallbackLockTTL, lock.ttl)
	require.Equal(t, "cron-worker:local", LockName(""))
}

type ownedKeys struct {
	values     map[string]string
	releaseErr error
}

func newOwnedKeys() *ownedKeys {
	return &ownedKeys{values: map[string]string{}}
}

func (o *ownedKeys) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := o.values[key]; ok {
		return false, nil
	}
	o.values[key] = value.(string)
	return true, nil
}

func (o *ownedKeys) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	if o.releaseErr != nil {
		return false, o.releaseErr
	}
	if o.values[key] != owner {
		return false, nil
	}
	delete(o.values, key)
	return true, nil
}
