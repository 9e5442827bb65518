package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLeases struct {
	values map[string]string
}

func (m *memoryLeases) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryLeases) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	if m.values[key] != owner {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	leases := &memoryLeases{values: map[string]string{}}
	first, err := NewRedisLock(leases, "bukkus:housekeeping:lock:test", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(leases, "bukkus:housekeeping:lock:test", 0)
	require.NoError(t, err)
	ctx := context.Background()

	unlock, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.NotNil(t, unlock)

	blocked, err := second.TryLock(ctx)
	require.NoError(t, err)
	assert.Nil(t, blocked)

	require.NoError(t, unlock(ctx))
	assert.Empty(t, leases.values)

	again, err := second.TryLock(ctx)
	require.NoError(t, err)
	assert.NotNil(t, again)
}

func TestUnlockAfterExpiryLeavesNewHolderAlone(t *testing.T) {
	leases := &memoryLeases{values: map[string]string{}}
	lock, err := NewRedisLock(leases, "k", time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	unlock, err := lock.TryLock(ctx)
	require.NoError(t, err)
	leases.values["k"] = "someone-else"

	require.NoError(t, unlock(ctx))
	assert.Equal(t, "someone-else", leases.values["k"])
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "k", time.Minute)
	assert.Error(t, err)
	_, err = NewRedisLock(&memoryLeases{}, "", time.Minute)
	assert.Error(t, err)
}
