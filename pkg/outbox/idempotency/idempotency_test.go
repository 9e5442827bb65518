package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	held    map[string]any
	ttls    []time.Duration
	setErr  error
	delErr  error
	deleted []string
}

func newMemStore() *memStore {
	return &memStore{held: map[string]any{}}
}

func (m *memStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.ttls = append(m.ttls, ttl)
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.held[key]; ok {
		return false, nil
	}
	m.held[key] = value
	return true, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	if m.delErr != nil {
		return m.delErr
	}
	for _, key := range keys {
		delete(m.held, key)
		m.deleted = append(m.deleted, key)
	}
	return nil
}

func (m *memStore) IdempotencyKey(scope, id string) string {
	return "bk:idempotency:" + scope + ":" + id
}

func newClaims(t *testing.T, s *memStore) *Claims {
	t.Helper()
	c, err := NewClaims(s, 24*time.Hour)
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC) }
	return c
}

func TestClaimIsPerConsumer(t *testing.T) {
	s := newMemStore()
	claims := newClaims(t, s)
	ctx := context.Background()
	id := uuid.New()

	fresh, err := claims.Claim(ctx, "notifications", id)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, "2026-04-01T08:00:00Z", s.held["bk:idempotency:evt:notifications:"+id.String()])
	assert.Equal(t, 24*time.Hour, s.ttls[0])

	fresh, err = claims.Claim(ctx, "notifications", id)
	require.NoError(t, err)
	assert.False(t, fresh)

	fresh, err = claims.Claim(ctx, "analytics", id)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestReleaseReopensTheEvent(t *testing.T) {
	s := newMemStore()
	claims := newClaims(t, s)
	ctx := context.Background()
	id := uuid.New()

	_, err := claims.Claim(ctx, "notifications", id)
	require.NoError(t, err)
	require.NoError(t, claims.Release(ctx, "notifications", id))
	assert.Equal(t, []string{"bk:idempotency:evt:notifications:" + id.String()}, s.deleted)

	fresh, err := claims.Claim(ctx, "notifications", id)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestClaimRejectsBadInput(t *testing.T) {
	s := newMemStore()
	claims := newClaims(t, s)
	ctx := context.Background()

	_, err := claims.Claim(ctx, "", uuid.New())
	assert.EqualError(t, err, "consumer name is required")
	_, err = claims.Claim(ctx, "analytics", uuid.Nil)
	assert.EqualError(t, err, "event id is required")

	s.setErr = errors.New("redis down")
	_, err = claims.Claim(ctx, "analytics", uuid.New())
	assert.ErrorContains(t, err, "redis down")

	_, err = NewClaims(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewClaims(s, -time.Second)
	assert.Error(t, err)
}

func TestOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("runs each event once", func(t *testing.T) {
		claims := newClaims(t, newMemStore())
		id := uuid.New()
		calls := 0
		fn := func(context.Context) error { calls++; return nil }

		ran, err := claims.Once(ctx, "analytics", id, fn)
		require.NoError(t, err)
		assert.True(t, ran)
		ran, err = claims.Once(ctx, "analytics", id, fn)
		require.NoError(t, err)
		assert.False(t, ran)
		assert.Equal(t, 1, calls)
	})

	t.Run("failure releases the claim", func(t *testing.T) {
		s := newMemStore()
		claims := newClaims(t, s)
		boom := errors.New("bigquery down")

		ran, err := claims.Once(ctx, "analytics", uuid.New(), func(context.Context) error { return boom })
		assert.True(t, ran)
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, s.held)
	})

	t.Run("release failure is reported with the cause", func(t *testing.T) {
		s := newMemStore()
		s.delErr = errors.New("conn reset")
		claims := newClaims(t, s)
		boom := errors.New("bigquery down")

		_, err := claims.Once(ctx, "analytics", uuid.New(), func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.ErrorContains(t, err, "conn reset")
	})

	t.Run("no claim means no run", func(t *testing.T) {
		s := newMemStore()
		s.setErr = errors.New("redis down")
		claims := newClaims(t, s)

		ran, err := claims.Once(ctx, "analytics", uuid.New(), func(context.Context) error {
			t.Fatal("fn ran without a claim")
			return nil
		})
		assert.False(t, ran)
		assert.Error(t, err)
	})
}
