package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLeaseTTL = 55 * time.Minute

// Unlock gives a lease back.
type Unlock func(ctx context.Context) error

// Locker hands out one lease at a time across every housekeeping replica.
// TryLock returns a nil Unlock when another replica holds the lease.
type Locker interface {
	TryLock(ctx context.Context) (Unlock, error)
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
}

// RedisLock stores a random owner token under key. Only the token holder can
// delete it, so a lease that expired and moved to another replica survives a
// late unlock.
type RedisLock struct {
	store leaseStore
	key   string
	ttl   time.Duration
}

func NewRedisLock(store leaseStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis client required for lock")
	case key == "":
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) TryLock(ctx context.Context) (Unlock, error) {
	token := uuid.NewString()
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", l.key, err)
	}
	if !won {
		return nil, nil
	}
	return func(ctx context.Context) error {
		_, err := l.store.ReleaseIfOwner(ctx, l.key, token)
		return err
	}, nil
}
