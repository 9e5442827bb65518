// Package idempotency lets Pub/Sub consumers handle each event at most once
// per claim window, even though delivery is at-least-once.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// store is the part of the Redis client a claim needs.
type store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Claims records which events each consumer has taken. Consumers are tracked
// independently, so notifications and analytics can both handle one event.
type Claims struct {
	store store
	ttl   time.Duration
	now   func() time.Time
}

func NewClaims(s store, ttl time.Duration) (*Claims, error) {
	switch {
	case s == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Claims{store: s, ttl: ttl, now: time.Now}, nil
}

// Claim takes eventID for consumer. fresh is false when an earlier delivery
// already holds the claim and the caller should skip the event.
func (c *Claims) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (fresh bool, err error) {
	key, err := c.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	fresh, err = c.store.SetNX(ctx, key, c.now().UTC().Format(time.RFC3339), c.ttl)
	if err != nil {
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return fresh, nil
}

// Release gives a claim back so the next delivery is handled again.
func (c *Claims) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := c.key(consumer, eventID)
	if err != nil {
		return err
	}
	return c.store.Del(ctx, key)
}

// Once runs fn under a claim. A failing fn gives the claim back, so a nacked
// message is retried on redelivery. ran reports whether fn was invoked.
func (c *Claims) Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (ran bool, err error) {
	fresh, err := c.Claim(ctx, consumer, eventID)
	if err != nil || !fresh {
		return false, err
	}
	if err = fn(ctx); err == nil {
		return true, nil
	}
	if relErr := c.Release(ctx, consumer, eventID); relErr != nil {
		err = multierr.Append(err, fmt.Errorf("release claim %s: %w", eventID, relErr))
	}
	return true, err
}

// key renders bk:idempotency:evt:<consumer>:<event id>.
func (c *Claims) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return c.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
