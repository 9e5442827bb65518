package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bukkus/bukkus-backend/pkg/config"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	client := &Client{store: fake}

	allowed, count, err := client.FixedWindowAllow(ctx, "transfers:acct", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.EqualValues(t, 1, count)
	require.Len(t, fake.expires, 1)
	assert.Equal(t, "bk:rate_limit:transfers:acct", fake.expires[0].key)

	allowed, count, err = client.FixedWindowAllow(ctx, "transfers:acct", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.EqualValues(t, 2, count)
	assert.Len(t, fake.expires, 1, "expire is only set on the first increment")

	allowed, _, err = client.FixedWindowAllow(ctx, "transfers:acct", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestSetNXAndDel(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	client := &Client{store: fake}

	set, err := client.SetNX(ctx, "k", "v", time.Minute)
	require.NoError(t, err)
	assert.True(t, set)
	assert.Equal(t, time.Minute, fake.keys["k"].ttl)

	set, err = client.SetNX(ctx, "k", "v", time.Minute)
	require.NoError(t, err)
	assert.False(t, set)

	require.NoError(t, client.Set(ctx, "k", "w", time.Minute))
	got, err := client.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "w", got)

	require.NoError(t, client.Del(ctx, "k"))
	_, err = client.Get(ctx, "k")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "bk:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "bk:rate_limit:scope", client.RateLimitKey("scope"))
	assert.Equal(t, "bk:idempotency:id", client.IdempotencyKey("", "id"), "empty parts are skipped")
	assert.Equal(t, "bk:lock:housekeeping:prod", client.LockKey("housekeeping", "prod"))
}

func TestReleaseIfOwner(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	client := &Client{store: fake}

	ok, err := client.SetNX(ctx, "bk:lock:housekeeping:test", "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := client.ReleaseIfOwner(ctx, "bk:lock:housekeeping:test", "owner-b")
	require.NoError(t, err)
	assert.False(t, released)
	assert.Contains(t, fake.keys, "bk:lock:housekeeping:test")

	released, err = client.ReleaseIfOwner(ctx, "bk:lock:housekeeping:test", "owner-a")
	require.NoError(t, err)
	assert.True(t, released)
	assert.NotContains(t, fake.keys, "bk:lock:housekeeping:test")
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	require.Error(t, client.Ping(context.Background()))
	_, err := client.Get(context.Background(), "k")
	require.ErrorIs(t, err, ErrNotInitialized)
	_, _, err = client.FixedWindowAllow(context.Background(), "s", 1, time.Second)
	require.ErrorIs(t, err, ErrNotInitialized)
	require.NoError(t, client.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 3})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 3, opts.DB)
}

// fakeRedis keeps values with the ttl they were written with. Counters live
// apart from values, as INCR on a missing key starts at zero.
type fakeRedis struct {
	keys     map[string]fakeEntry
	counters map[string]int64
	expires  []expireCall
}

type fakeEntry struct {
	value string
	ttl   time.Duration
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: map[string]fakeEntry{}, counters: map[string]int64{}}
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

// Eval only understands releaseIfOwner.
func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	if script != releaseIfOwner || len(keys) != 1 || len(args) != 1 {
		cmd.SetErr(fmt.Errorf("unexpected script call"))
		return cmd
	}
	entry, ok := f.keys[keys[0]]
	if !ok || entry.value != fmt.Sprint(args[0]) {
		cmd.SetVal(int64(0))
		return cmd
	}
	delete(f.keys, keys[0])
	cmd.SetVal(int64(1))
	return cmd
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if entry, ok := f.keys[key]; ok {
		return redis.NewStringResult(entry.value, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, taken := f.keys[key]; taken {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = fakeEntry{value: fmt.Sprint(value), ttl: ttl}
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.keys[key] = fakeEntry{value: fmt.Sprint(value), ttl: ttl}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.counters[key]++
	return redis.NewIntResult(f.counters[key], nil)
}

func (f *fakeRedis) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.expires = append(f.expires, expireCall{key: key, ttl: ttl})
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := f.keys[key]; ok {
			delete(f.keys, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}
