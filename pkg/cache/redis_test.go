package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, "test"), mr
}

func TestRedisCacheRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	rc, mr := newTestRedis(t)

	require.NoError(t, rc.Set(ctx, "quote:BTC", point{Price: 50000, Src: "binance"}, time.Minute))
	assert.True(t, mr.Exists("test:quote:BTC"))

	var got point
	require.NoError(t, rc.Get(ctx, "quote:BTC", &got))
	assert.Equal(t, point{Price: 50000, Src: "binance"}, got)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, rc.Get(ctx, "quote:BTC", &got), ErrCacheMiss)
}

func TestRedisCacheTypeMismatch(t *testing.T) {
	ctx := context.Background()
	rc, _ := newTestRedis(t)

	require.NoError(t, rc.Set(ctx, "k", "not a point", time.Minute))
	var got point
	assert.ErrorIs(t, rc.Get(ctx, "k", &got), ErrTypeMismatch)
}

func TestRedisCacheDeleteByPatternAndStats(t *testing.T) {
	ctx := context.Background()
	rc, _ := newTestRedis(t)

	for _, k := range []string{"quote:a", "quote:b", "hist:a"} {
		require.NoError(t, rc.Set(ctx, k, 1.0, time.Minute))
	}
	st, err := rc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)

	require.NoError(t, rc.DeleteByPattern(ctx, BuildPattern("quote:")))
	ok, err := rc.Exists(ctx, "quote:a")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = rc.Exists(ctx, "hist:a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLayeredCachePromotesToMemory(t *testing.T) {
	ctx := context.Background()
	rc, mr := newTestRedis(t)
	lc := NewLayeredCache(rc, WithLayeredMemory(WithMemoryCleanup(0)))
	t.Cleanup(func() { _ = lc.Close() })

	require.NoError(t, rc.Set(ctx, "quote:ETH", point{Price: 3000, Src: "bybit"}, time.Minute))

	var got point
	require.NoError(t, lc.Get(ctx, "quote:ETH", &got))
	assert.Equal(t, 3000.0, got.Price)

	// Served from L1 once redis forgets it.
	mr.FlushAll()
	got = point{}
	require.NoError(t, lc.Get(ctx, "quote:ETH", &got))
	assert.Equal(t, "bybit", got.Src)

	st, err := lc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Valid)
}
