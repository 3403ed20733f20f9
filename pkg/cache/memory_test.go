package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type point struct {
	Price float64
	Src   string
}

func newTestCache(clock *fakeClock, opts ...MemoryOption) *MemoryCache {
	opts = append([]MemoryOption{WithMemoryCleanup(0), WithMemoryClock(clock.Now)}, opts...)
	return NewMemoryCache(opts...)
}

func TestMemoryCacheTypedRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(&fakeClock{t: time.Unix(0, 0)})
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", point{Price: 101, Src: "bybit"}, time.Minute))

	var got point
	require.NoError(t, mc.Get(ctx, "k", &got))
	assert.Equal(t, point{Price: 101, Src: "bybit"}, got)

	var wrong string
	assert.ErrorIs(t, mc.Get(ctx, "k", &wrong), ErrTypeMismatch)
}

func TestMemoryCacheExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	mc := newTestCache(clock)
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", 1.5, time.Minute))

	clock.Advance(time.Minute)
	var v float64
	require.NoError(t, mc.Get(ctx, "k", &v), "still valid at exactly expires_at")

	clock.Advance(time.Nanosecond)
	assert.ErrorIs(t, mc.Get(ctx, "k", &v), ErrCacheMiss)
}

func TestMemoryCacheStats(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(0, 0)}
	mc := newTestCache(clock)
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "short", 1, time.Second))
	require.NoError(t, mc.Set(ctx, "long", 2, time.Hour))
	clock.Advance(time.Minute)

	s, err := mc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 2, Valid: 1, Expired: 1}, s)

	assert.Equal(t, 1, mc.CleanupExpired())
	s, _ = mc.Stats(ctx)
	assert.Equal(t, Stats{Total: 1, Valid: 1}, s)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(0, 0)}
	mc := newTestCache(clock, WithMemoryMaxSize(2))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", 1, time.Hour))
	clock.Advance(time.Second)
	require.NoError(t, mc.Set(ctx, "b", 2, time.Hour))
	clock.Advance(time.Second)

	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	clock.Advance(time.Second)
	require.NoError(t, mc.Set(ctx, "c", 3, time.Hour))

	ok, _ := mc.Exists(ctx, "b")
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "a", "c")
	assert.True(t, ok)
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(&fakeClock{t: time.Unix(0, 0)})
	defer mc.Close()

	for _, k := range []string{"quote:binance:BTC:USDT", "quote:bybit:BTC:USDT", "history:yahoo:AAPL"} {
		require.NoError(t, mc.Set(ctx, k, 1, time.Hour))
	}
	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern("quote:")))

	s, _ := mc.Stats(ctx)
	assert.Equal(t, 1, s.Total)
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(time.Millisecond))
	defer mc.Close()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := GenerateKeyWithParams("k", i%4)
			for j := 0; j < 100; j++ {
				_ = mc.Set(ctx, key, j, time.Second)
				var v int
				_ = mc.Get(ctx, key, &v)
			}
		}(i)
	}
	wg.Wait()
}
