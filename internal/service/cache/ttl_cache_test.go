package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"CoinFlow/internal/domain/models"
	pkgcache "CoinFlow/pkg/cache"
	"CoinFlow/pkg/logger"
	"CoinFlow/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newCache(clk *clock) *Cache {
	store := pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(0), pkgcache.WithMemoryClock(clk.now))
	return New(store, logger.Nop(), metrics.Nop{})
}

func TestGetOrFetchHitsWithinTTL(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	c := newCache(clk)
	var calls int32
	fetch := func(context.Context) (models.Quote, error) {
		atomic.AddInt32(&calls, 1)
		return models.Quote{Source: "binance", Price: 100}, nil
	}

	key := Key("quote", "binance", "BTC", "USD")
	q1, err := GetOrFetch(context.Background(), c, key, 60*time.Second, fetch)
	require.NoError(t, err)
	clk.advance(59 * time.Second)
	q2, err := GetOrFetch(context.Background(), c, key, 60*time.Second, fetch)
	require.NoError(t, err)

	assert.Equal(t, q1, q2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGetOrFetchRefetchesAfterExpiry(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	c := newCache(clk)
	var calls int32
	fetch := func(context.Context) (float64, error) {
		return float64(atomic.AddInt32(&calls, 1)), nil
	}

	v, _ := GetOrFetch(context.Background(), c, "k", time.Minute, fetch)
	assert.Equal(t, 1.0, v)
	clk.advance(61 * time.Second)
	v, _ = GetOrFetch(context.Background(), c, "k", time.Minute, fetch)
	assert.Equal(t, 2.0, v)
}

func TestGetOrFetchDoesNotCacheErrors(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	c := newCache(clk)
	var calls int32
	fetch := func(context.Context) (float64, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return 0, models.ErrTimeout
		}
		return 42, nil
	}

	_, err := GetOrFetch(context.Background(), c, "k", time.Minute, fetch)
	assert.ErrorIs(t, err, models.ErrTimeout)

	v, err := GetOrFetch(context.Background(), c, "k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
	assert.EqualValues(t, 2, calls)
}

type brokenStore struct{ pkgcache.Service }

func (brokenStore) Get(context.Context, string, interface{}) error {
	return errors.New("connection refused")
}

func (brokenStore) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("connection refused")
}

func TestGetOrFetchSurvivesBrokenStore(t *testing.T) {
	c := New(brokenStore{}, logger.Nop(), metrics.Nop{})
	v, err := GetOrFetch(context.Background(), c, "k", time.Minute, func(context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
}

func TestGetOrFetchCancellationIsPerCaller(t *testing.T) {
	c := newCache(&clock{t: time.Unix(0, 0)})
	release := make(chan struct{})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := GetOrFetch(cancelled, c, "k", time.Minute, func(ctx context.Context) (int, error) {
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)

	done := make(chan int)
	go func() {
		v, _ := GetOrFetch(context.Background(), c, "k", time.Minute, func(ctx context.Context) (int, error) {
			<-release
			return 7, ctx.Err()
		})
		done <- v
	}()
	close(release)
	assert.Equal(t, 7, <-done)
}

func TestInvalidateDropsOnlyNamespace(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	c := newCache(clk)
	var calls int32
	fetch := func(context.Context) (float64, error) {
		atomic.AddInt32(&calls, 1)
		return 1, nil
	}
	quote := Key("quote", "binance", "BTC", "USD")
	history := Key("history", "BTC", "USD", 90)
	quotes := Key("quotes", "x")
	for _, k := range []string{quote, history, quotes} {
		_, err := GetOrFetch(context.Background(), c, k, time.Hour, fetch)
		require.NoError(t, err)
	}

	require.NoError(t, c.Invalidate(context.Background(), "quote"))

	for _, k := range []string{quote, history, quotes} {
		_, err := GetOrFetch(context.Background(), c, k, time.Hour, fetch)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls), "only the quote key is refetched")
}

func TestGetOrFetchWithTTLFromValue(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	c := newCache(clk)
	var calls int32
	age := 4 * time.Minute
	fetch := func(context.Context) (models.Quote, error) {
		atomic.AddInt32(&calls, 1)
		return models.Quote{Source: "finnhub", Price: 190, Timestamp: clk.now().Add(-age)}, nil
	}
	ttlOf := func(q models.Quote) time.Duration { return 5*time.Minute - clk.now().Sub(q.Timestamp) }

	key := Key("quote", "finnhub", "AAPL", "USD")
	_, err := GetOrFetchWithTTL(context.Background(), c, key, ttlOf, fetch)
	require.NoError(t, err)
	clk.advance(59 * time.Second)
	_, err = GetOrFetchWithTTL(context.Background(), c, key, ttlOf, fetch)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	clk.advance(2 * time.Second)
	_, err = GetOrFetchWithTTL(context.Background(), c, key, ttlOf, fetch)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "expired with the quote's freshness")

	age = 6 * time.Minute
	clk.advance(2 * time.Minute)
	for range 2 {
		_, err = GetOrFetchWithTTL(context.Background(), c, key, ttlOf, fetch)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls), "stale values are not stored")
}
