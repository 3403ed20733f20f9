// Package cache wraps a pkg/cache backend with read-through semantics.
//
// Concurrent misses on the same key each call fetch and the last write wins.
// Fetches are not coalesced; the TTL bounds how often that can happen.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CoinFlow/internal/domain/repository"
	pkgcache "CoinFlow/pkg/cache"
	"CoinFlow/pkg/logger"
)

type Cache struct {
	store   pkgcache.Service
	logger  *logger.Logger
	metrics repository.Metrics
}

func New(store pkgcache.Service, l *logger.Logger, m repository.Metrics) *Cache {
	return &Cache{
		store:   store,
		logger:  l.With(logger.String("component", "cache")),
		metrics: m,
	}
}

// Invalidate drops every key under namespace, e.g. "quote" or "history".
func (c *Cache) Invalidate(ctx context.Context, namespace string) error {
	if err := c.store.DeleteByPattern(ctx, pkgcache.BuildPattern(Key(namespace)+":")); err != nil {
		return fmt.Errorf("invalidate %s: %w", namespace, err)
	}
	c.logger.Info("cache namespace invalidated", logger.String("namespace", namespace))
	return nil
}

// GetOrFetch returns the cached value for key or calls fetch and stores its
// result for ttl. Errors from fetch are returned as-is and never cached. No
// lock is held while fetch runs.
func GetOrFetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	return GetOrFetchWithTTL(ctx, c, key, func(T) time.Duration { return ttl }, fetch)
}

// GetOrFetchWithTTL is GetOrFetch with the TTL derived from the fetched
// value. A non-positive TTL returns the value without storing it.
func GetOrFetchWithTTL[T any](ctx context.Context, c *Cache, key string, ttlOf func(T) time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var cached T
	err := c.store.Get(ctx, key, &cached)
	if err == nil {
		c.metrics.RecordCache(true)
		return cached, nil
	}
	if !errors.Is(err, pkgcache.ErrCacheMiss) {
		c.logger.Warn("cache read failed, treating as miss", logger.String("key", key), logger.Error(err))
	}
	c.metrics.RecordCache(false)

	v, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	ttl := ttlOf(v)
	if ttl <= 0 {
		return v, nil
	}
	if err := c.store.Set(ctx, key, v, ttl); err != nil {
		c.logger.Warn("cache write failed", logger.String("key", key), logger.Error(err))
	}
	return v, nil
}

// Key builds "<namespace>:<part>:<part>..." keys.
func Key(namespace string, parts ...interface{}) string {
	return pkgcache.GenerateKeyWithParams(namespace, parts...)
}
