package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss    = errors.New("cache: key not found")
	ErrTypeMismatch = errors.New("cache: stored value has a different type")
)

// Service defines cache operations interface.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	// Get decodes the value into dest, which must be a non-nil pointer.
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
}

// Stats counts entries currently held by a backend.
type Stats struct {
	Total   int `json:"total_entries"`
	Valid   int `json:"valid_entries"`
	Expired int `json:"expired_entries"`
}

// StatsProvider is implemented by backends that can report Stats.
type StatsProvider interface {
	Stats(ctx context.Context) (Stats, error)
}
