package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterBurstThenRefill(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewWithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("binance", 3, 1), "token %d", i)
	}
	assert.False(t, l.Allow("binance", 3, 1))
	assert.True(t, l.Allow("bybit", 3, 1), "buckets are per key")

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, l.Allow("binance", 3, 1))
	assert.False(t, l.Allow("binance", 3, 1))
}

func TestLimiterDisabled(t *testing.T) {
	l := New()
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("steam", 0, 0))
	}
}
