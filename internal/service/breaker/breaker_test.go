package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	now := time.Unix(0, 0)
	s := New(3, time.Minute, WithClock(func() time.Time { return now }))

	assert.False(t, s.Failure("htx"))
	assert.False(t, s.Failure("htx"))
	assert.True(t, s.Allow("htx"))
	assert.True(t, s.Failure("htx"))

	assert.Equal(t, Open, s.State("htx"))
	assert.False(t, s.Allow("htx"))
	assert.True(t, s.Allow("kucoin"))
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	now := time.Unix(0, 0)
	s := New(1, time.Minute, WithClock(func() time.Time { return now }))
	s.Failure("gateio")

	now = now.Add(time.Minute)
	assert.Equal(t, HalfOpen, s.State("gateio"))
	assert.True(t, s.Allow("gateio"))
	assert.False(t, s.Allow("gateio"), "only one trial while half-open")

	s.Failure("gateio")
	assert.Equal(t, Open, s.State("gateio"))

	now = now.Add(2 * time.Minute)
	assert.True(t, s.Allow("gateio"))
	s.Success("gateio")
	assert.Equal(t, Closed, s.State("gateio"))
	assert.True(t, s.Allow("gateio"))
}

func TestBreakerAbortReturnsTrial(t *testing.T) {
	now := time.Unix(0, 0)
	s := New(1, time.Minute, WithClock(func() time.Time { return now }))
	s.Failure("bybit")
	now = now.Add(time.Minute)

	assert.True(t, s.Allow("bybit"))
	assert.False(t, s.Allow("bybit"))
	s.Abort("bybit")
	assert.True(t, s.Allow("bybit"))
}
