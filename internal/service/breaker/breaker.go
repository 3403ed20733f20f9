// Package breaker implements a per-provider consecutive-failure circuit breaker.
package breaker

import (
	"sync"
	"time"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "closed"
}

type circuit struct {
	failures  int
	openUntil time.Time
	trial     bool
}

// Set tracks one circuit per provider name.
type Set struct {
	mu        sync.Mutex
	circuits  map[string]*circuit
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

type Option func(*Set)

func WithClock(now func() time.Time) Option {
	return func(s *Set) { s.now = now }
}

// New opens a provider's circuit after threshold consecutive failures and
// keeps it open for cooldown. Afterwards a single trial call is let through.
func New(threshold int, cooldown time.Duration, opts ...Option) *Set {
	s := &Set{
		circuits:  make(map[string]*circuit),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow reports whether a call to name may proceed.
func (s *Set) Allow(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.circuits[name]
	if !ok || c.failures < s.threshold {
		return true
	}
	if s.now().Before(c.openUntil) {
		return false
	}
	if c.trial {
		return false
	}
	c.trial = true
	return true
}

func (s *Set) Success(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.circuits, name)
}

// Abort gives back a half-open trial whose call never reached the provider.
func (s *Set) Abort(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.circuits[name]; ok {
		c.trial = false
	}
}

// Failure records a failed call and reports whether the circuit is now open.
func (s *Set) Failure(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.circuits[name]
	if !ok {
		c = &circuit{}
		s.circuits[name] = c
	}
	c.failures++
	c.trial = false
	if c.failures >= s.threshold {
		c.openUntil = s.now().Add(s.cooldown)
		return true
	}
	return false
}

func (s *Set) State(name string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.circuits[name]
	if !ok || c.failures < s.threshold {
		return Closed
	}
	if s.now().Before(c.openUntil) {
		return Open
	}
	return HalfOpen
}
