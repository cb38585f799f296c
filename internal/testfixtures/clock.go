package testfixtures

import (
	"sync"
	"time"
)

// Clock is a manual time source. Services built by NewStack share one, so
// window states, grant expiry and session deadlines move together.
type Clock struct {
	mu      sync.RWMutex
	origin  time.Time
	elapsed time.Duration
}

// NewClock starts a clock at origin, or at ReferenceTime when origin is zero.
func NewClock(origin time.Time) *Clock {
	if origin.IsZero() {
		origin = ReferenceTime()
	}
	return &Clock{origin: origin}
}

func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.origin.Add(c.elapsed)
}

// NowFunc exposes Now for constructor injection.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set jumps to t. Moving backwards is allowed so tests can simulate a skewed
// host clock.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.elapsed = t.Sub(c.origin)
	c.mu.Unlock()
}

// Advance moves the clock forward and returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed += d
	return c.origin.Add(c.elapsed)
}

// Elapsed reports how far the clock has moved from its origin.
func (c *Clock) Elapsed() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.elapsed
}
