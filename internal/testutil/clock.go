// Package testutil provides deterministic time and id sources so the same
// operations produce identical documents on every run and every backend.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant returned by a new Clock.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Clock is a thread-safe logical clock. Every call to Now advances it by
// Step, so successive writes get strictly increasing timestamps.
type Clock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewClock creates a clock starting at Epoch and advancing one second per
// call.
func NewClock() *Clock {
	return &Clock{next: Epoch, step: time.Second}
}

// Now returns the current instant and advances the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// Peek returns the instant the next call to Now will return.
func (c *Clock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Reset rewinds the clock to Epoch.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = Epoch
}
