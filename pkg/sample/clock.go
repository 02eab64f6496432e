package sample

import (
	"sync"
	"time"
)

// Clock supplies timestamps and deadline waits to the sampler and monitor.
type Clock interface {
	Now() time.Time
	// SleepUntil blocks until t. It returns immediately if t has passed.
	SleepUntil(t time.Time)
}

// SystemClock is the wall clock. time.Now carries a monotonic reading, so
// deadlines computed from it are immune to wall-clock steps.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// SleepUntil yields to the scheduler until t.
func (SystemClock) SleepUntil(t time.Time) {
	if d := time.Until(t); d > 0 {
		time.Sleep(d)
	}
}

// FakeClock is a manually driven clock for tests. SleepUntil jumps straight
// to the deadline, so paced sampling completes instantly with exact
// timestamps.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a FakeClock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// SleepUntil advances the fake time to t if t is in the future.
func (c *FakeClock) SleepUntil(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}

// Advance moves the fake time forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the fake time to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
