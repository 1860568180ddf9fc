package scheduler

import (
	"sync"
	"time"
)

// Clock is the monotonic time source of the scheduler.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock, which carries a monotonic reading.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Timer is a "now - last >= interval" due predicate. A timer that never
// fired is due immediately.
type Timer struct {
	Interval time.Duration
	last     time.Time
	fired    bool
}

// Due reports whether the timer is due at now.
func (t *Timer) Due(now time.Time) bool {
	return !t.fired || now.Sub(t.last) >= t.Interval
}

// Take reports whether the timer is due and, if so, records now as its
// last run.
func (t *Timer) Take(now time.Time) bool {
	if !t.Due(now) {
		return false
	}
	t.Reset(now)
	return true
}

// Reset records now as the last run.
func (t *Timer) Reset(now time.Time) {
	t.last = now
	t.fired = true
}
