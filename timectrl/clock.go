package timectrl

import (
	"sync"
	"time"
)

// ManualClock is a SimClock that only moves when Advance is called.
type ManualClock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	waiters []*manualTimer
}

type manualTimer struct {
	clock    *ManualClock
	deadline time.Time
	ch       chan time.Time
}

// NewManualClock returns a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	c := &ManualClock{now: start}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTimer registers a waiter that fires once the clock has advanced by d.
func (c *ManualClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &manualTimer{clock: c, deadline: c.now.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		t.ch <- c.now
		return t
	}
	c.waiters = append(c.waiters, t)
	c.cond.Broadcast()
	return t
}

func (t *manualTimer) C() <-chan time.Time { return t.ch }

// Stop removes the waiter. It reports false if the timer already fired.
func (t *manualTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, w := range c.waiters {
		if w == t {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			c.cond.Broadcast()
			return true
		}
	}
	return false
}

// Advance moves the clock forward and fires every waiter that is now due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	pending := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.deadline.After(c.now) {
			w.ch <- c.now
			continue
		}
		pending = append(pending, w)
	}
	clear(c.waiters[len(pending):])
	c.waiters = pending
	c.cond.Broadcast()
}

// Waiters returns the number of unfired, unstopped waiters.
func (c *ManualClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// BlockUntil waits until at least n waiters are pending.
func (c *ManualClock) BlockUntil(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) < n {
		c.cond.Wait()
	}
}

// BlockUntilDeadline waits until a waiter due d after the current time is
// pending.
func (c *ManualClock) BlockUntilDeadline(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.hasDeadlineLocked(c.now.Add(d)) {
		c.cond.Wait()
	}
}

func (c *ManualClock) hasDeadlineLocked(at time.Time) bool {
	for _, w := range c.waiters {
		if w.deadline.Equal(at) {
			return true
		}
	}
	return false
}
