// Package timeutil abstracts the wall clock and one-shot timers so that
// timer-driven code can be stepped deterministically in tests.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the time source used by the poll scheduler and viewer.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f once d has elapsed. The returned Timer cancels the
	// call.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending one-shot call.
type Timer interface {
	// Stop reports whether it prevented the call. It returns false once the
	// call has run or the timer was already stopped.
	Stop() bool
}

// RealClock is backed by the time package. Callbacks run on their own
// goroutine.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// MockClock only moves when Advance is called. Due callbacks run
// synchronously on the goroutine calling Advance.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	created int
	queue   []*mockTimer
}

// NewMockClock returns a clock reading start.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created++
	t := &mockTimer{order: c.created, at: c.now.Add(d), fn: f}
	c.queue = append(c.queue, t)
	return t
}

// Advance moves the clock forward by d. Every live timer due inside the
// window runs in deadline order (creation order on ties), with Now reading
// the timer's deadline during its callback. Timers armed by a callback run
// in the same call if they fall inside the window.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	end := c.now.Add(d)
	c.mu.Unlock()

	for {
		t := c.popDue(end)
		if t == nil {
			break
		}
		t.run()
	}

	c.mu.Lock()
	c.now = end
	c.mu.Unlock()
}

func (c *MockClock) popDue(end time.Time) *mockTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	best := -1
	for i, t := range c.queue {
		if !t.live() || t.at.After(end) {
			continue
		}
		if best < 0 || t.at.Before(c.queue[best].at) ||
			(t.at.Equal(c.queue[best].at) && t.order < c.queue[best].order) {
			best = i
		}
	}
	if best < 0 {
		c.compact()
		return nil
	}
	t := c.queue[best]
	c.queue = append(c.queue[:best], c.queue[best+1:]...)
	if t.at.After(c.now) {
		c.now = t.at
	}
	return t
}

// compact drops stopped timers. Callers hold c.mu.
func (c *MockClock) compact() {
	kept := c.queue[:0]
	for _, t := range c.queue {
		if t.live() {
			kept = append(kept, t)
		}
	}
	c.queue = kept
}

// Armed is the number of timers ever created on the clock.
func (c *MockClock) Armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created
}

// Pending is the number of timers that have neither run nor been stopped.
func (c *MockClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.queue {
		if t.live() {
			n++
		}
	}
	return n
}

type mockTimer struct {
	order int
	at    time.Time
	fn    func()

	mu   sync.Mutex
	done bool
}

func (t *mockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (t *mockTimer) live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.done
}

func (t *mockTimer) run() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.mu.Unlock()
	t.fn()
}
