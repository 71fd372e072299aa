package throttle

import (
	"sync"
	"time"

	"github.com/juju/clock"
)

// Throttle allows one action per interval and is safe for concurrent use.
// It is used to keep per-transfer progress logging to a steady trickle.
type Throttle struct {
	mu          sync.Mutex
	clock       clock.Clock
	interval    time.Duration
	lastAllowed time.Time
}

// New creates a throttle on the wall clock.
func New(interval time.Duration) *Throttle {
	return NewWithClock(interval, clock.WallClock)
}

// NewWithClock creates a throttle driven by clk.
func NewWithClock(interval time.Duration, clk clock.Clock) *Throttle {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Throttle{
		clock:    clk,
		interval: interval,
	}
}

// Allow checks if an action is allowed at this time.
// Returns true if allowed (and records this as the last allowed time),
// or false with the remaining wait duration if throttled.
func (t *Throttle) Allow() (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if t.lastAllowed.IsZero() {
		t.lastAllowed = now
		return true, 0
	}

	sinceLast := now.Sub(t.lastAllowed)
	if sinceLast >= t.interval {
		t.lastAllowed = now
		return true, 0
	}

	return false, t.interval - sinceLast
}

// Reset clears the throttle state, allowing the next action immediately.
func (t *Throttle) Reset() {
	t.mu.Lock()
	t.lastAllowed = time.Time{}
	t.mu.Unlock()
}
