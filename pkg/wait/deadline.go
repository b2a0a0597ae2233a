package wait

import (
	"errors"
	"time"
)

// ErrNotStarted is returned by Deadline.Test when no budget was armed
// with Start first. It marks a programming error, never a runtime
// condition, and must not be retried.
var ErrNotStarted = errors.New("wait: Test called on a deadline that was never started")

// Deadline is a non-resetting time budget shared across several
// unrelated operations. Start captures the deadline once; every
// subsequent Test checks that same instant, so a multi-step action is
// bounded by one overall budget instead of restarting the clock per
// step.
//
// Deadline is not safe for concurrent use; one logical actor owns it,
// the same way one actor owns a driver session.
type Deadline struct {
	deadline time.Time
	timeout  time.Duration
	message  string
	started  bool
}

// Start arms the budget. Calling Start again re-arms it with a fresh
// deadline; in-flight Test callers see the new budget.
func (d *Deadline) Start(timeout time.Duration, message string) {
	d.deadline = time.Now().Add(timeout)
	d.timeout = timeout
	d.message = message
	d.started = true
}

// Test checks the armed budget. It returns nil while time remains, a
// *TimeoutError once the deadline has passed, and ErrNotStarted when
// Start was never called.
func (d *Deadline) Test() error {
	if !d.started {
		return ErrNotStarted
	}
	if time.Now().Before(d.deadline) {
		return nil
	}
	return &TimeoutError{What: d.message, Timeout: d.timeout}
}

// Expired reports whether the budget has run out without treating the
// unstarted state as expiry.
func (d *Deadline) Expired() bool {
	return d.started && !time.Now().Before(d.deadline)
}

// Remaining returns the time left on the budget, zero when expired or
// not started.
func (d *Deadline) Remaining() time.Duration {
	if !d.started {
		return 0
	}
	r := time.Until(d.deadline)
	if r < 0 {
		return 0
	}
	return r
}
