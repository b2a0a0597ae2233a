// Package wait implements the deadline-bounded polling primitive that
// underlies every timed operation in holdfast. Waiting is cooperative:
// a loop of check, sleep a fixed interval, re-check, against an absolute
// deadline computed once at the start.
package wait

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultInterval is the pause between condition polls.
	DefaultInterval = 250 * time.Millisecond

	// DefaultTimeout bounds waits whose caller gave no explicit budget.
	DefaultTimeout = 30 * time.Second
)

// Condition reports whether the awaited state has been reached.
// A non-nil error aborts the wait immediately; transient failures the
// caller wants retried must be swallowed inside the condition itself.
type Condition func() (bool, error)

// Options control a single wait.
type Options struct {
	Timeout       time.Duration // overall budget; DefaultTimeout when zero
	Interval      time.Duration // poll interval; DefaultInterval when zero
	FailOnTimeout bool          // true: expiry returns *TimeoutError; false: (false, nil)
	What          string        // names the condition in timeout errors
}

func (o Options) normalized() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.What == "" {
		o.What = "condition"
	}
	return o
}

// TimeoutError reports that a bounded wait's condition never became true.
type TimeoutError struct {
	What    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.What)
}

// Until polls cond at a fixed interval until it returns true or the
// deadline passes. The deadline is absolute: it is computed once up
// front and is not reset by intermediate polls.
func Until(ctx context.Context, cond Condition, opts Options) (bool, error) {
	opts = opts.normalized()
	deadline := time.Now().Add(opts.Timeout)

	for {
		ok, err := cond()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			break
		}
		if err := sleep(ctx, opts.Interval); err != nil {
			return false, err
		}
	}

	if opts.FailOnTimeout {
		return false, &TimeoutError{What: opts.What, Timeout: opts.Timeout}
	}
	return false, nil
}

// Probe produces a value when the awaited state is reached. ok=false
// means "not yet"; a non-nil error aborts the wait.
type Probe[T any] func() (value T, ok bool, err error)

// For polls probe until it yields a value or the deadline passes.
// On timeout with FailOnTimeout unset, the zero value and ok=false are
// returned without error.
func For[T any](ctx context.Context, probe Probe[T], opts Options) (T, bool, error) {
	var last T
	ok, err := Until(ctx, func() (bool, error) {
		v, ok, err := probe()
		if err != nil {
			return false, err
		}
		if ok {
			last = v
		}
		return ok, nil
	}, opts)
	if err != nil {
		var zero T
		return zero, false, err
	}
	return last, ok, nil
}

// Contender is one entrant in a Race: a named probe.
type Contender[T any] struct {
	Name  string
	Probe Probe[T]
}

// Race polls all contenders round-robin until one succeeds, returning
// the winning index and value. If none succeed by the deadline the
// usual fail/no-fail contract applies and the index is -1.
func Race[T any](ctx context.Context, contenders []Contender[T], opts Options) (int, T, error) {
	var (
		winner = -1
		value  T
	)
	if opts.What == "" {
		opts.What = raceWhat(contenders)
	}
	_, err := Until(ctx, func() (bool, error) {
		for i, c := range contenders {
			v, ok, err := c.Probe()
			if err != nil {
				return false, err
			}
			if ok {
				winner = i
				value = v
				return true, nil
			}
		}
		return false, nil
	}, opts)
	return winner, value, err
}

func raceWhat[T any](contenders []Contender[T]) string {
	names := ""
	for i, c := range contenders {
		if i > 0 {
			names += " | "
		}
		names += c.Name
	}
	if names == "" {
		return "any contender"
	}
	return "any of: " + names
}

// sleep pauses for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
