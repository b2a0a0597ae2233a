package driver

import (
	"errors"
	"fmt"
)

// Kind is the binary retryable/fatal classification every raw backend
// error is folded into at the adapter boundary.
type Kind int

const (
	// KindFatal marks faults retrying cannot fix: session unreachable,
	// browser process gone, cancelled context.
	KindFatal Kind = iota

	// KindTransient marks stale element references and recoverable
	// transport glitches. Safe to retry the whole operation.
	KindTransient
)

func (k Kind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "fatal"
}

// Error is a classified driver fault.
type Error struct {
	Kind Kind
	Op   string // the driver operation that failed
	Err  error  // underlying backend error
}

func (e *Error) Error() string {
	return fmt.Sprintf("driver: %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable fault.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// Fatal wraps err as a non-retryable fault.
func Fatal(op string, err error) *Error {
	return &Error{Kind: KindFatal, Op: op, Err: err}
}

// IsTransient reports whether err carries a retryable classification.
// Unclassified errors are treated as fatal.
func IsTransient(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == KindTransient
}
