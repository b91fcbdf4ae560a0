// Package fault classifies errors into the four kinds the orchestration
// layer cares about: validation, business, transient, and timeout.
//
// The classification drives retry decisions. Validation and business
// faults are terminal: retrying them with the same arguments can never
// succeed (a negative amount stays negative, an underfunded account stays
// underfunded). Transient faults model flaky resources and are retried
// under the operation layer's policy. Any error without an explicit kind
// is treated as transient, so unexpected failures get the benefit of a
// retry before they surface.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the retry classification of an error.
type Kind string

const (
	// KindValidation marks a malformed request. Raised synchronously,
	// never retried, surfaced to the caller as a rejection.
	KindValidation Kind = "validation"
	// KindBusiness marks a business-rule violation (e.g. insufficient
	// funds). Non-retryable; workflows catch it to trigger compensation.
	KindBusiness Kind = "business"
	// KindTransient marks a recoverable failure. Retryable under the
	// configured policy.
	KindTransient Kind = "transient"
	// KindTimeout marks an expired wait. Not a failure: each workflow
	// defines its own fallback when a wait times out.
	KindTimeout Kind = "timeout"
)

// ErrWaitTimeout is returned by wait primitives when the awaited
// condition did not become true before the deadline.
var ErrWaitTimeout = &Error{kind: KindTimeout, msg: "wait timed out"}

// Error is an error tagged with a Kind.
type Error struct {
	kind Kind
	msg  string
	err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.err }

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// Validation creates a validation fault.
func Validation(format string, args ...any) *Error {
	return &Error{kind: KindValidation, msg: fmt.Sprintf(format, args...)}
}

// Business creates a business-rule fault.
func Business(format string, args ...any) *Error {
	return &Error{kind: KindBusiness, msg: fmt.Sprintf(format, args...)}
}

// Transient creates a transient fault.
func Transient(format string, args ...any) *Error {
	return &Error{kind: KindTransient, msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an existing error with a kind, preserving it for errors.Is/As.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

// KindOf returns the classification of err. Errors that do not carry a
// kind anywhere in their chain are classified transient.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	return KindTransient
}

// Retryable reports whether err may succeed on retry. Only transient
// faults (including untagged errors) are retryable.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}

// IsTimeout reports whether err is (or wraps) a wait timeout.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}
