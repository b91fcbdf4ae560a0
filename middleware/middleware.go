// Package middleware provides composable middleware for operation
// invocations. Middleware wraps each attempt synchronously and can
// modify execution (recover from panics, log, enforce deadlines, add
// tracing and metrics).
package middleware

import (
	"context"
	"time"
)

// Call describes one operation invocation attempt.
type Call struct {
	// Name is the operation name, e.g. "withdraw".
	Name string
	// Attempt is the 1-based attempt number within the retry policy.
	Attempt int
	// Timeout is an optional per-attempt deadline. Zero means none.
	Timeout time.Duration
}

// Handler is the terminal function that executes the operation logic.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the call being executed, and the next handler.
// Middleware MUST call next to continue the chain (unless
// short-circuiting on error).
type Middleware func(ctx context.Context, call *Call, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, call *Call, next Handler) error {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, call, prev)
			}
		}
		return h(ctx)
	}
}
