// Package operation is the side-effecting layer between workflows and
// the ledger. Every invocation runs under a retry policy that retries
// transient faults with a backoff delay and gives up on business and
// validation faults immediately. Operations must tolerate at-least-once
// invocation: the idempotency tokens threaded through them make a
// retried attempt land on the same ledger transaction.
package operation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerrun/ledgerrun"
	"github.com/ledgerrun/ledgerrun/backoff"
	"github.com/ledgerrun/ledgerrun/fault"
	"github.com/ledgerrun/ledgerrun/middleware"
)

// Policy controls retry behavior for operation invocations.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int
	// Backoff computes the delay before each retry. Nil means the
	// default fixed 2 second delay.
	Backoff backoff.Strategy
}

// DefaultPolicy is the policy transfer operations run under: one
// initial attempt plus two retries, two seconds apart.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     backoff.DefaultStrategy(),
	}
}

// Invoker applies a retry policy and a middleware chain to operation
// invocations.
type Invoker struct {
	policy Policy
	mw     middleware.Middleware
	logger *slog.Logger
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithMiddleware installs the middleware chain wrapped around every
// attempt.
func WithMiddleware(mws ...middleware.Middleware) InvokerOption {
	return func(iv *Invoker) { iv.mw = middleware.Chain(mws...) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) InvokerOption {
	return func(iv *Invoker) { iv.logger = logger }
}

// NewInvoker creates an Invoker with the given policy.
func NewInvoker(policy Policy, opts ...InvokerOption) *Invoker {
	iv := &Invoker{
		policy: policy,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(iv)
	}
	if iv.policy.MaxAttempts < 1 {
		iv.policy.MaxAttempts = 1
	}
	if iv.policy.Backoff == nil {
		iv.policy.Backoff = backoff.DefaultStrategy()
	}
	return iv
}

// Policy returns the invoker's retry policy.
func (iv *Invoker) Policy() Policy { return iv.policy }

// Invoke runs fn under the retry policy. Transient faults are retried
// up to MaxAttempts with the backoff delay in between; validation and
// business faults propagate immediately. Exhausting the budget returns
// an error wrapping both ledgerrun.ErrRetriesExhausted and the last
// attempt's error.
func (iv *Invoker) Invoke(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= iv.policy.MaxAttempts; attempt++ {
		call := &middleware.Call{Name: name, Attempt: attempt}

		var err error
		if iv.mw != nil {
			err = iv.mw(ctx, call, fn)
		} else {
			err = fn(ctx)
		}
		if err == nil {
			return nil
		}
		if !fault.Retryable(err) {
			return err
		}
		lastErr = err

		if attempt == iv.policy.MaxAttempts {
			break
		}

		delay := iv.policy.Backoff.Delay(attempt)
		iv.logger.Debug("retrying operation",
			slog.String("operation", name),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w: operation %q failed after %d attempts: %w",
		ledgerrun.ErrRetriesExhausted, name, iv.policy.MaxAttempts, lastErr)
}

// InvokeResult runs fn under the retry policy and returns its typed
// result. Retry semantics match Invoke.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func InvokeResult[T any](ctx context.Context, iv *Invoker, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := iv.Invoke(ctx, name, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
