// Package saga records compensating actions for completed forward
// operations and executes them when a workflow must unwind. A saga
// approximates atomicity across non-transactional steps: each forward
// operation that succeeds registers the action that undoes it, and on a
// terminal failure every recorded action runs.
package saga

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// CompensationFunc is a recorded rollback action. Compensations receive
// their arguments by closure at registration time; they must be
// independently safe to run in any order, because Compensate makes no
// ordering guarantee beyond "all recorded actions are invoked".
type CompensationFunc func(ctx context.Context) error

// entry pairs a compensation with the name of the forward step it undoes.
type entry struct {
	step string
	fn   CompensationFunc
}

// Saga is an ordered list of compensation entries owned by exactly one
// workflow execution. It must not be shared across runs.
type Saga struct {
	mu          sync.Mutex
	entries     []entry
	compensated bool
}

// New creates an empty saga.
func New() *Saga {
	return &Saga{}
}

// AddCompensation appends a compensation entry. Call it immediately after
// the corresponding forward operation succeeds, never before.
func (s *Saga) AddCompensation(step string, fn CompensationFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry{step: step, fn: fn})
}

// Len returns the number of recorded compensations.
func (s *Saga) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Compensate executes all recorded compensations concurrently and waits
// for every one to finish. Each compensation is attempted even if others
// fail; the errors are joined with the step name attached. A saga with
// zero entries is a no-op, and a saga compensates at most once: repeated
// calls return nil without re-running anything.
func (s *Saga) Compensate(ctx context.Context) error {
	s.mu.Lock()
	if s.compensated {
		s.mu.Unlock()
		return nil
	}
	s.compensated = true
	entries := make([]entry, len(s.entries))
	copy(entries, s.entries)
	s.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}

	var (
		errMu sync.Mutex
		errs  []error
	)

	// Best-effort: collect failures instead of cancelling the group,
	// so one failed compensation never prevents the others.
	g := new(errgroup.Group)
	for _, e := range entries {
		g.Go(func() error {
			if err := e.fn(ctx); err != nil {
				errMu.Lock()
				errs = append(errs, &CompensationError{Step: e.step, Err: err})
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors; failures are collected above

	return errors.Join(errs...)
}

// CompensationError reports a failed compensation for one step.
type CompensationError struct {
	Step string
	Err  error
}

// Error implements the error interface.
func (e *CompensationError) Error() string {
	return "compensation for " + e.Step + " failed: " + e.Err.Error()
}

// Unwrap returns the underlying failure.
func (e *CompensationError) Unwrap() error { return e.Err }
