package workflow

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ledgerrun/ledgerrun"
)

// Session serializes access to a run's durable state. Signal handlers
// and state reads from the workflow body both go through the session
// lock, so the body never observes a half-applied signal.
//
// A session is created by the runner when a run starts and bound to the
// run's typed state by the registered definition. It is discarded when
// the run completes.
type Session struct {
	mu       sync.Mutex
	handled  map[string]struct{}
	apply    func(name string, payload json.RawMessage) error
	snapshot func() ([]byte, error)
}

// bind attaches the type-erased state accessors. Called once by the
// registered definition before the handler body starts.
func (s *Session) bind(
	apply func(name string, payload json.RawMessage) error,
	snapshot func() ([]byte, error),
	handled map[string]struct{},
) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply = apply
	s.snapshot = snapshot
	s.handled = handled
}

// Handles reports whether the bound definition declares a handler for
// the named signal.
func (s *Session) Handles(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handled[name]
	return ok
}

// Deliver applies a signal to the run's state under the session lock
// and returns the post-signal state snapshot. A handler error leaves
// the state untouched and is returned to the caller.
func (s *Session) Deliver(name string, payload json.RawMessage) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.apply == nil {
		return nil, fmt.Errorf("signal %q: %w", name, ledgerrun.ErrNoSession)
	}
	if _, ok := s.handled[name]; !ok {
		return nil, fmt.Errorf("signal %q: %w", name, ledgerrun.ErrUnknownSignal)
	}
	if err := s.apply(name, payload); err != nil {
		return nil, err
	}
	return s.snapshot()
}

// view runs fn under the session lock.
func (s *Session) view(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// check evaluates pred under the session lock.
func (s *Session) check(pred func() bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pred()
}

// Snapshot returns the current state snapshot, or nil if the session
// has not been bound yet.
func (s *Session) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return nil, nil
	}
	return s.snapshot()
}
