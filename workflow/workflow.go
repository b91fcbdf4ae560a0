package workflow

import "encoding/json"

// SignalHandler mutates durable workflow state in response to a named
// signal. Handlers run under the run's session lock, never concurrently
// with each other or with state reads from the workflow body. Returning
// an error rejects the signal: the state is left untouched and the
// error is surfaced synchronously to the sender.
type SignalHandler[S any] func(state *S, payload json.RawMessage) error

// Definition is a typed workflow definition.
// T is the input type and S the durable state type; both must be
// JSON-serializable. State starts at the zero value of S and is
// snapshotted to the Store after every accepted signal and every
// resolved wait, so external callers can inspect progress.
type Definition[T, S any] struct {
	// Name is the unique identifier for this workflow type.
	Name string

	// Handler executes the workflow body. It receives the run's
	// durable state; reads that can race with signal delivery must go
	// through wf.View or a WaitUntil predicate.
	Handler func(wf *Workflow, state *S, input T) error

	// Signals maps signal names to their handlers. A signal sent to a
	// run whose definition has no handler for it is rejected with
	// ledgerrun.ErrUnknownSignal.
	Signals map[string]SignalHandler[S]
}

// New creates a typed workflow definition with no signal handlers.
func New[T, S any](name string, handler func(wf *Workflow, state *S, input T) error) *Definition[T, S] {
	return &Definition[T, S]{
		Name:    name,
		Handler: handler,
	}
}

// OnSignal registers a signal handler and returns the definition for
// chaining.
func (d *Definition[T, S]) OnSignal(name string, handler SignalHandler[S]) *Definition[T, S] {
	if d.Signals == nil {
		d.Signals = make(map[string]SignalHandler[S])
	}
	d.Signals[name] = handler
	return d
}
