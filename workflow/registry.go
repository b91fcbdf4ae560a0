package workflow

import (
	"encoding/json"
	"fmt"
	"sync"
)

// RunnerFunc is a type-erased workflow runner that accepts raw JSON
// input. Typed definitions are converted to RunnerFuncs at registration
// time by closing over JSON unmarshal, state restoration, and the typed
// handler.
type RunnerFunc func(wf *Workflow, input []byte) error

type entry struct {
	exec    RunnerFunc
	signals map[string]struct{}
}

// Registry maps workflow names to runner functions. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty workflow registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// RegisterDefinition registers a typed workflow definition. The generic
// handler is wrapped in a closure that JSON-unmarshals the input into T,
// restores any saved state snapshot into S, and binds the definition's
// signal handlers to the run's session before invoking the typed
// handler.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T, S any](r *Registry, def *Definition[T, S]) {
	handled := make(map[string]struct{}, len(def.Signals))
	for name := range def.Signals {
		handled[name] = struct{}{}
	}

	exec := func(wf *Workflow, input []byte) error {
		var in T
		if len(input) > 0 {
			if err := json.Unmarshal(input, &in); err != nil {
				return fmt.Errorf("unmarshal input for workflow %q: %w", def.Name, err)
			}
		}

		state := new(S)
		snap, err := wf.store.GetState(wf.ctx, wf.run.ID)
		if err != nil {
			return fmt.Errorf("workflow %q: load state snapshot: %w", def.Name, err)
		}
		if snap != nil {
			if err := json.Unmarshal(snap, state); err != nil {
				return fmt.Errorf("workflow %q: decode state snapshot: %w", def.Name, err)
			}
		}

		wf.session.bind(
			func(name string, payload json.RawMessage) error {
				return def.Signals[name](state, payload)
			},
			func() ([]byte, error) {
				return json.Marshal(state)
			},
			handled,
		)

		// Persist the initial snapshot so the state is inspectable
		// before the first signal arrives.
		if snap == nil {
			initial, marshalErr := json.Marshal(state)
			if marshalErr != nil {
				return fmt.Errorf("workflow %q: encode initial state: %w", def.Name, marshalErr)
			}
			if saveErr := wf.store.SaveState(wf.ctx, wf.run.ID, initial); saveErr != nil {
				return fmt.Errorf("workflow %q: save initial state: %w", def.Name, saveErr)
			}
		}

		return def.Handler(wf, state, in)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[def.Name] = &entry{exec: exec, signals: handled}
}

// Get returns the runner for the given workflow name.
// Returns false if no runner is registered.
func (r *Registry) Get(name string) (RunnerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.exec, true
}

// Names returns all registered workflow names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}
