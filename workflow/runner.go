package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ledgerrun/ledgerrun"
	"github.com/ledgerrun/ledgerrun/id"
)

// SignalRecorder persists an audit record for every accepted signal.
// This interface is satisfied by signal.Bus; it lives here to break the
// import cycle between workflow and signal.
type SignalRecorder interface {
	Record(ctx context.Context, runID id.RunID, name string, payload []byte) error
}

// Runner orchestrates workflow execution: creating runs, building the
// Workflow context, invoking handlers, delivering signals, and managing
// run state.
type Runner struct {
	registry *Registry
	store    Store
	signals  SignalRecorder
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[id.RunID]*Session
}

// NewRunner creates a workflow runner. recorder may be nil, in which
// case accepted signals are not audited.
func NewRunner(registry *Registry, store Store, recorder SignalRecorder, logger *slog.Logger) *Runner {
	return &Runner{
		registry: registry,
		store:    store,
		signals:  recorder,
		logger:   logger,
		sessions: make(map[id.RunID]*Session),
	}
}

// Registry returns the workflow registry.
func (r *Runner) Registry() *Registry { return r.registry }

// Start starts a new workflow run with a typed input and blocks until
// it completes. The input is JSON-marshaled and stored on the Run.
func Start[T any](ctx context.Context, runner *Runner, name string, input T) (*Run, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input for workflow %q: %w", name, err)
	}
	return runner.StartRaw(ctx, name, data)
}

// StartAsync starts a new workflow run with a typed input and returns
// as soon as the run is persisted. The handler executes in a background
// goroutine; use GetRun or the state snapshot to observe progress.
func StartAsync[T any](ctx context.Context, runner *Runner, name string, input T) (*Run, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input for workflow %q: %w", name, err)
	}
	return runner.StartRawAsync(ctx, name, data)
}

// StartRaw starts a workflow run with pre-serialized JSON input and
// blocks until it completes.
func (r *Runner) StartRaw(ctx context.Context, name string, input []byte) (*Run, error) {
	run, exec, err := r.createRun(ctx, name, input, nil)
	if err != nil {
		return nil, err
	}
	r.executeRun(ctx, run, exec, input)
	return run, nil
}

// StartRawAsync starts a workflow run with pre-serialized JSON input
// and returns immediately after the run is persisted. The handler
// executes in a background goroutine detached from the caller's
// cancellation.
func (r *Runner) StartRawAsync(ctx context.Context, name string, input []byte) (*Run, error) {
	run, exec, err := r.createRun(ctx, name, input, nil)
	if err != nil {
		return nil, err
	}
	go r.executeRun(context.WithoutCancel(ctx), run, exec, input)
	return run, nil
}

// StartChildRaw starts a child workflow synchronously, blocking until
// it completes. The child run's ParentRunID is set to the given parent.
// Implements ChildStarter.
func (r *Runner) StartChildRaw(ctx context.Context, parentRunID id.RunID, name string, input []byte) (*Run, error) {
	run, exec, err := r.createRun(ctx, name, input, &parentRunID)
	if err != nil {
		return nil, err
	}
	r.executeRun(ctx, run, exec, input)
	return run, nil
}

// createRun persists a new run record for a registered workflow.
func (r *Runner) createRun(ctx context.Context, name string, input []byte, parent *id.RunID) (*Run, RunnerFunc, error) {
	exec, ok := r.registry.Get(name)
	if !ok {
		return nil, nil, fmt.Errorf("no workflow registered for %q", name)
	}

	run := &Run{
		Entity:      ledgerrun.NewEntity(),
		ID:          id.NewRunID(),
		Name:        name,
		State:       RunStateRunning,
		Input:       input,
		ParentRunID: parent,
		StartedAt:   time.Now().UTC(),
	}

	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("create run for workflow %q: %w", name, err)
	}
	return run, exec, nil
}

// executeRun runs the workflow handler and records completion or
// failure on the run. A session is registered for the run's lifetime so
// signals can reach it.
func (r *Runner) executeRun(ctx context.Context, run *Run, exec RunnerFunc, input []byte) {
	sess := &Session{}
	r.mu.Lock()
	r.sessions[run.ID] = sess
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.sessions, run.ID)
		r.mu.Unlock()
	}()

	start := time.Now()
	wf := NewWorkflowContext(ctx, run, r.store, sess, r.logger)
	wf.SetChildStarter(r)

	err := exec(wf, input)
	elapsed := time.Since(start)
	now := time.Now().UTC()

	if err != nil {
		run.State = RunStateFailed
		run.Error = err.Error()
		run.CompletedAt = &now
		if updateErr := r.store.UpdateRun(ctx, run); updateErr != nil {
			r.logger.Error("failed to update run as failed",
				slog.String("run_id", run.ID.String()),
				slog.String("error", updateErr.Error()),
			)
		}
		r.logger.Warn("workflow run failed",
			slog.String("run_id", run.ID.String()),
			slog.String("workflow", run.Name),
			slog.String("error", err.Error()),
		)
		return
	}

	run.State = RunStateCompleted
	run.CompletedAt = &now
	if updateErr := r.store.UpdateRun(ctx, run); updateErr != nil {
		r.logger.Error("failed to update run as completed",
			slog.String("run_id", run.ID.String()),
			slog.String("error", updateErr.Error()),
		)
	}
	r.logger.Info("workflow run completed",
		slog.String("run_id", run.ID.String()),
		slog.String("workflow", run.Name),
		slog.Duration("elapsed", elapsed),
	)
}

// session returns the live session for a run, or nil if the run is not
// currently executing in this runner.
func (r *Runner) session(runID id.RunID) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[runID]
}

// Signal delivers a named signal to a running workflow. The signal
// handler runs under the run's session lock; a handler error (for
// example a validation rejection) is returned synchronously to the
// caller and leaves the run's state untouched.
//
// If the target run does not declare a handler for the signal, delivery
// is forwarded to its running child runs. This lets callers address a
// signal to the run they know about while a child (such as an approval
// run started by a transfer) consumes it.
func (r *Runner) Signal(ctx context.Context, runID id.RunID, name string, payload json.RawMessage) error {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.State != RunStateRunning {
		return fmt.Errorf("run %s is %s: %w", runID, run.State, ledgerrun.ErrNoSession)
	}

	sess := r.session(runID)
	if sess != nil && sess.Handles(name) {
		return r.deliver(ctx, runID, sess, name, payload)
	}

	// Forward to running children.
	children, listErr := r.store.ListChildRuns(ctx, runID)
	if listErr != nil {
		return fmt.Errorf("list children of run %s: %w", runID, listErr)
	}
	for _, child := range children {
		if child.State != RunStateRunning {
			continue
		}
		cs := r.session(child.ID)
		if cs != nil && cs.Handles(name) {
			return r.deliver(ctx, child.ID, cs, name, payload)
		}
	}

	if sess == nil {
		return fmt.Errorf("run %s: %w", runID, ledgerrun.ErrNoSession)
	}
	return fmt.Errorf("run %s signal %q: %w", runID, name, ledgerrun.ErrUnknownSignal)
}

// deliver applies the signal and persists the audit record and the
// post-signal state snapshot.
func (r *Runner) deliver(ctx context.Context, runID id.RunID, sess *Session, name string, payload json.RawMessage) error {
	snap, err := sess.Deliver(name, payload)
	if err != nil {
		return err
	}

	if r.signals != nil {
		if recErr := r.signals.Record(ctx, runID, name, payload); recErr != nil {
			r.logger.Warn("failed to record signal",
				slog.String("run_id", runID.String()),
				slog.String("signal", name),
				slog.String("error", recErr.Error()),
			)
		}
	}

	if snap != nil {
		if saveErr := r.store.SaveState(ctx, runID, snap); saveErr != nil {
			return fmt.Errorf("save state for run %s after signal %q: %w", runID, name, saveErr)
		}
	}

	r.logger.Debug("signal delivered",
		slog.String("run_id", runID.String()),
		slog.String("signal", name),
	)
	return nil
}

// Resume resumes a workflow run that was in "running" state (crash
// recovery). It re-executes the handler; steps with checkpoints are
// skipped and the durable state is restored from its last snapshot.
func (r *Runner) Resume(ctx context.Context, runID id.RunID) error {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run %s: %w", runID, err)
	}
	if run.State != RunStateRunning {
		return fmt.Errorf("run %s is in state %q, not running", runID, run.State)
	}

	exec, ok := r.registry.Get(run.Name)
	if !ok {
		return fmt.Errorf("no workflow registered for %q (run %s)", run.Name, runID)
	}

	r.executeRun(ctx, run, exec, run.Input)
	return nil
}

// ResumeAll finds all runs in "running" state and resumes them.
// Called at startup for crash recovery. Child runs are resumed through
// their parents, so only top-level runs are re-executed directly.
func (r *Runner) ResumeAll(ctx context.Context) error {
	runs, err := r.store.ListRuns(ctx, RunStateRunning)
	if err != nil {
		return fmt.Errorf("list running workflow runs: %w", err)
	}

	for _, run := range runs {
		if run.ParentRunID != nil {
			continue
		}
		r.logger.Info("resuming workflow run",
			slog.String("run_id", run.ID.String()),
			slog.String("workflow", run.Name),
		)
		if resumeErr := r.Resume(ctx, run.ID); resumeErr != nil {
			r.logger.Error("failed to resume workflow run",
				slog.String("run_id", run.ID.String()),
				slog.String("error", resumeErr.Error()),
			)
		}
	}

	return nil
}
