package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ledgerrun/ledgerrun/id"
)

// ChildStarter starts child workflow runs. The Runner satisfies this
// interface; it is injected into the Workflow context to break the
// circular dependency between steps and the runner.
type ChildStarter interface {
	StartChildRaw(ctx context.Context, parentRunID id.RunID, name string, input []byte) (*Run, error)
}

// Workflow is the execution context passed to workflow handler
// functions. It provides durable step execution, bounded waits on
// durable state, and blocking child workflows. Each method
// automatically checkpoints its outcome to enable crash recovery.
type Workflow struct {
	ctx          context.Context
	run          *Run
	store        Store
	session      *Session
	childStarter ChildStarter
	logger       *slog.Logger
}

// NewWorkflowContext creates a new Workflow execution context.
// This is called by the workflow runner, not by users.
func NewWorkflowContext(
	ctx context.Context,
	run *Run,
	store Store,
	session *Session,
	logger *slog.Logger,
) *Workflow {
	return &Workflow{
		ctx:     ctx,
		run:     run,
		store:   store,
		session: session,
		logger:  logger,
	}
}

// SetChildStarter injects the child workflow starter (the Runner).
func (w *Workflow) SetChildStarter(cs ChildStarter) { w.childStarter = cs }

// Context returns the underlying context.Context.
func (w *Workflow) Context() context.Context { return w.ctx }

// RunID returns the workflow run ID.
func (w *Workflow) RunID() id.RunID { return w.run.ID }

// Run returns the workflow run.
func (w *Workflow) Run() *Run { return w.run }

// Logger returns the run's logger.
func (w *Workflow) Logger() *slog.Logger { return w.logger }

// View runs fn under the run's session lock. Workflow bodies use it to
// read durable state that signal handlers mutate concurrently.
func (w *Workflow) View(fn func()) { w.session.view(fn) }

// SetOutput records the run's result. The value is JSON-marshaled and
// persisted when the run completes.
func (w *Workflow) SetOutput(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("workflow %s: marshal output: %w", w.run.Name, err)
	}
	w.run.Output = data
	return nil
}
