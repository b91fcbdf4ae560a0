package workflow

import (
	"time"

	"github.com/ledgerrun/ledgerrun"
	"github.com/ledgerrun/ledgerrun/id"
)

// RunState represents the lifecycle state of a workflow run.
type RunState string

const (
	// RunStateRunning means the workflow is currently executing or
	// suspended at a wait point.
	RunStateRunning RunState = "running"
	// RunStateCompleted means the workflow finished. Note that a
	// completed transfer may still carry a failure result in Output;
	// RunStateCompleted only means the body ran to the end.
	RunStateCompleted RunState = "completed"
	// RunStateFailed means the workflow aborted with an uncaught error.
	RunStateFailed RunState = "failed"
)

// Run represents a single execution of a workflow.
type Run struct {
	ledgerrun.Entity

	ID          id.RunID   `json:"id"`
	Name        string     `json:"name"`
	State       RunState   `json:"state"`
	Input       []byte     `json:"input,omitempty"`
	Output      []byte     `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	ParentRunID *id.RunID  `json:"parent_run_id,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
