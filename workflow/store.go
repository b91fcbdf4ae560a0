package workflow

import (
	"context"

	"github.com/ledgerrun/ledgerrun/id"
)

// Store defines the persistence contract for workflow runs,
// checkpoints and durable state snapshots. Implementations must be
// safe for concurrent use; the runner and signal delivery call into
// the store from separate goroutines.
type Store interface {
	// CreateRun persists a new workflow run. Returns
	// ledgerrun.ErrRunAlreadyExists when the run ID is taken.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a workflow run by ID. Returns
	// ledgerrun.ErrRunNotFound for unknown IDs.
	GetRun(ctx context.Context, runID id.RunID) (*Run, error)

	// UpdateRun persists changes to an existing workflow run.
	UpdateRun(ctx context.Context, run *Run) error

	// ListRuns returns workflow runs filtered by state.
	// An empty state matches all runs.
	ListRuns(ctx context.Context, state RunState) ([]*Run, error)

	// ListChildRuns returns all child workflow runs for a parent.
	ListChildRuns(ctx context.Context, parentRunID id.RunID) ([]*Run, error)

	// SaveCheckpoint persists checkpoint data for a workflow step.
	// If a checkpoint already exists for the same run/step, it is replaced.
	SaveCheckpoint(ctx context.Context, runID id.RunID, stepName string, data []byte) error

	// GetCheckpoint retrieves checkpoint data for a specific workflow step.
	// Returns nil data if no checkpoint exists; a zero-length non-nil
	// slice is a valid recorded outcome (for example a timed-out wait).
	GetCheckpoint(ctx context.Context, runID id.RunID, stepName string) ([]byte, error)

	// ListCheckpoints returns all checkpoints for a workflow run.
	ListCheckpoints(ctx context.Context, runID id.RunID) ([]*Checkpoint, error)

	// SaveState stores the latest durable state snapshot for a run,
	// replacing any previous snapshot.
	SaveState(ctx context.Context, runID id.RunID, state []byte) error

	// GetState retrieves the latest state snapshot for a run.
	// Returns nil if no snapshot has been saved yet.
	GetState(ctx context.Context, runID id.RunID) ([]byte, error)
}
