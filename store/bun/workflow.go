package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerrun/ledgerrun"
	"github.com/ledgerrun/ledgerrun/id"
	"github.com/ledgerrun/ledgerrun/workflow"
)

// CreateRun persists a new workflow run.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	m := toRunModel(run)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return ledgerrun.ErrRunAlreadyExists
		}
		return fmt.Errorf("ledgerrun/bun: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a workflow run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	m := new(runModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", runID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ledgerrun.ErrRunNotFound
		}
		return nil, fmt.Errorf("ledgerrun/bun: get run: %w", err)
	}
	return fromRunModel(m)
}

// UpdateRun persists changes to an existing workflow run.
func (s *Store) UpdateRun(ctx context.Context, run *workflow.Run) error {
	m := toRunModel(run)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("ledgerrun/bun: update run: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return ledgerrun.ErrRunNotFound
	}
	return nil
}

// ListRuns returns workflow runs filtered by state. An empty state matches
// all runs.
func (s *Store) ListRuns(ctx context.Context, state workflow.RunState) ([]*workflow.Run, error) {
	var models []runModel
	q := s.db.NewSelect().Model(&models).Order("started_at ASC")
	if state != "" {
		q = q.Where("state = ?", string(state))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ledgerrun/bun: list runs: %w", err)
	}

	runs := make([]*workflow.Run, 0, len(models))
	for i := range models {
		r, convErr := fromRunModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("ledgerrun/bun: list runs convert: %w", convErr)
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// ListChildRuns returns all child workflow runs for a parent.
func (s *Store) ListChildRuns(ctx context.Context, parentRunID id.RunID) ([]*workflow.Run, error) {
	var models []runModel
	err := s.db.NewSelect().Model(&models).
		Where("parent_run_id = ?", parentRunID.String()).
		Order("started_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledgerrun/bun: list child runs: %w", err)
	}

	runs := make([]*workflow.Run, 0, len(models))
	for i := range models {
		r, convErr := fromRunModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("ledgerrun/bun: list child runs convert: %w", convErr)
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// SaveCheckpoint persists checkpoint data for a workflow step, replacing
// any previous checkpoint for the same run and step.
func (s *Store) SaveCheckpoint(ctx context.Context, runID id.RunID, stepName string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	m := &checkpointModel{
		ID:        id.NewCheckpointID().String(),
		RunID:     runID.String(),
		StepName:  stepName,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (run_id, step_name) DO UPDATE").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ledgerrun/bun: save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves checkpoint data for a workflow step. Returns nil
// when no checkpoint exists; a zero-length slice is a recorded outcome.
func (s *Store) GetCheckpoint(ctx context.Context, runID id.RunID, stepName string) ([]byte, error) {
	m := new(checkpointModel)
	err := s.db.NewSelect().Model(m).
		Where("run_id = ?", runID.String()).
		Where("step_name = ?", stepName).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledgerrun/bun: get checkpoint: %w", err)
	}
	if m.Data == nil {
		return []byte{}, nil
	}
	return m.Data, nil
}

// ListCheckpoints returns all checkpoints for a workflow run.
func (s *Store) ListCheckpoints(ctx context.Context, runID id.RunID) ([]*workflow.Checkpoint, error) {
	var models []checkpointModel
	err := s.db.NewSelect().Model(&models).
		Where("run_id = ?", runID.String()).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledgerrun/bun: list checkpoints: %w", err)
	}

	cps := make([]*workflow.Checkpoint, 0, len(models))
	for i := range models {
		cp, convErr := fromCheckpointModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("ledgerrun/bun: list checkpoints convert: %w", convErr)
		}
		cps = append(cps, cp)
	}
	return cps, nil
}

// SaveState stores the latest durable state snapshot for a run.
func (s *Store) SaveState(ctx context.Context, runID id.RunID, state []byte) error {
	m := &runStateModel{
		RunID:     runID.String(),
		State:     state,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (run_id) DO UPDATE").
		Set("state = EXCLUDED.state").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ledgerrun/bun: save state: %w", err)
	}
	return nil
}

// GetState retrieves the latest state snapshot for a run, or nil when no
// snapshot has been saved yet.
func (s *Store) GetState(ctx context.Context, runID id.RunID) ([]byte, error) {
	m := new(runStateModel)
	err := s.db.NewSelect().Model(m).
		Where("run_id = ?", runID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledgerrun/bun: get state: %w", err)
	}
	return m.State, nil
}
