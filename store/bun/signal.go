package bunstore

import (
	"context"
	"fmt"

	"github.com/ledgerrun/ledgerrun/id"
	"github.com/ledgerrun/ledgerrun/signal"
)

// SaveSignal persists a signal record.
func (s *Store) SaveSignal(ctx context.Context, sig *signal.Signal) error {
	m := toSignalModel(sig)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("ledgerrun/bun: save signal: %w", err)
	}
	return nil
}

// ListSignals returns all signal records for a run in delivery order.
func (s *Store) ListSignals(ctx context.Context, runID id.RunID) ([]*signal.Signal, error) {
	var models []signalModel
	err := s.db.NewSelect().Model(&models).
		Where("run_id = ?", runID.String()).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledgerrun/bun: list signals: %w", err)
	}

	sigs := make([]*signal.Signal, 0, len(models))
	for i := range models {
		sig, convErr := fromSignalModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("ledgerrun/bun: list signals convert: %w", convErr)
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}
