// Package signal records signals delivered to workflow runs. Every
// accepted signal produces one append-only record, giving operators an
// audit trail of the external inputs that shaped a run's state.
package signal

import (
	"context"
	"time"

	"github.com/ledgerrun/ledgerrun/id"
)

// Signal is the audit record of one accepted signal delivery.
type Signal struct {
	ID        id.SignalID `json:"id"`
	RunID     id.RunID    `json:"run_id"`
	Name      string      `json:"name"`
	Payload   []byte      `json:"payload,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Store defines the persistence contract for signal records.
type Store interface {
	// SaveSignal persists a signal record.
	SaveSignal(ctx context.Context, sig *Signal) error

	// ListSignals returns all signal records for a run in delivery
	// order.
	ListSignals(ctx context.Context, runID id.RunID) ([]*Signal, error)
}

// Bus records accepted signal deliveries against a Store. It satisfies
// workflow.SignalRecorder.
type Bus struct {
	store Store
}

// NewBus creates a signal bus backed by the given store.
func NewBus(store Store) *Bus {
	return &Bus{store: store}
}

// Record persists one signal delivery record.
func (b *Bus) Record(ctx context.Context, runID id.RunID, name string, payload []byte) error {
	return b.store.SaveSignal(ctx, &Signal{
		ID:        id.NewSignalID(),
		RunID:     runID,
		Name:      name,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
}

// History returns the signals delivered to a run, oldest first.
func (b *Bus) History(ctx context.Context, runID id.RunID) ([]*Signal, error) {
	return b.store.ListSignals(ctx, runID)
}

// Store returns the underlying signal store.
func (b *Bus) Store() Store { return b.store }
