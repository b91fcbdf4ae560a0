// Package store defines the composite persistence contract assembled from
// the per-subsystem store interfaces. Implementations live in the
// subdirectories: memory (tests, development) and bun (Postgres).
package store

import (
	"context"

	"github.com/ledgerrun/ledgerrun/ledger"
	"github.com/ledgerrun/ledgerrun/signal"
	"github.com/ledgerrun/ledgerrun/workflow"
)

// Store is the full persistence contract: workflow runs and checkpoints,
// signal audit records, and ledger balances and transactions.
type Store interface {
	workflow.Store
	signal.Store
	ledger.Store

	// Migrate prepares the backing schema. A no-op for stores without one.
	Migrate(ctx context.Context) error

	// Ping verifies connectivity to the backing resource.
	Ping(ctx context.Context) error

	// Close releases held resources.
	Close() error
}
