// Package ledgerrun implements resumable money-movement workflows on top of
// a small cooperative orchestration runtime. It models two business
// processes: a saga-driven money transfer with an optional manual-approval
// gate, and a two-phase vending-machine session driven by external signals.
//
// The monetary source of truth is an idempotent ledger: every deposit and
// withdrawal is keyed by a caller-supplied idempotency token, so at-least-once
// delivery from the retrying operation layer never double-applies an effect.
//
// Ledgerrun is a library, not a service. Import it, pick a store, and start
// workflow runs through the engine package:
//
//	eng, err := engine.Build(memory.New(), engine.WithLogger(logger))
//	run, err := eng.CreateTransfer(ctx, "alice", "bob", 50)
//
// Each subsystem (workflow, signal, ledger) defines its own store interface;
// a single backend implements all of them. All entity IDs are TypeIDs:
// type-prefixed, K-sortable, UUIDv7-based identifiers.
package ledgerrun
