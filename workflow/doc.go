// Package workflow implements the cooperative orchestration runtime that
// drives ledgerrun's business processes: typed workflow definitions with
// durable state and signal handlers, checkpointed step execution, bounded
// condition waits, blocking child workflows, and a runner that delivers
// external signals to suspended runs.
//
// A workflow body is logically single-threaded: it never runs two steps
// concurrently with itself and only suspends at explicit wait points.
// Signal handlers execute with exclusive access to the run's durable
// state, interleaved safely with the body through the per-run session
// lock. Everything a workflow needs to survive a suspend/resume boundary
// lives either in its state struct (JSON-snapshotted to the Store after
// every signal and every resolved wait) or in step checkpoints, so a
// crashed run can be resumed by replaying its handler: checkpointed steps
// are skipped and return their recorded results.
//
// Side effects belong in the operation layer, not in workflow bodies.
// Between suspension points a body must be deterministic: re-deriving its
// local computation from durable state plus recorded step results is what
// makes replay after a crash land in the same place.
package workflow
