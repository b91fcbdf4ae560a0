package workflow

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerrun/ledgerrun/fault"
)

// waitPollInterval is how often WaitUntil re-evaluates its predicate.
const waitPollInterval = 10 * time.Millisecond

// Step executes a named step function. If a checkpoint exists for
// this step name, the step is skipped (idempotent replay). Otherwise
// the function is executed and a checkpoint is saved on success.
func (w *Workflow) Step(name string, fn func(ctx context.Context) error) error {
	// Check for existing checkpoint (resume case).
	data, err := w.store.GetCheckpoint(w.ctx, w.run.ID, name)
	if err != nil {
		return fmt.Errorf("workflow %s: get checkpoint %q: %w", w.run.Name, name, err)
	}
	if data != nil {
		w.logger.Debug("skipping checkpointed step",
			slog.String("run_id", w.run.ID.String()),
			slog.String("step", name),
		)
		return nil
	}

	start := time.Now()
	stepErr := fn(w.ctx)
	elapsed := time.Since(start)

	if stepErr != nil {
		w.logger.Debug("step failed",
			slog.String("run_id", w.run.ID.String()),
			slog.String("step", name),
			slog.String("error", stepErr.Error()),
		)
		return fmt.Errorf("workflow %s step %q: %w", w.run.Name, name, stepErr)
	}

	// Save checkpoint (empty slice: Step has no result).
	if saveErr := w.store.SaveCheckpoint(w.ctx, w.run.ID, name, []byte{}); saveErr != nil {
		return fmt.Errorf("workflow %s: save checkpoint %q: %w", w.run.Name, name, saveErr)
	}

	w.logger.Debug("step completed",
		slog.String("run_id", w.run.ID.String()),
		slog.String("step", name),
		slog.Duration("elapsed", elapsed),
	)
	return nil
}

// StepWithResult executes a named step that returns a typed value.
// The result is serialized via encoding/gob and saved as a checkpoint.
// On resume, the cached result is deserialized and returned without
// re-executing the step function. Values that must stay stable across
// retries, such as idempotency tokens, are generated inside the step so
// the checkpoint pins them.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func StepWithResult[T any](w *Workflow, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	data, err := w.store.GetCheckpoint(w.ctx, w.run.ID, name)
	if err != nil {
		return zero, fmt.Errorf("workflow %s: get checkpoint %q: %w", w.run.Name, name, err)
	}
	if data != nil {
		var result T
		dec := gob.NewDecoder(bytes.NewReader(data))
		if decErr := dec.Decode(&result); decErr != nil {
			return zero, fmt.Errorf("workflow %s: decode checkpoint %q: %w", w.run.Name, name, decErr)
		}
		w.logger.Debug("returning checkpointed result",
			slog.String("run_id", w.run.ID.String()),
			slog.String("step", name),
		)
		return result, nil
	}

	result, stepErr := fn(w.ctx)
	if stepErr != nil {
		return zero, fmt.Errorf("workflow %s step %q: %w", w.run.Name, name, stepErr)
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if encErr := enc.Encode(result); encErr != nil {
		return zero, fmt.Errorf("workflow %s: encode checkpoint %q: %w", w.run.Name, name, encErr)
	}

	if saveErr := w.store.SaveCheckpoint(w.ctx, w.run.ID, name, buf.Bytes()); saveErr != nil {
		return zero, fmt.Errorf("workflow %s: save checkpoint %q: %w", w.run.Name, name, saveErr)
	}

	return result, nil
}

// WaitUntil blocks until pred reports true or the timeout expires.
// The predicate is evaluated under the run's session lock, so it
// observes durable state only between signal applications. The outcome
// is checkpointed under "wait:<name>": on replay a resolved wait
// returns immediately and a timed-out wait returns fault.ErrWaitTimeout
// again without re-waiting.
func (w *Workflow) WaitUntil(name string, pred func() bool, timeout time.Duration) error {
	stepName := "wait:" + name

	data, err := w.store.GetCheckpoint(w.ctx, w.run.ID, stepName)
	if err != nil {
		return fmt.Errorf("workflow %s: get wait checkpoint %q: %w", w.run.Name, name, err)
	}
	if data != nil {
		if len(data) == 0 {
			// Recorded timeout.
			return fmt.Errorf("workflow %s wait %q: %w", w.run.Name, name, fault.ErrWaitTimeout)
		}
		return nil
	}

	deadline := time.Now().Add(timeout)
	for {
		if w.session.check(pred) {
			if saveErr := w.store.SaveCheckpoint(w.ctx, w.run.ID, stepName, []byte("ok")); saveErr != nil {
				return fmt.Errorf("workflow %s: save wait checkpoint %q: %w", w.run.Name, name, saveErr)
			}
			return w.SaveState()
		}

		if !time.Now().Before(deadline) {
			// Timeout: record an empty checkpoint so replay resolves
			// the same way.
			if saveErr := w.store.SaveCheckpoint(w.ctx, w.run.ID, stepName, []byte{}); saveErr != nil {
				return fmt.Errorf("workflow %s: save wait checkpoint %q: %w", w.run.Name, name, saveErr)
			}
			return fmt.Errorf("workflow %s wait %q: %w", w.run.Name, name, fault.ErrWaitTimeout)
		}

		select {
		case <-time.After(waitPollInterval):
		case <-w.ctx.Done():
			return w.ctx.Err()
		}
	}
}

// SaveState persists the current durable state snapshot. The runtime
// calls it after every resolved wait; workflow bodies call it after
// mutating state directly so external callers can observe the change.
func (w *Workflow) SaveState() error {
	snap, err := w.session.Snapshot()
	if err != nil {
		return fmt.Errorf("workflow %s: snapshot state: %w", w.run.Name, err)
	}
	if snap == nil {
		return nil
	}
	if saveErr := w.store.SaveState(w.ctx, w.run.ID, snap); saveErr != nil {
		return fmt.Errorf("workflow %s: save state: %w", w.run.Name, saveErr)
	}
	return nil
}

// RunChild starts a child workflow and blocks until it completes,
// returning the decoded result. The child run is linked to the parent
// via ParentRunID and the result is checkpointed for crash recovery.
//
// T is the input type, R is the result type (decoded from the child's
// JSON output).
func RunChild[T, R any](w *Workflow, name string, input T) (R, error) {
	var zero R
	stepName := "child:" + name

	data, err := w.store.GetCheckpoint(w.ctx, w.run.ID, stepName)
	if err != nil {
		return zero, fmt.Errorf("workflow %s: get child checkpoint %q: %w", w.run.Name, name, err)
	}
	if data != nil {
		var result R
		if decErr := json.Unmarshal(data, &result); decErr != nil {
			return zero, fmt.Errorf("workflow %s: decode child checkpoint %q: %w", w.run.Name, name, decErr)
		}
		w.logger.Debug("returning checkpointed child result",
			slog.String("run_id", w.run.ID.String()),
			slog.String("child", name),
		)
		return result, nil
	}

	if w.childStarter == nil {
		return zero, fmt.Errorf("workflow %s: child starter not configured", w.run.Name)
	}

	inputData, marshalErr := json.Marshal(input)
	if marshalErr != nil {
		return zero, fmt.Errorf("workflow %s: marshal child input %q: %w", w.run.Name, name, marshalErr)
	}

	// Start child workflow (blocking).
	childRun, startErr := w.childStarter.StartChildRaw(w.ctx, w.run.ID, name, inputData)
	if startErr != nil {
		return zero, fmt.Errorf("workflow %s child %q: %w", w.run.Name, name, startErr)
	}

	if childRun.State == RunStateFailed {
		return zero, fmt.Errorf("child workflow %q failed: %s", name, childRun.Error)
	}

	var result R
	if len(childRun.Output) > 0 {
		if decErr := json.Unmarshal(childRun.Output, &result); decErr != nil {
			return zero, fmt.Errorf("workflow %s: decode child output %q: %w", w.run.Name, name, decErr)
		}
	}

	// Checkpoint the result (JSON for consistency with child output).
	chkData, encErr := json.Marshal(result)
	if encErr != nil {
		return zero, fmt.Errorf("workflow %s: encode child checkpoint %q: %w", w.run.Name, name, encErr)
	}
	if saveErr := w.store.SaveCheckpoint(w.ctx, w.run.ID, stepName, chkData); saveErr != nil {
		return zero, fmt.Errorf("workflow %s: save child checkpoint %q: %w", w.run.Name, name, saveErr)
	}

	return result, nil
}
