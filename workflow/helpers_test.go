package workflow_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ledgerrun/ledgerrun/store/memory"
	"github.com/ledgerrun/ledgerrun/workflow"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRunner creates a runner over a fresh in-memory store.
func newTestRunner() (*workflow.Runner, *workflow.Registry, *memory.Store) {
	s := memory.New()
	reg := workflow.NewRegistry()
	runner := workflow.NewRunner(reg, s, nil, testLogger())
	return runner, reg, s
}

// awaitCompletion polls until the run is no longer running.
func awaitCompletion(t *testing.T, s *memory.Store, run *workflow.Run) *workflow.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := s.GetRun(context.Background(), run.ID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if got.State != workflow.RunStateRunning {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s did not complete in time", run.ID)
	return nil
}
