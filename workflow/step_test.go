package workflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ledgerrun/ledgerrun/id"
	"github.com/ledgerrun/ledgerrun/workflow"
)

type noState struct{}

func TestStep_HappyPath(t *testing.T) {
	runner, reg, _ := newTestRunner()

	var step1Done, step2Done bool
	workflow.RegisterDefinition(reg, workflow.New("step-test", func(wf *workflow.Workflow, _ *noState, _ struct{}) error {
		if err := wf.Step("step-1", func(_ context.Context) error {
			step1Done = true
			return nil
		}); err != nil {
			return err
		}
		return wf.Step("step-2", func(_ context.Context) error {
			step2Done = true
			return nil
		})
	}))

	run, err := workflow.Start(context.Background(), runner, "step-test", struct{}{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if !step1Done {
		t.Error("step-1 did not execute")
	}
	if !step2Done {
		t.Error("step-2 did not execute")
	}
	if run.State != workflow.RunStateCompleted {
		t.Errorf("state = %q, want %q", run.State, workflow.RunStateCompleted)
	}
}

func TestStep_CheckpointSkip(t *testing.T) {
	runner, reg, s := newTestRunner()

	var calls int
	workflow.RegisterDefinition(reg, workflow.New("checkpoint-test", func(wf *workflow.Workflow, _ *noState, _ struct{}) error {
		return wf.Step("idempotent-step", func(_ context.Context) error {
			calls++
			return nil
		})
	}))

	run, err := workflow.Start(context.Background(), runner, "checkpoint-test", struct{}{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	// Simulate crash: reset to running.
	run.State = workflow.RunStateRunning
	run.CompletedAt = nil
	if updateErr := s.UpdateRun(context.Background(), run); updateErr != nil {
		t.Fatalf("UpdateRun: %v", updateErr)
	}

	// Resume: the step must be skipped.
	if resumeErr := runner.Resume(context.Background(), run.ID); resumeErr != nil {
		t.Fatalf("Resume: %v", resumeErr)
	}
	if calls != 1 {
		t.Errorf("calls after resume = %d, want 1 (step should be skipped)", calls)
	}
}

func TestStep_Failure(t *testing.T) {
	runner, reg, _ := newTestRunner()

	boom := errors.New("step failed")
	workflow.RegisterDefinition(reg, workflow.New("fail-step-test", func(wf *workflow.Workflow, _ *noState, _ struct{}) error {
		return wf.Step("bad-step", func(_ context.Context) error {
			return boom
		})
	}))

	run, err := workflow.Start(context.Background(), runner, "fail-step-test", struct{}{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.State != workflow.RunStateFailed {
		t.Errorf("state = %q, want %q", run.State, workflow.RunStateFailed)
	}
	if run.Error == "" {
		t.Error("run error not recorded")
	}
}

func TestStepWithResult_CachesValue(t *testing.T) {
	runner, reg, s := newTestRunner()

	var calls int
	var firstValue int
	workflow.RegisterDefinition(reg, workflow.New("result-test", func(wf *workflow.Workflow, _ *noState, _ struct{}) error {
		v, err := workflow.StepWithResult(wf, "compute", func(_ context.Context) (int, error) {
			calls++
			return 41 + calls, nil
		})
		if err != nil {
			return err
		}
		firstValue = v
		return nil
	}))

	run, err := workflow.Start(context.Background(), runner, "result-test", struct{}{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if firstValue != 42 {
		t.Fatalf("value = %d, want 42", firstValue)
	}

	run.State = workflow.RunStateRunning
	run.CompletedAt = nil
	if err := s.UpdateRun(context.Background(), run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	if err := runner.Resume(context.Background(), run.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if calls != 1 {
		t.Errorf("calls = %d, want 1 (result should come from checkpoint)", calls)
	}
	if firstValue != 42 {
		t.Errorf("replayed value = %d, want the original 42", firstValue)
	}
}

// Idempotency tokens are generated inside a checkpointed step, so a
// replay must observe the identical tokens.
func TestStepWithResult_PinsTokens(t *testing.T) {
	runner, reg, s := newTestRunner()

	type tokens struct {
		Withdraw id.Token
		Deposit  id.Token
	}

	var seen []tokens
	workflow.RegisterDefinition(reg, workflow.New("token-test", func(wf *workflow.Workflow, _ *noState, _ struct{}) error {
		tks, err := workflow.StepWithResult(wf, "tokens", func(_ context.Context) (tokens, error) {
			return tokens{Withdraw: id.NewToken(), Deposit: id.NewToken()}, nil
		})
		if err != nil {
			return err
		}
		seen = append(seen, tks)
		return nil
	}))

	run, err := workflow.Start(context.Background(), runner, "token-test", struct{}{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	run.State = workflow.RunStateRunning
	run.CompletedAt = nil
	if err := s.UpdateRun(context.Background(), run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	if err := runner.Resume(context.Background(), run.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("handler executions = %d, want 2", len(seen))
	}
	if seen[0].Withdraw != seen[1].Withdraw || seen[0].Deposit != seen[1].Deposit {
		t.Errorf("tokens changed across replay: %v vs %v", seen[0], seen[1])
	}
	if seen[0].Withdraw.IsNil() {
		t.Error("token not generated")
	}
}
