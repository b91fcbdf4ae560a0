package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ledgerrun/ledgerrun"
	"github.com/ledgerrun/ledgerrun/backoff"
	"github.com/ledgerrun/ledgerrun/engine"
	"github.com/ledgerrun/ledgerrun/fault"
	"github.com/ledgerrun/ledgerrun/id"
	"github.com/ledgerrun/ledgerrun/ledger"
	"github.com/ledgerrun/ledgerrun/store/memory"
	"github.com/ledgerrun/ledgerrun/transfer"
	"github.com/ledgerrun/ledgerrun/vending"
	"github.com/ledgerrun/ledgerrun/workflow"
)

func newTestEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *memory.Store) {
	t.Helper()

	st := memory.New()
	opts = append([]engine.Option{
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithBackoff(backoff.NewFixed(time.Millisecond)),
		engine.WithTransferConfig(transfer.Config{ApprovalWait: 2 * time.Second}),
		engine.WithVendingConfig(vending.Config{
			SelectionWait: 2 * time.Second,
			PaymentWait:   2 * time.Second,
		}),
	}, opts...)

	eng, err := engine.Build(st, opts...)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })
	return eng, st
}

func await(t *testing.T, eng *engine.Engine, run *workflow.Run) *workflow.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := eng.GetRun(context.Background(), run.ID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if got.State != workflow.RunStateRunning {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s did not complete", run.ID)
	return nil
}

func TestBuild_RequiresStore(t *testing.T) {
	if _, err := engine.Build(nil); err != ledgerrun.ErrNoStore {
		t.Errorf("Build(nil) = %v, want ErrNoStore", err)
	}
}

func TestStart_SeedsSystemAccountOnce(t *testing.T) {
	eng, _ := newTestEngine(t)

	balances, err := eng.Balances(context.Background())
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if balances[ledger.SystemAccount] != engine.SystemSeed {
		t.Fatalf("system = %d, want %d", balances[ledger.SystemAccount], engine.SystemSeed)
	}

	// A restart with existing balances must not reset them.
	if err := eng.Ledger().Seed(context.Background(), map[string]int{"alice": 5}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	balances, _ = eng.Balances(context.Background())
	if balances["alice"] != 5 {
		t.Errorf("alice = %d after restart, want 5", balances["alice"])
	}
}

func TestCreateTransfer_Validation(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		from, to string
		amount   int
	}{
		{"missing sender", "", "bob", 10},
		{"missing receiver", "alice", "", 10},
		{"zero amount", "alice", "bob", 0},
		{"negative amount", "alice", "bob", -5},
	}
	for _, c := range cases {
		_, err := eng.CreateTransfer(ctx, c.from, c.to, c.amount)
		if fault.KindOf(err) != fault.KindValidation {
			t.Errorf("%s: error = %v, want validation", c.name, err)
		}
	}
}

func TestCreateTransfer_EndToEnd(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	if err := st.SetBalance(ctx, "alice", 100); err != nil {
		t.Fatalf("seed: %v", err)
	}

	run, err := eng.CreateTransfer(ctx, "alice", "bob", 50)
	if err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}

	got := await(t, eng, run)
	var res transfer.Result
	if err := json.Unmarshal(got.Output, &res); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if !res.Success {
		t.Fatalf("transfer failed: %s", res.Message)
	}

	balances, _ := eng.Balances(ctx)
	if balances["alice"] != 45 || balances["bob"] != 50 {
		t.Errorf("balances = %v", balances)
	}
	if balances[ledger.SystemAccount] != engine.SystemSeed+5 {
		t.Errorf("system = %d, want %d", balances[ledger.SystemAccount], engine.SystemSeed+5)
	}
}

func TestApprove_ForwardedToApprovalChild(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	if err := st.SetBalance(ctx, "alice", 500); err != nil {
		t.Fatalf("seed: %v", err)
	}

	run, err := eng.CreateTransfer(ctx, "alice", "bob", 150)
	if err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}

	// The approval child starts asynchronously; retry until its session
	// is live.
	deadline := time.Now().Add(5 * time.Second)
	for {
		err = eng.Approve(ctx, run.ID, true)
		if err == nil {
			break
		}
		if !time.Now().Before(deadline) {
			t.Fatalf("Approve never delivered: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := await(t, eng, run)
	var res transfer.Result
	if err := json.Unmarshal(got.Output, &res); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if !res.Success {
		t.Fatalf("approved transfer failed: %s", res.Message)
	}

	// The approval delivery is audited on the child run.
	children, err := st.ListChildRuns(ctx, run.ID)
	if err != nil || len(children) != 1 {
		t.Fatalf("ListChildRuns: %v (%d)", err, len(children))
	}
	sigs, err := eng.SignalHistory(ctx, children[0].ID)
	if err != nil {
		t.Fatalf("SignalHistory: %v", err)
	}
	if len(sigs) != 1 || sigs[0].Name != transfer.SignalApprove {
		t.Errorf("signal history = %v, want one approveTransfer", sigs)
	}
}

func TestVendingFacade(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	run, err := eng.StartVendingSession(ctx)
	if err != nil {
		t.Fatalf("StartVendingSession: %v", err)
	}

	addProduct := func(product string) error { return eng.AddProduct(ctx, run.ID, product) }
	insertCoin := func(amount int) error { return eng.InsertCoin(ctx, run.ID, amount) }

	for _, step := range []func() error{
		func() error { return addProduct("coke") },
		func() error { return insertCoin(5) },
	} {
		deadline := time.Now().Add(5 * time.Second)
		for {
			err := step()
			if err == nil {
				break
			}
			if fault.KindOf(err) == fault.KindValidation {
				t.Fatalf("signal rejected: %v", err)
			}
			if !time.Now().Before(deadline) {
				t.Fatalf("signal never delivered: %v", err)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	got := await(t, eng, run)
	if got.State != workflow.RunStateCompleted {
		t.Fatalf("state = %q, error = %q", got.State, got.Error)
	}

	// The durable state snapshot reflects the finished session.
	snap, err := eng.RunState(ctx, run.ID)
	if err != nil {
		t.Fatalf("RunState: %v", err)
	}
	var state vending.State
	if err := json.Unmarshal(snap, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Stage != vending.StageWaitingForCoins {
		t.Errorf("stage = %q", state.Stage)
	}
	if len(state.Cart) != 1 || state.Cart[0] != "coke" {
		t.Errorf("cart = %v, want [coke]", state.Cart)
	}
}

func TestRunState_UnknownRun(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.RunState(context.Background(), id.NewRunID())
	if !errors.Is(err, ledgerrun.ErrRunNotFound) {
		t.Errorf("RunState = %v, want ErrRunNotFound", err)
	}
}
