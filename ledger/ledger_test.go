package ledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ledgerrun/ledgerrun/fault"
	"github.com/ledgerrun/ledgerrun/id"
	"github.com/ledgerrun/ledgerrun/ledger"
	"github.com/ledgerrun/ledgerrun/store/memory"
)

func newTestLedger(opts ...ledger.Option) (*ledger.Ledger, *memory.Store) {
	s := memory.New()
	opts = append(opts, ledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return ledger.New(s, opts...), s
}

func TestDepositAndWithdraw(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	if _, err := l.Deposit(ctx, "alice", 100, "transfer received", id.NewToken()); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if _, err := l.Withdraw(ctx, "alice", 40, "transfer sent", id.NewToken()); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}

	balances, err := l.Balances(ctx)
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if balances["alice"] != 60 {
		t.Errorf("alice = %d, want 60", balances["alice"])
	}
}

func TestDeposit_TokenReplayIsNoOp(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	token := id.NewToken()
	for range 3 {
		got, err := l.Deposit(ctx, "alice", 50, "transfer received", token)
		if err != nil {
			t.Fatalf("Deposit: %v", err)
		}
		if got != token {
			t.Fatalf("returned token %s, want %s", got, token)
		}
	}

	balances, _ := l.Balances(ctx)
	if balances["alice"] != 50 {
		t.Errorf("alice = %d, want 50 (replays must not double-apply)", balances["alice"])
	}
}

func TestWithdraw_InsufficientFunds(t *testing.T) {
	l, s := newTestLedger()
	ctx := context.Background()

	token := id.NewToken()
	_, err := l.Withdraw(ctx, "broke", 10, "transfer sent", token)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want ErrInsufficientFunds", err)
	}

	// Business fault: the retry layer must not retry it.
	if fault.Retryable(err) {
		t.Error("ErrInsufficientFunds reported as retryable")
	}

	// Nothing recorded, so the same token works once funded.
	if err := s.SetBalance(ctx, "broke", 10); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	if _, err := l.Withdraw(ctx, "broke", 10, "transfer sent", token); err != nil {
		t.Fatalf("Withdraw after funding: %v", err)
	}
	balances, _ := l.Balances(ctx)
	if balances["broke"] != 0 {
		t.Errorf("broke = %d, want 0", balances["broke"])
	}
}

func TestTransactionLookup(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	token := id.NewToken()
	if _, err := l.Deposit(ctx, "alice", 25, "transfer received", token); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	tx, err := l.Transaction(ctx, token)
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if tx.UserID != "alice" || tx.Amount != 25 || tx.Operation != ledger.OpDeposit {
		t.Errorf("transaction = %+v", tx)
	}
}

func TestChaos_FailsBeforeMutating(t *testing.T) {
	l, _ := newTestLedger(ledger.WithFailureRate(1))
	ctx := context.Background()

	_, err := l.Deposit(ctx, "alice", 100, "transfer received", id.NewToken())
	if err == nil {
		t.Fatal("expected injected failure")
	}
	if !fault.Retryable(err) {
		t.Errorf("injected failure %v should be retryable", err)
	}

	balances, _ := l.Balances(ctx)
	if balances["alice"] != 0 {
		t.Errorf("alice = %d, want 0 (failure must precede mutation)", balances["alice"])
	}
}

func TestSeed(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	if err := l.Seed(ctx, map[string]int{ledger.SystemAccount: 10000}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	balances, _ := l.Balances(ctx)
	if balances[ledger.SystemAccount] != 10000 {
		t.Errorf("system = %d, want 10000", balances[ledger.SystemAccount])
	}
}
