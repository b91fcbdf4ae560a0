package operation_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ledgerrun/ledgerrun"
	"github.com/ledgerrun/ledgerrun/id"
	"github.com/ledgerrun/ledgerrun/ledger"
	"github.com/ledgerrun/ledgerrun/operation"
	"github.com/ledgerrun/ledgerrun/store/memory"
)

func newTestTransfers() (*operation.Transfers, *ledger.Ledger) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.New(memory.New(), ledger.WithLogger(logger))
	return operation.NewTransfers(l, logger), l
}

func TestRollbackWithdraw_RestoresBalance(t *testing.T) {
	ops, l := newTestTransfers()
	ctx := context.Background()

	if err := l.Seed(ctx, map[string]int{"alice": 100}); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	withdrawToken := id.NewToken()
	if _, err := ops.Withdraw(ctx, "alice", 60, withdrawToken); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}

	rollbackToken := id.NewToken()
	if err := ops.RollbackWithdraw(ctx, withdrawToken, rollbackToken); err != nil {
		t.Fatalf("RollbackWithdraw: %v", err)
	}

	balances, _ := l.Balances(ctx)
	if balances["alice"] != 100 {
		t.Errorf("alice = %d, want 100 after rollback", balances["alice"])
	}

	// The rollback token is idempotent too: a retried rollback must not
	// double-credit.
	if err := ops.RollbackWithdraw(ctx, withdrawToken, rollbackToken); err != nil {
		t.Fatalf("retried RollbackWithdraw: %v", err)
	}
	balances, _ = l.Balances(ctx)
	if balances["alice"] != 100 {
		t.Errorf("alice = %d after retried rollback, want 100", balances["alice"])
	}
}

func TestRollbackDeposit_RemovesCredit(t *testing.T) {
	ops, l := newTestTransfers()
	ctx := context.Background()

	depositToken := id.NewToken()
	if _, err := ops.Deposit(ctx, "bob", 40, depositToken); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	if err := ops.RollbackDeposit(ctx, depositToken, id.NewToken()); err != nil {
		t.Fatalf("RollbackDeposit: %v", err)
	}

	balances, _ := l.Balances(ctx)
	if balances["bob"] != 0 {
		t.Errorf("bob = %d, want 0 after rollback", balances["bob"])
	}
}

func TestRollback_UnknownToken(t *testing.T) {
	ops, _ := newTestTransfers()

	err := ops.RollbackWithdraw(context.Background(), id.NewToken(), id.NewToken())
	if !errors.Is(err, ledgerrun.ErrTransactionNotFound) {
		t.Errorf("error = %v, want ErrTransactionNotFound", err)
	}
}
