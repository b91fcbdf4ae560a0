package operation

import (
	"context"
	"log/slog"

	"github.com/ledgerrun/ledgerrun/id"
	"github.com/ledgerrun/ledgerrun/ledger"
)

// Transaction concepts recorded by transfer operations.
const (
	ConceptTransferSent            = "transfer sent"
	ConceptTransferReceived        = "transfer received"
	ConceptTransferSendRollback    = "transfer send rollback"
	ConceptTransferReceiveRollback = "transfer receive rollback"
)

// Transfers exposes the monetary operations invoked by the transfer
// workflows. Every method is idempotent under its token argument, so
// the retry policy can invoke it more than once for the same logical
// attempt.
type Transfers struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewTransfers creates the transfer operations over a ledger.
func NewTransfers(l *ledger.Ledger, logger *slog.Logger) *Transfers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transfers{ledger: l, logger: logger}
}

// Withdraw debits amount from userID and returns the applied token.
func (t *Transfers) Withdraw(ctx context.Context, userID string, amount int, token id.Token) (id.Token, error) {
	return t.ledger.Withdraw(ctx, userID, amount, ConceptTransferSent, token)
}

// Deposit credits amount to userID and returns the applied token.
func (t *Transfers) Deposit(ctx context.Context, userID string, amount int, token id.Token) (id.Token, error) {
	return t.ledger.Deposit(ctx, userID, amount, ConceptTransferReceived, token)
}

// RollbackWithdraw undoes a prior withdrawal. It resolves the original
// transaction by its token and deposits the same amount back to the
// same account under the fresh rollback token.
func (t *Transfers) RollbackWithdraw(ctx context.Context, withdrawToken, rollbackToken id.Token) error {
	tx, err := t.ledger.Transaction(ctx, withdrawToken)
	if err != nil {
		return err
	}
	_, err = t.ledger.Deposit(ctx, tx.UserID, tx.Amount, ConceptTransferSendRollback, rollbackToken)
	return err
}

// RollbackDeposit undoes a prior deposit. It resolves the original
// transaction by its token and withdraws the same amount from the same
// account under the fresh rollback token.
func (t *Transfers) RollbackDeposit(ctx context.Context, depositToken, rollbackToken id.Token) error {
	tx, err := t.ledger.Transaction(ctx, depositToken)
	if err != nil {
		return err
	}
	_, err = t.ledger.Withdraw(ctx, tx.UserID, tx.Amount, ConceptTransferReceiveRollback, rollbackToken)
	return err
}

// NotifyApprovalRequest tells the approver that a transfer needs a
// decision. The reference behavior is a no-op notification; here it is
// a structured log line standing in for an email or webhook.
func (t *Transfers) NotifyApprovalRequest(_ context.Context, userID string, amount int) error {
	t.logger.Info("approval requested",
		slog.String("user_id", userID),
		slog.Int("amount", amount),
	)
	return nil
}
