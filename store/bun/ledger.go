package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/ledgerrun/ledgerrun"
	"github.com/ledgerrun/ledgerrun/id"
	"github.com/ledgerrun/ledgerrun/ledger"
)

// ApplyTransaction atomically records tx and adjusts the account balance by
// delta. The token insert and the balance update share one database
// transaction, so a replayed token observes (false, nil) and an overdraft
// rolls the insert back.
func (s *Store) ApplyTransaction(ctx context.Context, tx *ledger.Transaction, delta int) (bool, error) {
	applied := false

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, dbtx bun.Tx) error {
		m := toTransactionModel(tx)
		res, err := dbtx.NewInsert().Model(m).
			On("CONFLICT (token) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("record transaction: %w", err)
		}
		rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
		if rows == 0 {
			// Token already applied. Leave the ledger untouched.
			return nil
		}

		if _, err := dbtx.NewInsert().
			Model(&accountModel{UserID: tx.UserID, UpdatedAt: time.Now().UTC()}).
			On("CONFLICT (user_id) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("ensure account: %w", err)
		}

		res, err = dbtx.NewUpdate().
			TableExpr("ledgerrun_accounts").
			Set("balance = balance + ?", delta).
			Set("updated_at = NOW()").
			Where("user_id = ?", tx.UserID).
			Where("balance + ? >= 0", delta).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("adjust balance: %w", err)
		}
		rows, _ = res.RowsAffected() //nolint:errcheck // driver always returns nil
		if rows == 0 {
			return ledger.ErrInsufficientFunds
		}

		applied = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return false, ledger.ErrInsufficientFunds
		}
		return false, fmt.Errorf("ledgerrun/bun: apply transaction: %w", err)
	}
	return applied, nil
}

// GetTransaction retrieves a transaction by its idempotency token.
func (s *Store) GetTransaction(ctx context.Context, token id.Token) (*ledger.Transaction, error) {
	m := new(transactionModel)
	err := s.db.NewSelect().Model(m).
		Where("token = ?", token.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ledgerrun.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("ledgerrun/bun: get transaction: %w", err)
	}
	return fromTransactionModel(m)
}

// Balances returns a snapshot of all account balances.
func (s *Store) Balances(ctx context.Context) (map[string]int, error) {
	var models []accountModel
	if err := s.db.NewSelect().Model(&models).Scan(ctx); err != nil {
		return nil, fmt.Errorf("ledgerrun/bun: balances: %w", err)
	}

	balances := make(map[string]int, len(models))
	for i := range models {
		balances[models[i].UserID] = models[i].Balance
	}
	return balances, nil
}

// SetBalance overwrites an account balance. Used for seeding.
func (s *Store) SetBalance(ctx context.Context, userID string, balance int) error {
	m := &accountModel{
		UserID:    userID,
		Balance:   balance,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (user_id) DO UPDATE").
		Set("balance = EXCLUDED.balance").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ledgerrun/bun: set balance: %w", err)
	}
	return nil
}
