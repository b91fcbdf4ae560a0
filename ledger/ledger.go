// Package ledger provides the idempotent account-balance store that is the
// sole source of monetary truth. Every deposit and withdrawal is keyed by a
// caller-supplied idempotency token: replaying a token is a no-op that
// returns the same token, so the retrying operation layer can deliver the
// same logical effect more than once without double-applying it.
package ledger

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/ledgerrun/ledgerrun"
	"github.com/ledgerrun/ledgerrun/fault"
	"github.com/ledgerrun/ledgerrun/id"
)

// SystemAccount collects transfer fees.
const SystemAccount = "system"

// ErrInsufficientFunds is returned by Withdraw when the account balance
// cannot cover the amount. It is a business fault: retrying with the same
// arguments can never succeed, so the operation layer must not retry it.
var ErrInsufficientFunds = fault.Business("not enough balance")

// Operation is the kind of a ledger transaction.
type Operation string

const (
	// OpDeposit credits an account.
	OpDeposit Operation = "deposit"
	// OpWithdraw debits an account.
	OpWithdraw Operation = "withdraw"
)

// Transaction is an applied ledger effect. Transactions are append-only:
// once recorded they are never mutated or deleted.
type Transaction struct {
	ledgerrun.Entity

	ID        id.TransactionID `json:"id"`
	Token     id.Token         `json:"token"`
	UserID    string           `json:"user_id"`
	Operation Operation        `json:"operation"`
	Amount    int              `json:"amount"`
	Concept   string           `json:"concept"`
}

// Store is the persistence contract for balances and transactions.
// Accounts are implicitly zero-initialized on first reference.
type Store interface {
	// ApplyTransaction atomically records tx and adjusts the account
	// balance by delta (positive for deposits, negative for withdrawals).
	// If tx.Token is already recorded, it returns (false, nil) with no
	// mutation. If the adjusted balance would be negative, it returns
	// ErrInsufficientFunds with no mutation. The token lookup and the
	// insert must be a single atomic step: two racing retries of the
	// same token must not both observe "not yet recorded".
	ApplyTransaction(ctx context.Context, tx *Transaction, delta int) (bool, error)

	// GetTransaction retrieves a transaction by its idempotency token.
	GetTransaction(ctx context.Context, token id.Token) (*Transaction, error)

	// Balances returns a read-only snapshot of all account balances.
	Balances(ctx context.Context) (map[string]int, error)

	// SetBalance overwrites an account balance. Used for seeding.
	SetBalance(ctx context.Context, userID string, balance int) error
}

// Ledger wraps a Store with the business rules and optional fault
// injection. Injected faults fire before any mutation, modeling exactly
// the kind of failure an orchestrator's retry policy must mask.
type Ledger struct {
	store       Store
	logger      *slog.Logger
	failureRate float64
	maxLatency  time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithFailureRate makes a fraction p (0..1) of operations fail with a
// transient fault before mutating any state.
func WithFailureRate(p float64) Option {
	return func(l *Ledger) { l.failureRate = p }
}

// WithLatency adds a random delay up to max before each operation,
// simulating a slow downstream resource.
func WithLatency(maxDelay time.Duration) Option {
	return func(l *Ledger) { l.maxLatency = maxDelay }
}

// New creates a Ledger over the given store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Seed sets initial account balances (e.g. the system float).
func (l *Ledger) Seed(ctx context.Context, balances map[string]int) error {
	for userID, balance := range balances {
		if err := l.store.SetBalance(ctx, userID, balance); err != nil {
			return err
		}
	}
	return nil
}

// Deposit credits amount to userID. If token was already recorded the
// call is an idempotent no-op returning the same token.
func (l *Ledger) Deposit(ctx context.Context, userID string, amount int, concept string, token id.Token) (id.Token, error) {
	if err := l.chaos(ctx); err != nil {
		return id.Nil, err
	}

	tx := &Transaction{
		Entity:    ledgerrun.NewEntity(),
		ID:        id.NewTransactionID(),
		Token:     token,
		UserID:    userID,
		Operation: OpDeposit,
		Amount:    amount,
		Concept:   concept,
	}

	applied, err := l.store.ApplyTransaction(ctx, tx, amount)
	if err != nil {
		return id.Nil, err
	}
	if !applied {
		l.logger.Debug("deposit absorbed by idempotency token",
			slog.String("user_id", userID),
			slog.String("token", token.String()),
		)
	}
	return token, nil
}

// Withdraw debits amount from userID. Returns ErrInsufficientFunds when
// the (possibly zero-initialized) balance is less than amount; the store
// is not mutated in that case. Same idempotency rule as Deposit.
func (l *Ledger) Withdraw(ctx context.Context, userID string, amount int, concept string, token id.Token) (id.Token, error) {
	if err := l.chaos(ctx); err != nil {
		return id.Nil, err
	}

	tx := &Transaction{
		Entity:    ledgerrun.NewEntity(),
		ID:        id.NewTransactionID(),
		Token:     token,
		UserID:    userID,
		Operation: OpWithdraw,
		Amount:    amount,
		Concept:   concept,
	}

	applied, err := l.store.ApplyTransaction(ctx, tx, -amount)
	if err != nil {
		return id.Nil, err
	}
	if !applied {
		l.logger.Debug("withdraw absorbed by idempotency token",
			slog.String("user_id", userID),
			slog.String("token", token.String()),
		)
	}
	return token, nil
}

// Transaction retrieves an applied transaction by its idempotency token.
func (l *Ledger) Transaction(ctx context.Context, token id.Token) (*Transaction, error) {
	return l.store.GetTransaction(ctx, token)
}

// Balances returns a snapshot of all account balances.
func (l *Ledger) Balances(ctx context.Context) (map[string]int, error) {
	return l.store.Balances(ctx)
}

// chaos injects the configured latency and transient failures. It runs
// before any mutation so an injected failure never leaves balances or the
// transaction table partially updated.
func (l *Ledger) chaos(ctx context.Context) error {
	if l.maxLatency > 0 {
		d := time.Duration(rand.Int64N(int64(l.maxLatency))) //nolint:gosec // simulation only
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if l.failureRate > 0 && rand.Float64() < l.failureRate { //nolint:gosec // simulation only
		return fault.Transient("something went wrong")
	}
	return nil
}
