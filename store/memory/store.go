package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ledgerrun/ledgerrun"
	"github.com/ledgerrun/ledgerrun/id"
	"github.com/ledgerrun/ledgerrun/ledger"
	"github.com/ledgerrun/ledgerrun/signal"
	"github.com/ledgerrun/ledgerrun/workflow"
)

// Ensure Store implements each subsystem contract at compile time.
var (
	_ workflow.Store = (*Store)(nil)
	_ signal.Store   = (*Store)(nil)
	_ ledger.Store   = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	runs        map[string]*workflow.Run
	checkpoints map[string]*workflow.Checkpoint // key: "runID:stepName"
	states      map[string][]byte               // key: runID
	signals     map[string][]*signal.Signal     // key: runID, delivery order
	balances    map[string]int                  // key: userID
	txs         map[string]*ledger.Transaction  // key: token
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		runs:        make(map[string]*workflow.Run),
		checkpoints: make(map[string]*workflow.Checkpoint),
		states:      make(map[string][]byte),
		signals:     make(map[string][]*signal.Signal),
		balances:    make(map[string]int),
		txs:         make(map[string]*ledger.Transaction),
	}
}

// ── Lifecycle ───────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Workflow Store
// ──────────────────────────────────────────────────

// CreateRun persists a new workflow run.
func (m *Store) CreateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := run.ID.String()
	if _, exists := m.runs[key]; exists {
		return ledgerrun.ErrRunAlreadyExists
	}
	cp := *run
	m.runs[key] = &cp
	return nil
}

// GetRun retrieves a workflow run by ID.
func (m *Store) GetRun(_ context.Context, runID id.RunID) (*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[runID.String()]
	if !ok {
		return nil, ledgerrun.ErrRunNotFound
	}
	cp := *r
	return &cp, nil
}

// UpdateRun persists changes to an existing workflow run.
func (m *Store) UpdateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := run.ID.String()
	if _, ok := m.runs[key]; !ok {
		return ledgerrun.ErrRunNotFound
	}
	cp := *run
	cp.UpdatedAt = time.Now().UTC()
	m.runs[key] = &cp
	return nil
}

// ListRuns returns workflow runs filtered by state.
func (m *Store) ListRuns(_ context.Context, state workflow.RunState) ([]*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*workflow.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if state != "" && r.State != state {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// ListChildRuns returns all child workflow runs for a parent.
func (m *Store) ListChildRuns(_ context.Context, parentRunID id.RunID) ([]*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*workflow.Run
	for _, r := range m.runs {
		if r.ParentRunID == nil || r.ParentRunID.String() != parentRunID.String() {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// checkpointKey builds a composite map key for a checkpoint.
func checkpointKey(runID id.RunID, stepName string) string {
	return runID.String() + ":" + stepName
}

// SaveCheckpoint persists checkpoint data for a workflow step.
func (m *Store) SaveCheckpoint(_ context.Context, runID id.RunID, stepName string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := checkpointKey(runID, stepName)
	m.checkpoints[key] = &workflow.Checkpoint{
		ID:        id.NewCheckpointID(),
		RunID:     runID,
		StepName:  stepName,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// GetCheckpoint retrieves checkpoint data for a specific workflow step.
func (m *Store) GetCheckpoint(_ context.Context, runID id.RunID, stepName string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[checkpointKey(runID, stepName)]
	if !ok {
		return nil, nil // no checkpoint is not an error
	}
	if cp.Data == nil {
		return []byte{}, nil
	}
	return cp.Data, nil
}

// ListCheckpoints returns all checkpoints for a workflow run.
func (m *Store) ListCheckpoints(_ context.Context, runID id.RunID) ([]*workflow.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := runID.String() + ":"
	var result []*workflow.Checkpoint
	for k, cp := range m.checkpoints {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			result = append(result, cp)
		}
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// SaveState stores the latest state snapshot for a run.
func (m *Store) SaveState(_ context.Context, runID id.RunID, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]byte, len(state))
	copy(cp, state)
	m.states[runID.String()] = cp
	return nil
}

// GetState retrieves the latest state snapshot for a run.
func (m *Store) GetState(_ context.Context, runID id.RunID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[runID.String()]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(state))
	copy(cp, state)
	return cp, nil
}

// ──────────────────────────────────────────────────
// Signal Store
// ──────────────────────────────────────────────────

// SaveSignal appends a signal record to the run's delivery log.
func (m *Store) SaveSignal(_ context.Context, sig *signal.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *sig
	key := sig.RunID.String()
	m.signals[key] = append(m.signals[key], &cp)
	return nil
}

// ListSignals returns the signal records for a run in delivery order.
func (m *Store) ListSignals(_ context.Context, runID id.RunID) ([]*signal.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.signals[runID.String()]
	result := make([]*signal.Signal, len(recs))
	for i, s := range recs {
		cp := *s
		result[i] = &cp
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Ledger Store
// ──────────────────────────────────────────────────

// ApplyTransaction atomically records tx and adjusts the account balance
// by delta. The token lookup and the insert happen under one lock, so two
// racing retries of the same token cannot both apply.
func (m *Store) ApplyTransaction(_ context.Context, tx *ledger.Transaction, delta int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tokenKey := tx.Token.String()
	if _, exists := m.txs[tokenKey]; exists {
		return false, nil
	}

	balance := m.balances[tx.UserID]
	if balance+delta < 0 {
		return false, ledger.ErrInsufficientFunds
	}

	cp := *tx
	m.txs[tokenKey] = &cp
	m.balances[tx.UserID] = balance + delta
	return true, nil
}

// GetTransaction retrieves a transaction by its idempotency token.
func (m *Store) GetTransaction(_ context.Context, token id.Token) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.txs[token.String()]
	if !ok {
		return nil, ledgerrun.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

// Balances returns a snapshot of all account balances.
func (m *Store) Balances(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]int, len(m.balances))
	for userID, balance := range m.balances {
		result[userID] = balance
	}
	return result, nil
}

// SetBalance overwrites an account balance.
func (m *Store) SetBalance(_ context.Context, userID string, balance int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.balances[userID] = balance
	return nil
}
