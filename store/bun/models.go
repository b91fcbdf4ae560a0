package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/ledgerrun/ledgerrun"
	"github.com/ledgerrun/ledgerrun/id"
	"github.com/ledgerrun/ledgerrun/ledger"
	"github.com/ledgerrun/ledgerrun/signal"
	"github.com/ledgerrun/ledgerrun/workflow"
)

// ── Workflow run model ────────────────────────────────────────────

type runModel struct {
	bun.BaseModel `bun:"table:ledgerrun_runs"`

	ID          string     `bun:"id,pk"`
	Name        string     `bun:"name,notnull"`
	State       string     `bun:"state,notnull,default:'running'"`
	Input       []byte     `bun:"input,type:bytea"`
	Output      []byte     `bun:"output,type:bytea"`
	Error       string     `bun:"error"`
	ParentRunID *string    `bun:"parent_run_id"`
	StartedAt   time.Time  `bun:"started_at,notnull,default:current_timestamp"`
	CompletedAt *time.Time `bun:"completed_at"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toRunModel(r *workflow.Run) *runModel {
	m := &runModel{
		ID:          r.ID.String(),
		Name:        r.Name,
		State:       string(r.State),
		Input:       r.Input,
		Output:      r.Output,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.ParentRunID != nil {
		parent := r.ParentRunID.String()
		m.ParentRunID = &parent
	}
	return m
}

func fromRunModel(m *runModel) (*workflow.Run, error) {
	parsedID, err := id.ParseRunID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("ledgerrun/bun: parse run id %q: %w", m.ID, err)
	}

	r := &workflow.Run{
		Entity: ledgerrun.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		Name:        m.Name,
		State:       workflow.RunState(m.State),
		Input:       m.Input,
		Output:      m.Output,
		Error:       m.Error,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}

	if m.ParentRunID != nil {
		parent, pErr := id.ParseRunID(*m.ParentRunID)
		if pErr != nil {
			return nil, fmt.Errorf("ledgerrun/bun: parse parent run id %q: %w", *m.ParentRunID, pErr)
		}
		r.ParentRunID = &parent
	}

	return r, nil
}

// ── Checkpoint model ──────────────────────────────────────────────

type checkpointModel struct {
	bun.BaseModel `bun:"table:ledgerrun_checkpoints"`

	ID        string    `bun:"id,pk"`
	RunID     string    `bun:"run_id,notnull"`
	StepName  string    `bun:"step_name,notnull"`
	Data      []byte    `bun:"data,notnull,type:bytea"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func fromCheckpointModel(m *checkpointModel) (*workflow.Checkpoint, error) {
	parsedID, err := id.ParseWithPrefix(m.ID, id.PrefixCheckpoint)
	if err != nil {
		return nil, fmt.Errorf("ledgerrun/bun: parse checkpoint id %q: %w", m.ID, err)
	}

	parsedRunID, err := id.ParseRunID(m.RunID)
	if err != nil {
		return nil, fmt.Errorf("ledgerrun/bun: parse run id %q: %w", m.RunID, err)
	}

	data := m.Data
	if data == nil {
		data = []byte{}
	}

	return &workflow.Checkpoint{
		ID:        parsedID,
		RunID:     parsedRunID,
		StepName:  m.StepName,
		Data:      data,
		CreatedAt: m.CreatedAt,
	}, nil
}

// ── Run state model ───────────────────────────────────────────────

type runStateModel struct {
	bun.BaseModel `bun:"table:ledgerrun_run_states"`

	RunID     string    `bun:"run_id,pk"`
	State     []byte    `bun:"state,notnull,type:bytea"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// ── Signal model ──────────────────────────────────────────────────

type signalModel struct {
	bun.BaseModel `bun:"table:ledgerrun_signals"`

	ID        string    `bun:"id,pk"`
	RunID     string    `bun:"run_id,notnull"`
	Name      string    `bun:"name,notnull"`
	Payload   []byte    `bun:"payload,type:bytea"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func toSignalModel(sig *signal.Signal) *signalModel {
	return &signalModel{
		ID:        sig.ID.String(),
		RunID:     sig.RunID.String(),
		Name:      sig.Name,
		Payload:   sig.Payload,
		CreatedAt: sig.CreatedAt,
	}
}

func fromSignalModel(m *signalModel) (*signal.Signal, error) {
	parsedID, err := id.ParseSignalID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("ledgerrun/bun: parse signal id %q: %w", m.ID, err)
	}

	parsedRunID, err := id.ParseRunID(m.RunID)
	if err != nil {
		return nil, fmt.Errorf("ledgerrun/bun: parse run id %q: %w", m.RunID, err)
	}

	return &signal.Signal{
		ID:        parsedID,
		RunID:     parsedRunID,
		Name:      m.Name,
		Payload:   m.Payload,
		CreatedAt: m.CreatedAt,
	}, nil
}

// ── Ledger models ─────────────────────────────────────────────────

type accountModel struct {
	bun.BaseModel `bun:"table:ledgerrun_accounts"`

	UserID    string    `bun:"user_id,pk"`
	Balance   int       `bun:"balance,notnull,default:0"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

type transactionModel struct {
	bun.BaseModel `bun:"table:ledgerrun_transactions"`

	ID        string    `bun:"id,pk"`
	Token     string    `bun:"token,notnull,unique"`
	UserID    string    `bun:"user_id,notnull"`
	Operation string    `bun:"operation,notnull"`
	Amount    int       `bun:"amount,notnull"`
	Concept   string    `bun:"concept"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func toTransactionModel(tx *ledger.Transaction) *transactionModel {
	return &transactionModel{
		ID:        tx.ID.String(),
		Token:     tx.Token.String(),
		UserID:    tx.UserID,
		Operation: string(tx.Operation),
		Amount:    tx.Amount,
		Concept:   tx.Concept,
		CreatedAt: tx.CreatedAt,
		UpdatedAt: tx.UpdatedAt,
	}
}

func fromTransactionModel(m *transactionModel) (*ledger.Transaction, error) {
	parsedID, err := id.ParseWithPrefix(m.ID, id.PrefixTransaction)
	if err != nil {
		return nil, fmt.Errorf("ledgerrun/bun: parse transaction id %q: %w", m.ID, err)
	}

	parsedToken, err := id.ParseToken(m.Token)
	if err != nil {
		return nil, fmt.Errorf("ledgerrun/bun: parse token %q: %w", m.Token, err)
	}

	return &ledger.Transaction{
		Entity: ledgerrun.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        parsedID,
		Token:     parsedToken,
		UserID:    m.UserID,
		Operation: ledger.Operation(m.Operation),
		Amount:    m.Amount,
		Concept:   m.Concept,
	}, nil
}
