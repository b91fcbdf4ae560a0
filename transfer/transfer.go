// Package transfer implements the saga-driven money transfer workflow
// and its approval sub-workflow. A transfer debits the sender for the
// amount plus a 10% fee, credits the receiver, and credits the fee to
// the system account; each of those effects registers a compensation so
// a failure partway through reverts the funds already moved. Transfers
// at or above the approval threshold first run the approval workflow
// and give up without moving money when it is denied or times out.
package transfer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerrun/ledgerrun/fault"
	"github.com/ledgerrun/ledgerrun/id"
	"github.com/ledgerrun/ledgerrun/ledger"
	"github.com/ledgerrun/ledgerrun/operation"
	"github.com/ledgerrun/ledgerrun/saga"
	"github.com/ledgerrun/ledgerrun/workflow"
)

// Workflow names and signal names.
const (
	WorkflowName         = "transfer"
	ApprovalWorkflowName = "approval"

	// SignalApprove carries the approver's boolean decision. It is
	// consumed by the approval workflow; senders may address it to the
	// transfer run, which forwards it to the running approval child.
	SignalApprove = "approveTransfer"
)

// ApprovalThreshold is the amount at and above which a transfer needs
// an explicit approval before any money moves.
const ApprovalThreshold = 100

// feeRate is the transfer fee fraction.
var feeRate = decimal.NewFromFloat(0.1)

// Config carries the tunables tests compress.
type Config struct {
	// Threshold is the approval amount threshold. Zero means
	// ApprovalThreshold.
	Threshold int
	// ApprovalWait bounds how long the approval workflow waits for a
	// decision. Zero means 10 minutes.
	ApprovalWait time.Duration
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:    ApprovalThreshold,
		ApprovalWait: 10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	if c.Threshold == 0 {
		c.Threshold = ApprovalThreshold
	}
	if c.ApprovalWait == 0 {
		c.ApprovalWait = 10 * time.Minute
	}
	return c
}

// Input starts a transfer.
type Input struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int    `json:"amount"`
}

// Result is the transfer run's output. A completed run can still carry
// Success=false: the workflow finished, the money did not move.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// State is the transfer's durable state, inspectable while the run is
// in flight.
type State struct {
	ApprovalRequired bool `json:"approval_required"`
}

// Fee computes the transfer fee: 10% of the amount, rounded half away
// from zero. Fee(10) = 1, Fee(25) = 3.
func Fee(amount int) int {
	return int(decimal.NewFromInt(int64(amount)).Mul(feeRate).Round(0).IntPart())
}

// tokens pins every idempotency token the transfer will use. Generating
// them in one checkpointed step means a replayed or retried attempt
// reuses the same tokens and the ledger absorbs the duplicates.
type tokens struct {
	Withdraw         id.Token
	RollbackWithdraw id.Token
	Deposit          id.Token
	RollbackDeposit  id.Token
	Fee              id.Token
	RollbackFee      id.Token
}

// Workflow builds the transfer workflow definition over the given
// operations and retry invoker.
func Workflow(ops *operation.Transfers, inv *operation.Invoker, cfg Config) *workflow.Definition[Input, State] {
	cfg = cfg.withDefaults()

	return workflow.New(WorkflowName, func(wf *workflow.Workflow, state *State, in Input) error {
		if in.Amount <= 0 {
			return fault.Validation("amount must be greater than zero")
		}
		fee := Fee(in.Amount)

		if in.Amount >= cfg.Threshold {
			state.ApprovalRequired = true
			if err := wf.SaveState(); err != nil {
				return err
			}
			approved, err := workflow.RunChild[ApprovalInput, bool](wf, ApprovalWorkflowName, ApprovalInput{
				User:   in.From,
				Amount: in.Amount,
			})
			if err != nil {
				return err
			}
			if !approved {
				return wf.SetOutput(Result{Success: false, Message: "unable to get transfer approval"})
			}
		}

		toks, err := workflow.StepWithResult(wf, "tokens", func(_ context.Context) (tokens, error) {
			return tokens{
				Withdraw:         id.NewToken(),
				RollbackWithdraw: id.NewToken(),
				Deposit:          id.NewToken(),
				RollbackDeposit:  id.NewToken(),
				Fee:              id.NewToken(),
				RollbackFee:      id.NewToken(),
			}, nil
		})
		if err != nil {
			return err
		}

		sg := saga.New()

		debit, err := workflow.StepWithResult(wf, "withdraw", func(ctx context.Context) (id.Token, error) {
			return operation.InvokeResult(ctx, inv, "withdraw", func(ctx context.Context) (id.Token, error) {
				return ops.Withdraw(ctx, in.From, in.Amount+fee, toks.Withdraw)
			})
		})
		if err != nil {
			return abort(wf, sg, err)
		}
		sg.AddCompensation("rollbackWithdraw", func(ctx context.Context) error {
			return inv.Invoke(ctx, "rollbackWithdraw", func(ctx context.Context) error {
				return ops.RollbackWithdraw(ctx, debit, toks.RollbackWithdraw)
			})
		})

		credit, err := workflow.StepWithResult(wf, "deposit", func(ctx context.Context) (id.Token, error) {
			return operation.InvokeResult(ctx, inv, "deposit", func(ctx context.Context) (id.Token, error) {
				return ops.Deposit(ctx, in.To, in.Amount, toks.Deposit)
			})
		})
		if err != nil {
			return abort(wf, sg, err)
		}
		sg.AddCompensation("rollbackDeposit", func(ctx context.Context) error {
			return inv.Invoke(ctx, "rollbackDeposit", func(ctx context.Context) error {
				return ops.RollbackDeposit(ctx, credit, toks.RollbackDeposit)
			})
		})

		feeCredit, err := workflow.StepWithResult(wf, "deposit-fee", func(ctx context.Context) (id.Token, error) {
			return operation.InvokeResult(ctx, inv, "deposit", func(ctx context.Context) (id.Token, error) {
				return ops.Deposit(ctx, ledger.SystemAccount, fee, toks.Fee)
			})
		})
		if err != nil {
			return abort(wf, sg, err)
		}
		sg.AddCompensation("rollbackFeeDeposit", func(ctx context.Context) error {
			return inv.Invoke(ctx, "rollbackDeposit", func(ctx context.Context) error {
				return ops.RollbackDeposit(ctx, feeCredit, toks.RollbackFee)
			})
		})

		return wf.SetOutput(Result{Success: true, Message: "transfer completed successfully"})
	})
}

// abort reverts the effects recorded so far and completes the run with
// a failure result carrying the triggering error. Compensation errors
// are logged, not propagated: compensations are best-effort cleanup and
// the run's outcome is already decided.
func abort(wf *workflow.Workflow, sg *saga.Saga, cause error) error {
	if err := wf.Step("compensate", func(ctx context.Context) error {
		if compErr := sg.Compensate(ctx); compErr != nil {
			wf.Logger().Error("compensation errors during transfer rollback",
				slog.String("run_id", wf.RunID().String()),
				slog.String("error", compErr.Error()),
			)
		}
		return nil
	}); err != nil {
		return err
	}
	return wf.SetOutput(Result{
		Success: false,
		Message: "unexpected error when trying to complete transfer: " + cause.Error(),
	})
}

// ApprovalInput starts an approval run.
type ApprovalInput struct {
	User   string `json:"user"`
	Amount int    `json:"amount"`
}

// ApprovalState is the approval workflow's durable state. IsApproved
// stays nil until the approver decides.
type ApprovalState struct {
	IsApproved *bool `json:"is_approved"`
}

// Approval builds the approval workflow definition. It notifies the
// approver, then waits for the approveTransfer signal; no decision
// within the configured wait counts as a rejection.
func Approval(ops *operation.Transfers, inv *operation.Invoker, cfg Config) *workflow.Definition[ApprovalInput, ApprovalState] {
	cfg = cfg.withDefaults()

	def := workflow.New(ApprovalWorkflowName, func(wf *workflow.Workflow, state *ApprovalState, in ApprovalInput) error {
		if err := wf.Step("notify", func(ctx context.Context) error {
			return inv.Invoke(ctx, "notifyApprovalRequest", func(ctx context.Context) error {
				return ops.NotifyApprovalRequest(ctx, in.User, in.Amount)
			})
		}); err != nil {
			return err
		}

		err := wf.WaitUntil("decision", func() bool { return state.IsApproved != nil }, cfg.ApprovalWait)
		if err != nil && !fault.IsTimeout(err) {
			return err
		}

		approved := false
		if err == nil {
			wf.View(func() {
				if state.IsApproved != nil {
					approved = *state.IsApproved
				}
			})
		}
		return wf.SetOutput(approved)
	})

	return def.OnSignal(SignalApprove, func(state *ApprovalState, payload json.RawMessage) error {
		var approved bool
		if err := json.Unmarshal(payload, &approved); err != nil {
			return fault.Validation("approveTransfer payload must be a boolean")
		}
		state.IsApproved = &approved
		return nil
	})
}
