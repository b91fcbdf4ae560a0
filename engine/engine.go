// Package engine wires all ledgerrun subsystems together: the store,
// the ledger with its chaos injection, the operation invokers with
// their retry policies and middleware chains, the workflow registry and
// runner, and the signal bus. It exposes the facade operations the API
// layer calls.
//
// This package sits above all subsystem packages and below the
// application layer.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ledgerrun/ledgerrun"
	"github.com/ledgerrun/ledgerrun/backoff"
	"github.com/ledgerrun/ledgerrun/fault"
	"github.com/ledgerrun/ledgerrun/id"
	"github.com/ledgerrun/ledgerrun/ledger"
	mw "github.com/ledgerrun/ledgerrun/middleware"
	"github.com/ledgerrun/ledgerrun/operation"
	"github.com/ledgerrun/ledgerrun/signal"
	"github.com/ledgerrun/ledgerrun/store"
	"github.com/ledgerrun/ledgerrun/transfer"
	"github.com/ledgerrun/ledgerrun/vending"
	"github.com/ledgerrun/ledgerrun/workflow"
)

// SystemSeed is the system account's initial float, credited once when
// the engine starts against an empty ledger.
const SystemSeed = 10000

// instrumentationName is the OTel instrumentation scope.
const instrumentationName = "github.com/ledgerrun/ledgerrun"

// Engine assembles the subsystems and exposes the facade operations.
type Engine struct {
	store  store.Store
	logger *slog.Logger

	ledger    *ledger.Ledger
	transfers *operation.Transfers
	hardware  operation.VendingHardware

	registry *workflow.Registry
	runner   *workflow.Runner
	signals  *signal.Bus

	// Options collected before assembly.
	bo             backoff.Strategy
	transferPolicy operation.Policy
	approvalPolicy operation.Policy
	transferCfg    transfer.Config
	vendingCfg     vending.Config
	failureRate    float64
	maxLatency     time.Duration
	mws            []mw.Middleware
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = logger }
}

// WithBackoff sets the retry backoff strategy for operation retries.
// If not set, backoff.DefaultStrategy() (fixed 2s) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithRetryPolicy overrides the retry policy transfer operations run
// under.
func WithRetryPolicy(p operation.Policy) Option {
	return func(eng *Engine) { eng.transferPolicy = p }
}

// WithApprovalRetryPolicy overrides the retry policy approval
// operations run under.
func WithApprovalRetryPolicy(p operation.Policy) Option {
	return func(eng *Engine) { eng.approvalPolicy = p }
}

// WithTransferConfig overrides the transfer workflow tunables
// (approval threshold, approval wait).
func WithTransferConfig(cfg transfer.Config) Option {
	return func(eng *Engine) { eng.transferCfg = cfg }
}

// WithVendingConfig overrides the vending session tunables (waits,
// catalog).
func WithVendingConfig(cfg vending.Config) Option {
	return func(eng *Engine) { eng.vendingCfg = cfg }
}

// WithVendingHardware sets the vending hardware implementation.
// Defaults to the logging hardware.
func WithVendingHardware(hw operation.VendingHardware) Option {
	return func(eng *Engine) { eng.hardware = hw }
}

// WithFailureRate makes a fraction p (0..1) of ledger operations fail
// with a transient fault, exercising the retry policy.
func WithFailureRate(p float64) Option {
	return func(eng *Engine) { eng.failureRate = p }
}

// WithLatency adds a random delay up to max before each ledger
// operation.
func WithLatency(maxDelay time.Duration) Option {
	return func(eng *Engine) { eng.maxLatency = maxDelay }
}

// WithMiddleware appends middleware to the operation invocation chain,
// after the default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithTracerProvider sets a custom OTel TracerProvider. When set, the
// tracing middleware uses this provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. When set, the
// metrics middleware uses this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// Build assembles an Engine over the given store.
func Build(st store.Store, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, ledgerrun.ErrNoStore
	}

	eng := &Engine{
		store:          st,
		logger:         slog.Default(),
		transferPolicy: operation.DefaultPolicy(),
		approvalPolicy: operation.Policy{MaxAttempts: 4},
		transferCfg:    transfer.DefaultConfig(),
		vendingCfg:     vending.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}
	if eng.transferPolicy.Backoff == nil {
		eng.transferPolicy.Backoff = eng.bo
	}
	if eng.approvalPolicy.Backoff == nil {
		eng.approvalPolicy.Backoff = eng.bo
	}
	if eng.hardware == nil {
		eng.hardware = operation.NewSlogHardware(eng.logger)
	}

	// Ledger with chaos injection.
	eng.ledger = ledger.New(st,
		ledger.WithLogger(eng.logger),
		ledger.WithFailureRate(eng.failureRate),
		ledger.WithLatency(eng.maxLatency),
	)
	eng.transfers = operation.NewTransfers(eng.ledger, eng.logger)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging → timeout.
	allMws := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
		mw.Timeout(eng.logger),
	}
	allMws = append(allMws, eng.mws...)

	transferInv := operation.NewInvoker(eng.transferPolicy,
		operation.WithMiddleware(allMws...),
		operation.WithLogger(eng.logger),
	)
	approvalInv := operation.NewInvoker(eng.approvalPolicy,
		operation.WithMiddleware(allMws...),
		operation.WithLogger(eng.logger),
	)
	vendingInv := operation.NewInvoker(operation.DefaultPolicy(),
		operation.WithMiddleware(allMws...),
		operation.WithLogger(eng.logger),
	)

	// Workflow subsystem.
	eng.registry = workflow.NewRegistry()
	eng.signals = signal.NewBus(st)
	eng.runner = workflow.NewRunner(eng.registry, st, eng.signals, eng.logger)

	workflow.RegisterDefinition(eng.registry, transfer.Workflow(eng.transfers, transferInv, eng.transferCfg))
	workflow.RegisterDefinition(eng.registry, transfer.Approval(eng.transfers, approvalInv, eng.transferCfg))
	workflow.RegisterDefinition(eng.registry, vending.Workflow(eng.hardware, vendingInv, eng.vendingCfg))

	return eng, nil
}

// Start migrates the store, seeds the system account when the ledger is
// empty, and resumes any runs left in "running" state. Resumption
// happens in the background: resumed runs may block on waits for a long
// time.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ledgerrun.ErrMigrationFailed, err)
	}

	balances, err := eng.ledger.Balances(ctx)
	if err != nil {
		return fmt.Errorf("read balances: %w", err)
	}
	if len(balances) == 0 {
		if seedErr := eng.ledger.Seed(ctx, map[string]int{ledger.SystemAccount: SystemSeed}); seedErr != nil {
			return fmt.Errorf("seed system account: %w", seedErr)
		}
		eng.logger.Info("seeded system account", slog.Int("balance", SystemSeed))
	}

	go func() {
		if resumeErr := eng.runner.ResumeAll(context.WithoutCancel(ctx)); resumeErr != nil {
			eng.logger.Warn("failed to resume workflow runs",
				slog.String("error", resumeErr.Error()),
			)
		}
	}()

	return nil
}

// Stop releases the engine's resources.
func (eng *Engine) Stop(_ context.Context) error {
	return eng.store.Close()
}

// ── Facade operations ───────────────────────────────

// CreateTransfer starts a transfer run and returns as soon as it is
// persisted. Transfers at or above the approval threshold stay running
// until approved, rejected, or timed out.
func (eng *Engine) CreateTransfer(ctx context.Context, from, to string, amount int) (*workflow.Run, error) {
	if from == "" || to == "" {
		return nil, fault.Validation("from and to accounts are required")
	}
	if amount <= 0 {
		return nil, fault.Validation("amount must be greater than zero")
	}
	return workflow.StartAsync(ctx, eng.runner, transfer.WorkflowName, transfer.Input{
		From:   from,
		To:     to,
		Amount: amount,
	})
}

// StartVendingSession starts a vending session run and returns as soon
// as it is persisted.
func (eng *Engine) StartVendingSession(ctx context.Context) (*workflow.Run, error) {
	return workflow.StartAsync(ctx, eng.runner, vending.WorkflowName, vending.Input{})
}

// GetRun retrieves a run by ID.
func (eng *Engine) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	return eng.store.GetRun(ctx, runID)
}

// RunState returns the run's latest durable state snapshot, or nil when
// none has been saved yet.
func (eng *Engine) RunState(ctx context.Context, runID id.RunID) (json.RawMessage, error) {
	if _, err := eng.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return eng.store.GetState(ctx, runID)
}

// Approve delivers the approval decision to a run. The run ID may be
// the transfer run; the signal is forwarded to its running approval
// child.
func (eng *Engine) Approve(ctx context.Context, runID id.RunID, approved bool) error {
	payload, err := json.Marshal(approved)
	if err != nil {
		return err
	}
	return eng.runner.Signal(ctx, runID, transfer.SignalApprove, payload)
}

// AddProduct adds a product to a vending session's cart.
func (eng *Engine) AddProduct(ctx context.Context, runID id.RunID, product string) error {
	payload, err := json.Marshal(product)
	if err != nil {
		return err
	}
	return eng.runner.Signal(ctx, runID, vending.SignalAddProduct, payload)
}

// InsertCoin inserts coins into a vending session.
func (eng *Engine) InsertCoin(ctx context.Context, runID id.RunID, amount int) error {
	payload, err := json.Marshal(amount)
	if err != nil {
		return err
	}
	return eng.runner.Signal(ctx, runID, vending.SignalInsertCoin, payload)
}

// Balances returns a snapshot of all account balances.
func (eng *Engine) Balances(ctx context.Context) (map[string]int, error) {
	return eng.ledger.Balances(ctx)
}

// SignalHistory returns the signals delivered to a run, oldest first.
func (eng *Engine) SignalHistory(ctx context.Context, runID id.RunID) ([]*signal.Signal, error) {
	return eng.signals.History(ctx, runID)
}

// Runner returns the workflow runner.
func (eng *Engine) Runner() *workflow.Runner { return eng.runner }

// Ledger returns the ledger.
func (eng *Engine) Ledger() *ledger.Ledger { return eng.ledger }

// Store returns the composite store.
func (eng *Engine) Store() store.Store { return eng.store }
