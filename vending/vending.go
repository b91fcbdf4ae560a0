// Package vending implements a signal-driven vending machine session.
// A session has two phases: first the customer selects products through
// addProduct signals, then pays through insertCoin signals. Inserting
// the first coin, or two minutes without a selection, moves the session
// to the payment phase; covering the cart total dispenses the products
// and returns any surplus, while a payment timeout returns the inserted
// coins untouched.
package vending

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ledgerrun/ledgerrun/fault"
	"github.com/ledgerrun/ledgerrun/operation"
	"github.com/ledgerrun/ledgerrun/workflow"
)

// WorkflowName identifies the vending session workflow.
const WorkflowName = "vending"

// Signal names.
const (
	SignalAddProduct = "addProduct"
	SignalInsertCoin = "insertCoin"
)

// Stage marks which phase a session is in.
type Stage string

const (
	// StageWaitingForProducts is the selection phase.
	StageWaitingForProducts Stage = "WAITING_FOR_PRODUCTS"
	// StageWaitingForCoins is the payment phase. Product selection is
	// closed.
	StageWaitingForCoins Stage = "WAITING_FOR_COINS"
)

// DefaultCatalog maps product codes to prices.
func DefaultCatalog() map[string]int {
	return map[string]int{
		"coke":  3,
		"chips": 5,
	}
}

// Config carries the tunables tests compress.
type Config struct {
	// SelectionWait bounds each selection-phase wait. Zero means 2
	// minutes.
	SelectionWait time.Duration
	// PaymentWait bounds the payment-phase wait. Zero means 2 minutes.
	PaymentWait time.Duration
	// Catalog maps product codes to prices. Nil means DefaultCatalog.
	Catalog map[string]int
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		SelectionWait: 2 * time.Minute,
		PaymentWait:   2 * time.Minute,
		Catalog:       DefaultCatalog(),
	}
}

func (c Config) withDefaults() Config {
	if c.SelectionWait == 0 {
		c.SelectionWait = 2 * time.Minute
	}
	if c.PaymentWait == 0 {
		c.PaymentWait = 2 * time.Minute
	}
	if c.Catalog == nil {
		c.Catalog = DefaultCatalog()
	}
	return c
}

// Input starts a session. Sessions take no arguments; think of the
// customer touching the screen as the trigger.
type Input struct{}

// State is the session's durable state.
type State struct {
	Balance int      `json:"balance"`
	Cart    []string `json:"cart"`
	Stage   Stage    `json:"stage"`
}

// cartTotal sums the prices of the cart items.
func cartTotal(catalog map[string]int, cart []string) int {
	total := 0
	for _, product := range cart {
		total += catalog[product]
	}
	return total
}

// Workflow builds the vending session definition over the given
// hardware and retry invoker.
func Workflow(hw operation.VendingHardware, inv *operation.Invoker, cfg Config) *workflow.Definition[Input, State] {
	cfg = cfg.withDefaults()

	def := workflow.New(WorkflowName, func(wf *workflow.Workflow, state *State, _ Input) error {
		wf.View(func() {
			if state.Stage == "" {
				state.Stage = StageWaitingForProducts
			}
		})
		if err := wf.SaveState(); err != nil {
			return err
		}

		// Selection phase: wait for cart changes until the first coin
		// arrives or a wait times out. Each iteration gets its own
		// checkpoint so replays walk the same sequence of waits.
		for i := 0; ; i++ {
			var balance, cartItems int
			wf.View(func() {
				balance = state.Balance
				cartItems = len(state.Cart)
			})
			if balance != 0 {
				break
			}

			err := wf.WaitUntil(fmt.Sprintf("select:%d", i), func() bool {
				return len(state.Cart) != cartItems || state.Balance > 0
			}, cfg.SelectionWait)
			if err != nil {
				if fault.IsTimeout(err) {
					break
				}
				return err
			}
		}

		wf.View(func() { state.Stage = StageWaitingForCoins })
		if err := wf.SaveState(); err != nil {
			return err
		}

		// Payment phase.
		err := wf.WaitUntil("payment", func() bool {
			return state.Balance >= cartTotal(cfg.Catalog, state.Cart)
		}, cfg.PaymentWait)
		if err != nil {
			if !fault.IsTimeout(err) {
				return err
			}
			// Not enough coins. Return the balance and end the session.
			var balance int
			wf.View(func() { balance = state.Balance })
			return wf.Step("return-coins", func(ctx context.Context) error {
				return inv.Invoke(ctx, "returnCoins", func(_ context.Context) error {
					return hw.ReturnCoins(balance)
				})
			})
		}

		var cart []string
		var change int
		wf.View(func() {
			cart = append([]string(nil), state.Cart...)
			change = state.Balance - cartTotal(cfg.Catalog, state.Cart)
		})

		if err := wf.Step("dispense", func(ctx context.Context) error {
			return inv.Invoke(ctx, "dispense", func(_ context.Context) error {
				return hw.Dispense(cart)
			})
		}); err != nil {
			return err
		}

		if change > 0 {
			return wf.Step("return-change", func(ctx context.Context) error {
				return inv.Invoke(ctx, "returnChange", func(_ context.Context) error {
					return hw.ReturnChange(change)
				})
			})
		}
		return nil
	})

	def.OnSignal(SignalAddProduct, func(state *State, payload json.RawMessage) error {
		var product string
		if err := json.Unmarshal(payload, &product); err != nil {
			return fault.Validation("addProduct payload must be a product code string")
		}
		if state.Stage == StageWaitingForCoins {
			return fault.Validation("cannot add products at this stage")
		}
		if _, ok := cfg.Catalog[product]; !ok {
			return fault.Validation("invalid product code")
		}
		state.Cart = append(state.Cart, product)
		return nil
	})

	def.OnSignal(SignalInsertCoin, func(state *State, payload json.RawMessage) error {
		var amount int
		if err := json.Unmarshal(payload, &amount); err != nil {
			return fault.Validation("insertCoin payload must be an integer amount")
		}
		if len(state.Cart) == 0 {
			return fault.Validation("cannot insert coins without products in the cart")
		}
		state.Balance += amount
		return nil
	})

	return def
}
