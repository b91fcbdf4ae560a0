package operation

import (
	"log/slog"
)

// VendingHardware abstracts the physical side effects of a vending
// session. Implementations must tolerate repeated invocation for the
// same session step; the workflow layer checkpoints each call so
// replays do not normally reach the hardware twice.
type VendingHardware interface {
	// Dispense releases the selected products.
	Dispense(cart []string) error
	// ReturnChange returns the surplus over the cart total.
	ReturnChange(amount int) error
	// ReturnCoins returns the full inserted balance after an aborted
	// session.
	ReturnCoins(amount int) error
}

// SlogHardware is the default VendingHardware, logging each action
// instead of driving real hardware.
type SlogHardware struct {
	logger *slog.Logger
}

// NewSlogHardware creates a logging vending hardware.
func NewSlogHardware(logger *slog.Logger) *SlogHardware {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogHardware{logger: logger}
}

// Dispense logs the dispensed products.
func (h *SlogHardware) Dispense(cart []string) error {
	h.logger.Info("dispensing products", slog.Any("cart", cart))
	return nil
}

// ReturnChange logs the returned change.
func (h *SlogHardware) ReturnChange(amount int) error {
	h.logger.Info("returning change", slog.Int("amount", amount))
	return nil
}

// ReturnCoins logs the returned coins.
func (h *SlogHardware) ReturnCoins(amount int) error {
	h.logger.Info("returning coins", slog.Int("amount", amount))
	return nil
}
