package fault_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ledgerrun/ledgerrun/fault"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want fault.Kind
	}{
		{"validation", fault.Validation("amount must be greater than zero"), fault.KindValidation},
		{"business", fault.Business("not enough balance"), fault.KindBusiness},
		{"transient", fault.Transient("something went wrong"), fault.KindTransient},
		{"timeout", fault.ErrWaitTimeout, fault.KindTimeout},
		{"untagged defaults to transient", errors.New("boom"), fault.KindTransient},
		{"wrapped keeps kind", fmt.Errorf("step failed: %w", fault.Business("no funds")), fault.KindBusiness},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fault.KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if fault.Retryable(fault.Business("no funds")) {
		t.Error("business faults must not be retryable")
	}
	if fault.Retryable(fault.Validation("bad input")) {
		t.Error("validation faults must not be retryable")
	}
	if !fault.Retryable(fault.Transient("flaky")) {
		t.Error("transient faults must be retryable")
	}
	if !fault.Retryable(errors.New("unknown")) {
		t.Error("untagged errors must be retryable")
	}
}

func TestIsTimeout(t *testing.T) {
	wrapped := fmt.Errorf("phase 2: %w", fault.ErrWaitTimeout)
	if !fault.IsTimeout(wrapped) {
		t.Error("wrapped wait timeout should still classify as timeout")
	}
	if fault.IsTimeout(errors.New("boom")) {
		t.Error("plain errors are not timeouts")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := fault.Wrap(fault.KindTransient, "ledger unavailable", cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped cause should be visible to errors.Is")
	}
	if err.Error() != "ledger unavailable: connection reset" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
