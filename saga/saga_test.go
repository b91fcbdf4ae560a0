package saga_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/ledgerrun/ledgerrun/saga"
)

func TestCompensate_Empty(t *testing.T) {
	s := saga.New()
	if err := s.Compensate(context.Background()); err != nil {
		t.Fatalf("empty saga should be a no-op, got %v", err)
	}
}

func TestCompensate_RunsAllEntries(t *testing.T) {
	s := saga.New()

	var ran atomic.Int32
	for range 3 {
		s.AddCompensation("step", func(_ context.Context) error {
			ran.Add(1)
			return nil
		})
	}

	if err := s.Compensate(context.Background()); err != nil {
		t.Fatalf("Compensate: %v", err)
	}
	if got := ran.Load(); got != 3 {
		t.Errorf("compensations executed = %d, want 3", got)
	}
}

func TestCompensate_BestEffort(t *testing.T) {
	s := saga.New()

	var ran atomic.Int32
	s.AddCompensation("undo-debit", func(_ context.Context) error {
		ran.Add(1)
		return errors.New("ledger unavailable")
	})
	s.AddCompensation("undo-credit", func(_ context.Context) error {
		ran.Add(1)
		return nil
	})
	s.AddCompensation("undo-fee", func(_ context.Context) error {
		ran.Add(1)
		return errors.New("timeout")
	})

	err := s.Compensate(context.Background())
	if err == nil {
		t.Fatal("expected joined compensation errors")
	}
	// All three must have been attempted despite the failures.
	if got := ran.Load(); got != 3 {
		t.Errorf("compensations executed = %d, want 3", got)
	}

	var ce *saga.CompensationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CompensationError in chain, got %v", err)
	}
}

func TestCompensate_AtMostOnce(t *testing.T) {
	s := saga.New()

	var ran atomic.Int32
	s.AddCompensation("undo", func(_ context.Context) error {
		ran.Add(1)
		return nil
	})

	if err := s.Compensate(context.Background()); err != nil {
		t.Fatalf("first Compensate: %v", err)
	}
	if err := s.Compensate(context.Background()); err != nil {
		t.Fatalf("second Compensate: %v", err)
	}
	if got := ran.Load(); got != 1 {
		t.Errorf("compensation ran %d times, want 1", got)
	}
}

func TestLen(t *testing.T) {
	s := saga.New()
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
	s.AddCompensation("a", func(_ context.Context) error { return nil })
	s.AddCompensation("b", func(_ context.Context) error { return nil })
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
}
