package state

import (
	"context"
	"testing"

	"predictive-node/core/models"
)

var testKey = models.DeviceKey{GatewayName: "gw-1", SensorName: "temp-4"}

func TestIncrementCounterStartsAtOne(t *testing.T) {
	s := NewDecisionStore(NewMemoryKV(), 4)
	ctx := context.Background()

	for want := 1; want <= 5; want++ {
		got, err := s.IncrementCounter(ctx, testKey)
		if err != nil {
			t.Fatalf("increment %d: %v", want, err)
		}
		if got != want {
			t.Fatalf("expected counter %d, got %d", want, got)
		}
	}
}

func TestAppendHistoryBoundedAtCapacity(t *testing.T) {
	s := NewDecisionStore(NewMemoryKV(), 3)
	ctx := context.Background()

	var history []bool
	var err error
	for i := 0; i < 10; i++ {
		history, err = s.AppendHistory(ctx, testKey, i%2 == 0)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if len(history) > 3 {
			t.Fatalf("history exceeded capacity after %d appends: %v", i+1, history)
		}
	}
	// Appends 7..9 retained, oldest evicted first.
	want := []bool{false, true, false}
	for i := range want {
		if history[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, history)
		}
	}
}

func TestAppendHistoryZeroCapacityStaysEmpty(t *testing.T) {
	s := NewDecisionStore(NewMemoryKV(), 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		history, err := s.AppendHistory(ctx, testKey, true)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if len(history) != 0 {
			t.Fatalf("capacity 0 must keep history empty, got %v", history)
		}
	}
}

func TestCounterDominatesHistoryLength(t *testing.T) {
	s := NewDecisionStore(NewMemoryKV(), 4)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		u, err := s.IncrementCounter(ctx, testKey)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		history, err := s.AppendHistory(ctx, testKey, false)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if u < len(history) {
			t.Fatalf("counter %d fell behind history length %d", u, len(history))
		}
	}
}

func TestResetIsIdempotent(t *testing.T) {
	kv := NewMemoryKV()
	s := NewDecisionStore(kv, 4)
	ctx := context.Background()

	if _, err := s.IncrementCounter(ctx, testKey); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if _, err := s.AppendHistory(ctx, testKey, true); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := s.Reset(ctx, testKey); err != nil {
		t.Fatalf("first reset: %v", err)
	}
	if err := s.Reset(ctx, testKey); err != nil {
		t.Fatalf("second reset must be a no-op, got %v", err)
	}

	u, err := s.IncrementCounter(ctx, testKey)
	if err != nil {
		t.Fatalf("increment after reset: %v", err)
	}
	if u != 1 {
		t.Fatalf("counter must restart at 1 after reset, got %d", u)
	}
	history, err := s.AppendHistory(ctx, testKey, false)
	if err != nil {
		t.Fatalf("append after reset: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history must restart empty after reset, got %v", history)
	}
}
