package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"predictive-node/core/models"
)

// DecisionStore owns the per-device rolling decision state: a warm-up
// counter and a bounded FIFO of abnormal flags. Read-modify-write cycles
// are best effort; two concurrent updates for the same device can lose one
// increment or one append. That only delays the warm-up threshold, it can
// never produce an unsafe tier.
type DecisionStore struct {
	kv       KV
	capacity int
}

// NewDecisionStore creates a decision store with the given history
// capacity. Capacity 0 keeps every history permanently empty.
func NewDecisionStore(kv KV, capacity int) *DecisionStore {
	return &DecisionStore{kv: kv, capacity: capacity}
}

func counterKey(key models.DeviceKey) string {
	return fmt.Sprintf("counter:%s:%s", key.GatewayName, key.SensorName)
}

func historyKey(key models.DeviceKey) string {
	return fmt.Sprintf("history:%s:%s", key.GatewayName, key.SensorName)
}

// IncrementCounter adds one to the device's warm-up counter and returns
// the new value. An absent counter reads as zero.
func (s *DecisionStore) IncrementCounter(ctx context.Context, key models.DeviceKey) (int, error) {
	k := counterKey(key)
	raw, ok, err := s.kv.Get(ctx, k)
	if err != nil {
		return 0, err
	}

	counter := 0
	if ok {
		counter, err = strconv.Atoi(string(raw))
		if err != nil {
			return 0, fmt.Errorf("corrupt counter %s: %w", k, err)
		}
	}

	counter++
	if err := s.kv.Set(ctx, k, []byte(strconv.Itoa(counter))); err != nil {
		return 0, err
	}
	return counter, nil
}

// AppendHistory appends one abnormal flag to the device's history,
// evicting the oldest entry when the window is full, and returns the
// resulting window.
func (s *DecisionStore) AppendHistory(ctx context.Context, key models.DeviceKey, abnormal bool) ([]bool, error) {
	k := historyKey(key)
	raw, ok, err := s.kv.Get(ctx, k)
	if err != nil {
		return nil, err
	}

	var history []bool
	if ok {
		if err := json.Unmarshal(raw, &history); err != nil {
			return nil, fmt.Errorf("corrupt history %s: %w", k, err)
		}
	}

	history = append(history, abnormal)
	if len(history) > s.capacity {
		history = history[len(history)-s.capacity:]
	}

	encoded, err := json.Marshal(history)
	if err != nil {
		return nil, err
	}
	if err := s.kv.Set(ctx, k, encoded); err != nil {
		return nil, err
	}
	return history, nil
}

// Reset deletes both the counter and the history for the device so the
// next warm-up cycle starts clean. Idempotent.
func (s *DecisionStore) Reset(ctx context.Context, key models.DeviceKey) error {
	if err := s.kv.Delete(ctx, counterKey(key)); err != nil {
		return err
	}
	return s.kv.Delete(ctx, historyKey(key))
}
