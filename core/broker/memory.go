package broker

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker is an in-process broker for tests and single-node runs.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string][][]byte
}

// NewMemoryBroker creates an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{queues: make(map[string][][]byte)}
}

func (b *MemoryBroker) Enqueue(_ context.Context, queue string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := make([]byte, len(payload))
	copy(p, payload)
	b.queues[queue] = append(b.queues[queue], p)
	return nil
}

func (b *MemoryBroker) Depth(_ context.Context, queue string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queue]), nil
}

func (b *MemoryBroker) Dequeue(ctx context.Context, queue string, timeout time.Duration) ([]byte, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		b.mu.Lock()
		q := b.queues[queue]
		if len(q) > 0 {
			payload := q[0]
			b.queues[queue] = q[1:]
			b.mu.Unlock()
			return payload, true, nil
		}
		b.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, false, nil
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}
