package broker

import (
	"context"
	"fmt"
	"time"
)

// PredictionQueue is the shared queue all prediction tasks go through.
const PredictionQueue = "prediction_queue"

// ModelQueue returns the dedicated model-update queue for worker i
// (1-based, matching the worker index convention).
func ModelQueue(i int) string {
	return fmt.Sprintf("model_queue_%d", i)
}

// Broker is the task broker boundary. Queues are opaque FIFOs; delivery
// mechanics beyond this interface belong to the broker itself.
type Broker interface {
	// Enqueue appends a payload to the named queue.
	Enqueue(ctx context.Context, queue string, payload []byte) error

	// Depth reports a point-in-time snapshot of the queue backlog.
	// Callers treat it as a possibly stale signal.
	Depth(ctx context.Context, queue string) (int, error)

	// Dequeue blocks up to timeout for the next payload. The second
	// return value is false when the wait timed out empty.
	Dequeue(ctx context.Context, queue string, timeout time.Duration) ([]byte, bool, error)
}
