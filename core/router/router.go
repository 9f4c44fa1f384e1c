package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"predictive-node/core/broker"
	"predictive-node/core/models"
	"predictive-node/core/repository"

	"github.com/google/uuid"
)

// TaskRouter places work onto the broker: model updates fan out to every
// worker's dedicated queue, prediction tasks go to the shared queue.
type TaskRouter struct {
	broker      broker.Broker
	tasks       repository.TaskStore
	workerCount int
}

// NewTaskRouter creates a task router for a fixed worker pool.
func NewTaskRouter(b broker.Broker, tasks repository.TaskStore, workerCount int) *TaskRouter {
	return &TaskRouter{broker: b, tasks: tasks, workerCount: workerCount}
}

// WorkerCount returns the size of the worker pool the router fans out to.
func (r *TaskRouter) WorkerCount() int {
	return r.workerCount
}

// BroadcastModelUpdate enqueues the artifact onto every per-worker model
// queue. A failed enqueue never aborts the fan-out; a worker left on a
// stale model is recovered by re-broadcast. Returns the number of queues
// reached and the per-queue failures joined.
func (r *TaskRouter) BroadcastModelUpdate(ctx context.Context, artifact models.ModelArtifact) (int, error) {
	payload, err := json.Marshal(artifact)
	if err != nil {
		return 0, fmt.Errorf("encode model artifact: %w", err)
	}

	reached := 0
	var failures []error
	for i := 1; i <= r.workerCount; i++ {
		queue := broker.ModelQueue(i)
		if err := r.broker.Enqueue(ctx, queue, payload); err != nil {
			log.Printf("Router: model broadcast to %s failed: %v", queue, err)
			failures = append(failures, fmt.Errorf("%s: %w", queue, err))
			continue
		}
		reached++
	}

	log.Printf("Router: model update dispatched to %d/%d worker queues", reached, r.workerCount)
	return reached, errors.Join(failures...)
}

// SubmitPrediction assigns the task a handle, records it as PENDING and
// enqueues it on the shared prediction queue. The handle is the caller's
// correlation token for polling.
func (r *TaskRouter) SubmitPrediction(ctx context.Context, task models.PredictionTask) (string, error) {
	task.Handle = uuid.NewString()
	task.SubmittedAt = time.Now().UTC()

	if r.tasks != nil {
		if err := r.tasks.CreateTask(ctx, task); err != nil {
			return "", fmt.Errorf("record prediction task: %w", err)
		}
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("encode prediction task: %w", err)
	}
	if err := r.broker.Enqueue(ctx, broker.PredictionQueue, payload); err != nil {
		if r.tasks != nil {
			if ferr := r.tasks.FailTask(ctx, task.Handle, "enqueue failed"); ferr != nil {
				log.Printf("Router: could not mark %s failed after enqueue error: %v", task.Handle, ferr)
			}
		}
		return "", fmt.Errorf("enqueue prediction task: %w", err)
	}

	return task.Handle, nil
}
