package repository

import (
	"context"
	"errors"

	"predictive-node/core/models"
)

// ErrNotFound indicates an unknown task handle.
var ErrNotFound = errors.New("task not found")

// ErrAlreadyFinal indicates a completion or failure arriving for a task
// that is already terminal. Rejecting it here is what keeps a duplicated
// delivery from mutating decision state twice.
var ErrAlreadyFinal = errors.New("task already in a final state")

// TaskStore persists submitted prediction tasks through their lifecycle
// and retains the latest model artifact for re-broadcast.
type TaskStore interface {
	CreateTask(ctx context.Context, task models.PredictionTask) error
	GetTask(ctx context.Context, handle string) (models.TaskRecord, bool, error)
	CompleteTask(ctx context.Context, handle string, result models.AnnotatedResult) error
	FailTask(ctx context.Context, handle, reason string) error

	SaveArtifact(ctx context.Context, artifact models.ModelArtifact) error
	LatestArtifact(ctx context.Context) (models.ModelArtifact, bool, error)
}
