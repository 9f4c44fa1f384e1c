package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"predictive-node/core/models"
)

// MemoryTaskStore is an in-process TaskStore for tests and deployments
// without Postgres.
type MemoryTaskStore struct {
	mu        sync.Mutex
	tasks     map[string]models.TaskRecord
	artifacts []models.ModelArtifact
}

// NewMemoryTaskStore creates an empty in-memory task store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[string]models.TaskRecord)}
}

func (m *MemoryTaskStore) CreateTask(_ context.Context, task models.PredictionTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	m.tasks[task.Handle] = models.TaskRecord{
		Handle:    task.Handle,
		Task:      task,
		Status:    models.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (m *MemoryTaskStore) GetTask(_ context.Context, handle string) (models.TaskRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tasks[handle]
	return rec, ok, nil
}

func (m *MemoryTaskStore) CompleteTask(_ context.Context, handle string, result models.AnnotatedResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tasks[handle]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	if rec.Status.Final() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyFinal, handle, rec.Status)
	}
	rec.Status = models.TaskStatusSuccess
	rec.Result = &result
	rec.UpdatedAt = time.Now().UTC()
	m.tasks[handle] = rec
	return nil
}

func (m *MemoryTaskStore) FailTask(_ context.Context, handle, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tasks[handle]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	if rec.Status.Final() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyFinal, handle, rec.Status)
	}
	rec.Status = models.TaskStatusFailure
	rec.FailureReason = reason
	rec.UpdatedAt = time.Now().UTC()
	m.tasks[handle] = rec
	return nil
}

func (m *MemoryTaskStore) SaveArtifact(_ context.Context, artifact models.ModelArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}
	m.artifacts = append(m.artifacts, artifact)
	return nil
}

func (m *MemoryTaskStore) LatestArtifact(_ context.Context) (models.ModelArtifact, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.artifacts) == 0 {
		return models.ModelArtifact{}, false, nil
	}
	return m.artifacts[len(m.artifacts)-1], true, nil
}
