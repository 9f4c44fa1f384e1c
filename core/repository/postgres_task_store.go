package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"predictive-node/core/models"
)

// PostgresTaskStore implements TaskStore on Postgres.
type PostgresTaskStore struct {
	db *DB
}

// NewPostgresTaskStore creates a Postgres-backed task store.
func NewPostgresTaskStore(db *DB) *PostgresTaskStore {
	return &PostgresTaskStore{db: db}
}

// CreateTask inserts a PENDING record for a freshly submitted task.
func (s *PostgresTaskStore) CreateTask(ctx context.Context, task models.PredictionTask) error {
	taskJSON, err := json.Marshal(task)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO prediction_tasks (handle, gateway_name, sensor_name, status, task_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`
	_, err = s.db.ExecContext(ctx, query,
		task.Handle,
		task.GatewayName,
		task.SensorName,
		models.TaskStatusPending,
		string(taskJSON),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("create task %s: %w", task.Handle, err)
	}
	return nil
}

// GetTask retrieves a task record by handle.
func (s *PostgresTaskStore) GetTask(ctx context.Context, handle string) (models.TaskRecord, bool, error) {
	query := `
		SELECT handle, status, task_json, result_json, failure_reason, created_at, updated_at
		FROM prediction_tasks
		WHERE handle = $1
	`

	var rec models.TaskRecord
	var taskJSON string
	var resultJSON sql.NullString
	var failureReason sql.NullString

	err := s.db.QueryRowContext(ctx, query, handle).Scan(
		&rec.Handle,
		&rec.Status,
		&taskJSON,
		&resultJSON,
		&failureReason,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TaskRecord{}, false, nil
	}
	if err != nil {
		return models.TaskRecord{}, false, fmt.Errorf("get task %s: %w", handle, err)
	}

	if err := json.Unmarshal([]byte(taskJSON), &rec.Task); err != nil {
		return models.TaskRecord{}, false, fmt.Errorf("decode task %s: %w", handle, err)
	}
	if resultJSON.Valid {
		var result models.AnnotatedResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return models.TaskRecord{}, false, fmt.Errorf("decode result %s: %w", handle, err)
		}
		rec.Result = &result
	}
	if failureReason.Valid {
		rec.FailureReason = failureReason.String
	}

	return rec, true, nil
}

// CompleteTask transitions a PENDING task to SUCCESS. A task that is
// already terminal is rejected with ErrAlreadyFinal.
func (s *PostgresTaskStore) CompleteTask(ctx context.Context, handle string, result models.AnnotatedResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}

	query := `
		UPDATE prediction_tasks
		SET status = $1, result_json = $2, updated_at = $3
		WHERE handle = $4 AND status = $5
	`
	res, err := s.db.ExecContext(ctx, query,
		models.TaskStatusSuccess,
		string(resultJSON),
		time.Now().UTC(),
		handle,
		models.TaskStatusPending,
	)
	if err != nil {
		return fmt.Errorf("complete task %s: %w", handle, err)
	}
	return s.checkTransition(ctx, res, handle)
}

// FailTask transitions a PENDING task to FAILURE.
func (s *PostgresTaskStore) FailTask(ctx context.Context, handle, reason string) error {
	query := `
		UPDATE prediction_tasks
		SET status = $1, failure_reason = $2, updated_at = $3
		WHERE handle = $4 AND status = $5
	`
	res, err := s.db.ExecContext(ctx, query,
		models.TaskStatusFailure,
		reason,
		time.Now().UTC(),
		handle,
		models.TaskStatusPending,
	)
	if err != nil {
		return fmt.Errorf("fail task %s: %w", handle, err)
	}
	return s.checkTransition(ctx, res, handle)
}

func (s *PostgresTaskStore) checkTransition(ctx context.Context, res sql.Result, handle string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var status models.TaskStatus
	err = s.db.QueryRowContext(ctx, `SELECT status FROM prediction_tasks WHERE handle = $1`, handle).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", ErrAlreadyFinal, handle, status)
}

// SaveArtifact retains an uploaded model artifact.
func (s *PostgresTaskStore) SaveArtifact(ctx context.Context, artifact models.ModelArtifact) error {
	query := `
		INSERT INTO model_artifacts (version, model_b64, byte_size, created_at)
		VALUES ($1, $2, $3, $4)
	`
	createdAt := artifact.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query, artifact.Version, artifact.ModelB64, artifact.ByteSize, createdAt)
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return nil
}

// LatestArtifact returns the most recently uploaded model artifact.
func (s *PostgresTaskStore) LatestArtifact(ctx context.Context) (models.ModelArtifact, bool, error) {
	query := `
		SELECT version, model_b64, byte_size, created_at
		FROM model_artifacts
		ORDER BY id DESC
		LIMIT 1
	`

	var artifact models.ModelArtifact
	var version sql.NullString
	err := s.db.QueryRowContext(ctx, query).Scan(&version, &artifact.ModelB64, &artifact.ByteSize, &artifact.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ModelArtifact{}, false, nil
	}
	if err != nil {
		return models.ModelArtifact{}, false, fmt.Errorf("latest artifact: %w", err)
	}
	if version.Valid {
		artifact.Version = version.String
	}
	return artifact, true, nil
}
