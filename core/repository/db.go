package repository

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// DB wraps the Postgres connection used by the repositories
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection
func NewDB(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{DB: db}, nil
}

// InitSchema creates the tables if they don't exist
func (db *DB) InitSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS prediction_tasks (
			handle         TEXT PRIMARY KEY,
			gateway_name   TEXT NOT NULL,
			sensor_name    TEXT NOT NULL,
			status         TEXT NOT NULL,
			task_json      TEXT NOT NULL,
			result_json    TEXT,
			failure_reason TEXT,
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS model_artifacts (
			id         BIGSERIAL PRIMARY KEY,
			version    TEXT,
			model_b64  TEXT NOT NULL,
			byte_size  BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}
