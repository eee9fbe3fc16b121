package postgres

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS model_configs (
		model_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		dataset_id TEXT NOT NULL,
		description TEXT,
		layers JSONB NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS training_sessions (
		session_id TEXT PRIMARY KEY,
		model_id TEXT NOT NULL,
		dataset_id TEXT NOT NULL,
		status TEXT NOT NULL,
		total_epochs INTEGER NOT NULL,
		current_epoch INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS training_metrics (
		session_id TEXT NOT NULL,
		epoch INTEGER NOT NULL,
		loss DOUBLE PRECISION NOT NULL,
		accuracy DOUBLE PRECISION,
		recorded_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (session_id, epoch)
	)`,
	`CREATE INDEX IF NOT EXISTS training_sessions_model_idx ON training_sessions (model_id)`,
}

// EnsureSchema creates the playground tables when missing so a fresh
// database works without a separate migration step.
func EnsureSchema(ctx context.Context, db DB) error {
	if db == nil {
		return fmt.Errorf("database handle is required")
	}
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
