package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		campaign TEXT NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS step_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		type TEXT NOT NULL,
		task TEXT NOT NULL,
		step TEXT,
		job_id TEXT,
		attempt INTEGER NOT NULL DEFAULT 0,
		detail TEXT,
		occurred_at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_step_events_run_task
		ON step_events(run_id, task, id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
