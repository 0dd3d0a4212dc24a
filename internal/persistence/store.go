package persistence

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/aristath/simcampaign/internal/events"
)

// ErrRunNotFound is returned when a run id is unknown to the journal.
var ErrRunNotFound = errors.New("run not found")

// Run states.
const (
	RunRunning     = "running"
	RunSucceeded   = "succeeded"
	RunFailed      = "failed"
	RunInterrupted = "interrupted"
)

// Run is one execution of a campaign.
type Run struct {
	ID         string
	Campaign   string
	Mode       string
	Status     string
	Err        string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// Record is one journaled step or task event.
type Record struct {
	ID         int64
	RunID      string
	Type       string
	Task       string
	Step       string
	JobID      string
	Attempt    int
	Detail     string
	OccurredAt time.Time
}

// Store is the append-only journal of campaign runs.
type Store interface {
	StartRun(ctx context.Context, campaign, mode string) (Run, error)
	FinishRun(ctx context.Context, runID string, runErr error) error
	GetRun(ctx context.Context, runID string) (Run, error)
	ListRuns(ctx context.Context) ([]Run, error)

	// RecordEvent journals ev. Events without audit value, status lines and
	// progress, are ignored.
	RecordEvent(ctx context.Context, runID string, ev events.Event) error
	// History returns the records of a run in insertion order, optionally
	// filtered by task.
	History(ctx context.Context, runID, task string) ([]Record, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// modernc.org/sqlite doesn't support _foreign_keys; _pragma applies to every pooled connection.
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(1)", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory SQLite store for testing. Every store
// gets its own database, shared by the connections of its pool.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", ulid.Make().String())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// One writer at a time, a second connection for reads.
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StartRun opens a new run in the running state.
func (s *SQLiteStore) StartRun(ctx context.Context, campaign, mode string) (Run, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	started := s.now().UTC()
	run := Run{
		ID:        ulid.MustNew(ulid.Timestamp(started), rand.Reader).String(),
		Campaign:  campaign,
		Mode:      mode,
		Status:    RunRunning,
		StartedAt: started,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, campaign, mode, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.Campaign, run.Mode, run.Status, formatTime(started))
	if err != nil {
		return Run{}, fmt.Errorf("failed to start run: %w", err)
	}
	return run, nil
}

// FinishRun closes a run. The status is derived from runErr: nil succeeded,
// a context cancellation interrupted, anything else failed.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, runErr error) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status, errStr := RunSucceeded, ""
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		status, errStr = RunInterrupted, runErr.Error()
	default:
		status, errStr = RunFailed, runErr.Error()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, status, errStr, formatTime(s.now().UTC()), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun returns a run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, campaign, mode, status, error, started_at, finished_at
		FROM runs WHERE id = ?
	`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// ListRuns returns every run, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign, mode, status, error, started_at, finished_at
		FROM runs ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RecordEvent journals a step or task event.
func (s *SQLiteStore) RecordEvent(ctx context.Context, runID string, ev events.Event) error {
	rec, ok := recordOf(ev)
	if !ok {
		return nil
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = s.now()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO step_events (run_id, type, task, step, job_id, attempt, detail, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, rec.Type, rec.Task, rec.Step, rec.JobID, rec.Attempt, rec.Detail, formatTime(rec.OccurredAt.UTC()))
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", rec.Type, err)
	}
	return nil
}

// History returns the journaled records of a run.
func (s *SQLiteStore) History(ctx context.Context, runID, task string) ([]Record, error) {
	query := `
		SELECT id, run_id, type, task, step, job_id, attempt, detail, occurred_at
		FROM step_events WHERE run_id = ?`
	args := []any{runID}
	if task != "" {
		query += ` AND task = ?`
		args = append(args, task)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec                 Record
			step, jobID, detail sql.NullString
			occurred            string
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Type, &rec.Task, &step, &jobID, &rec.Attempt, &detail, &occurred); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Step, rec.JobID, rec.Detail = step.String, jobID.String, detail.String
		if rec.OccurredAt, err = parseTime(occurred); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run      Run
		errStr   sql.NullString
		started  string
		finished sql.NullString
	)
	if err := sc.Scan(&run.ID, &run.Campaign, &run.Mode, &run.Status, &errStr, &started, &finished); err != nil {
		return Run{}, err
	}
	run.Err = errStr.String

	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, err
	}
	if finished.Valid {
		if run.FinishedAt, err = parseTime(finished.String); err != nil {
			return Run{}, err
		}
	}
	return run, nil
}

func formatTime(t time.Time) string { return t.Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
