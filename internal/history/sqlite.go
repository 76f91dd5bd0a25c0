// Package history keeps a journal of top-level runs in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/assetbuilder/internal/runner"
)

// Status is the recorded outcome of a run or task.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Run is one recorded top-level run.
type Run struct {
	ID       string
	Entry    string
	Started  time.Time
	Duration time.Duration
	Outputs  int
	Status   Status
	Error    string
	Tasks    []TaskRun
}

// TaskRun is the recorded outcome of one leaf within a run.
type TaskRun struct {
	Task     string
	Outputs  int
	Duration time.Duration
	Status   Status
	Error    string
}

// SQLiteStore implements runner.Journal on SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the database at path. Use ":memory:" for an in-memory journal.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared across queries
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		entry TEXT NOT NULL,
		started INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		outputs INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT
	);
	CREATE TABLE IF NOT EXISTS task_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		task TEXT NOT NULL,
		outputs INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started);
	CREATE INDEX IF NOT EXISTS idx_task_runs_run_id ON task_runs(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordRun stores res and its leaf results in one transaction.
func (s *SQLiteStore) RecordRun(ctx context.Context, res runner.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	status, errText := outcome(res.Err)
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO runs (run_id, entry, started, duration_ms, outputs, status, error) VALUES (?, ?, ?, ?, ?, ?, ?)",
		res.RunID, res.Node, res.Started.UnixMilli(), res.Duration.Milliseconds(), res.OutputCount(), string(status), errText,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, leaf := range res.Leaves() {
		status, errText := outcome(leaf.Err)
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO task_runs (run_id, task, outputs, duration_ms, status, error) VALUES (?, ?, ?, ?, ?, ?)",
			res.RunID, leaf.Task, leaf.OutputCount(), leaf.Duration.Milliseconds(), string(status), errText,
		); err != nil {
			return fmt.Errorf("insert task run: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

func outcome(err error) (Status, sql.NullString) {
	if err == nil {
		return StatusSuccess, sql.NullString{}
	}
	return StatusFailed, sql.NullString{String: err.Error(), Valid: true}
}

// Recent returns up to limit runs, newest first, with their task results.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, entry, started, duration_ms, outputs, status, error FROM runs ORDER BY started DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			started    int64
			durationMS int64
			status     string
			errText    sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Entry, &started, &durationMS, &r.Outputs, &status, &errText); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Started = time.UnixMilli(started)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.Status = Status(status)
		r.Error = errText.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	_ = rows.Close()

	for i := range runs {
		tasks, err := s.tasks(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Tasks = tasks
	}
	return runs, nil
}

func (s *SQLiteStore) tasks(ctx context.Context, runID string) ([]TaskRun, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT task, outputs, duration_ms, status, error FROM task_runs WHERE run_id = ? ORDER BY id",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query task runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []TaskRun
	for rows.Next() {
		var (
			t          TaskRun
			durationMS int64
			status     string
			errText    sql.NullString
		)
		if err := rows.Scan(&t.Task, &t.Outputs, &durationMS, &status, &errText); err != nil {
			return nil, fmt.Errorf("scan task run: %w", err)
		}
		t.Duration = time.Duration(durationMS) * time.Millisecond
		t.Status = Status(status)
		t.Error = errText.String
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ runner.Journal = (*SQLiteStore)(nil)
