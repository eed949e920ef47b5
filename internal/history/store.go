// Package history keeps the summaries of past runs in a SQLite database so
// they can be listed and shown again after the process exits.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/waabox/pipedeck/internal/domain"
	"github.com/waabox/pipedeck/internal/report"
)

// ErrNotFound is returned by Get when no run has the given id.
var ErrNotFound = errors.New("run not found")

// Record is one row of the run list.
type Record struct {
	RunID     string
	Pipeline  string
	Status    domain.StepStatus
	StartedAt time.Time
	Elapsed   time.Duration
}

// SQLiteStore stores run summaries using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (creating if needed) the history database at dbPath.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
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
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		pipeline TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		summary BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_pipeline ON runs(pipeline);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save stores the summary, replacing a previous summary with the same run id.
func (s *SQLiteStore) Save(ctx context.Context, sum report.Summary) error {
	if sum.RunID == "" {
		return errors.New("summary has no run id")
	}
	payload, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, pipeline, status, started_at, elapsed_ms, summary)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			pipeline = excluded.pipeline,
			status = excluded.status,
			started_at = excluded.started_at,
			elapsed_ms = excluded.elapsed_ms,
			summary = excluded.summary`,
		sum.RunID, sum.Pipeline, sum.Status.String(), sum.StartedAt.UnixNano(), sum.Elapsed.Milliseconds(), payload,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// List returns up to limit runs, newest first. A non-positive limit returns all of them.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, pipeline, status, started_at, elapsed_ms FROM runs ORDER BY started_at DESC, seq DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r         Record
			status    string
			started   int64
			elapsedMs int64
		)
		if err := rows.Scan(&r.RunID, &r.Pipeline, &status, &started, &elapsedMs); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.Status, err = domain.ParseStepStatus(status); err != nil {
			return nil, fmt.Errorf("run %s: %w", r.RunID, err)
		}
		r.StartedAt = time.Unix(0, started)
		r.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}

// Get returns the stored summary of the run with the given id.
func (s *SQLiteStore) Get(ctx context.Context, runID string) (report.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT summary FROM runs WHERE run_id = ?", runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return report.Summary{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return report.Summary{}, fmt.Errorf("query run: %w", err)
	}
	var sum report.Summary
	if err := json.Unmarshal(payload, &sum); err != nil {
		return report.Summary{}, fmt.Errorf("unmarshal summary: %w", err)
	}
	return sum, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
