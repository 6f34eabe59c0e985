// Package storage keeps a local SQLite ledger of sync runs.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

type Run struct {
	ID          string       `db:"id"`
	Scope       string       `db:"scope"`
	Status      string       `db:"status"`
	StartedAt   time.Time    `db:"started_at"`
	FinishedAt  sql.NullTime `db:"finished_at"`
	Entrants    int          `db:"entrants"`
	Commissions int          `db:"commissions"`
	Error       string       `db:"error"`
}

// Duration is zero for a run that has not finished.
func (r Run) Duration() time.Duration {
	if !r.FinishedAt.Valid {
		return 0
	}
	return r.FinishedAt.Time.Sub(r.StartedAt)
}

type TabWrite struct {
	ID            int64     `db:"id"`
	RunID         string    `db:"run_id"`
	Tab           string    `db:"tab"`
	Rows          int       `db:"row_count"`
	Created       bool      `db:"created"`
	HeaderWritten bool      `db:"header_written"`
	WrittenAt     time.Time `db:"written_at"`
}

// Marker is the last position recorded for a source feed.
type Marker struct {
	Source    string    `db:"source"`
	Value     string    `db:"value"`
	RunID     string    `db:"run_id"`
	UpdatedAt time.Time `db:"updated_at"`
}

type Ledger struct {
	db *sqlx.DB
}

// Open creates the database directory, connects and migrates.
func Open(dbPath string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// StartRun inserts run with status running.
func (l *Ledger) StartRun(ctx context.Context, run Run) error {
	run.Status = StatusRunning
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := l.db.NamedExecContext(ctx, `
		INSERT INTO runs (id, scope, status, started_at)
		VALUES (:id, :scope, :status, :started_at)`, run)
	if err != nil {
		return fmt.Errorf("start run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun stores the outcome of run.
func (l *Ledger) FinishRun(ctx context.Context, run Run) error {
	if !run.FinishedAt.Valid {
		run.FinishedAt = sql.NullTime{Time: time.Now(), Valid: true}
	}
	res, err := l.db.NamedExecContext(ctx, `
		UPDATE runs
		SET status = :status, finished_at = :finished_at,
		    entrants = :entrants, commissions = :commissions, error = :error
		WHERE id = :id`, run)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

func (l *Ledger) GetRun(ctx context.Context, id string) (Run, error) {
	var run Run
	err := l.db.GetContext(ctx, &run, `SELECT * FROM runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	runs := []Run{}
	err := l.db.SelectContext(ctx, &runs, `
		SELECT * FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func (l *Ledger) RecordTabWrite(ctx context.Context, w TabWrite) error {
	if w.WrittenAt.IsZero() {
		w.WrittenAt = time.Now()
	}
	_, err := l.db.NamedExecContext(ctx, `
		INSERT INTO tab_writes (run_id, tab, row_count, created, header_written, written_at)
		VALUES (:run_id, :tab, :row_count, :created, :header_written, :written_at)`, w)
	if err != nil {
		return fmt.Errorf("record write to %q: %w", w.Tab, err)
	}
	return nil
}

// TabWrites returns the writes of one run in the order they happened.
func (l *Ledger) TabWrites(ctx context.Context, runID string) ([]TabWrite, error) {
	writes := []TabWrite{}
	err := l.db.SelectContext(ctx, &writes, `
		SELECT * FROM tab_writes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list tab writes for %s: %w", runID, err)
	}
	return writes, nil
}

// SetMarker upserts the marker for m.Source.
func (l *Ledger) SetMarker(ctx context.Context, m Marker) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	_, err := l.db.NamedExecContext(ctx, `
		INSERT INTO markers (source, value, run_id, updated_at)
		VALUES (:source, :value, :run_id, :updated_at)
		ON CONFLICT (source) DO UPDATE SET
			value = excluded.value,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at`, m)
	if err != nil {
		return fmt.Errorf("set %s marker: %w", m.Source, err)
	}
	return nil
}

func (l *Ledger) GetMarker(ctx context.Context, source string) (Marker, error) {
	var m Marker
	err := l.db.GetContext(ctx, &m, `SELECT * FROM markers WHERE source = ?`, source)
	if errors.Is(err, sql.ErrNoRows) {
		return Marker{}, fmt.Errorf("%s marker: %w", source, ErrNotFound)
	}
	if err != nil {
		return Marker{}, fmt.Errorf("get %s marker: %w", source, err)
	}
	return m, nil
}
