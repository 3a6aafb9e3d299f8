package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteLog is a SQLite-backed Log: a single file database, one writer
// at a time, suitable for local runs and development where a durable
// history of completed workflows is useful without standing up a server.
type SQLiteLog struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// NewSQLiteLog opens (and migrates, if new) a SQLite database at path.
// ":memory:" opens an ephemeral in-process database.
func NewSQLiteLog(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: enabling WAL mode: %w", err)
	}

	if err := migrateSQLite(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteLog{db: db}, nil
}

func migrateSQLite(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_runs (
			run_id      TEXT PRIMARY KEY,
			status      TEXT NOT NULL,
			error       TEXT,
			started_at  TEXT NOT NULL,
			ended_at    TEXT NOT NULL,
			tasks_json  TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("audit: migrating schema: %w", err)
	}
	return nil
}

func (s *SQLiteLog) RecordRun(ctx context.Context, rec RunRecord) error {
	tasksJSON, err := json.Marshal(rec.Tasks)
	if err != nil {
		return fmt.Errorf("audit: marshaling task records: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("audit: log is closed")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_runs (run_id, status, error, started_at, ended_at, tasks_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status=excluded.status, error=excluded.error,
			started_at=excluded.started_at, ended_at=excluded.ended_at,
			tasks_json=excluded.tasks_json;
	`, rec.RunID, rec.Status, rec.Error, rec.StartedAt.Format(time.RFC3339Nano), rec.EndedAt.Format(time.RFC3339Nano), string(tasksJSON))
	if err != nil {
		return fmt.Errorf("audit: recording run %s: %w", rec.RunID, err)
	}
	return nil
}

func (s *SQLiteLog) LoadRun(ctx context.Context, runID string) (RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return RunRecord{}, fmt.Errorf("audit: log is closed")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, status, error, started_at, ended_at, tasks_json
		FROM audit_runs WHERE run_id = ?;
	`, runID)

	var rec RunRecord
	var startedAt, endedAt, tasksJSON string
	if err := row.Scan(&rec.RunID, &rec.Status, &rec.Error, &startedAt, &endedAt, &tasksJSON); err != nil {
		if err == sql.ErrNoRows {
			return RunRecord{}, ErrNotFound
		}
		return RunRecord{}, fmt.Errorf("audit: loading run %s: %w", runID, err)
	}

	var parseErr error
	if rec.StartedAt, parseErr = time.Parse(time.RFC3339Nano, startedAt); parseErr != nil {
		return RunRecord{}, fmt.Errorf("audit: parsing started_at: %w", parseErr)
	}
	if rec.EndedAt, parseErr = time.Parse(time.RFC3339Nano, endedAt); parseErr != nil {
		return RunRecord{}, fmt.Errorf("audit: parsing ended_at: %w", parseErr)
	}
	if err := json.Unmarshal([]byte(tasksJSON), &rec.Tasks); err != nil {
		return RunRecord{}, fmt.Errorf("audit: unmarshaling task records: %w", err)
	}

	return rec, nil
}

func (s *SQLiteLog) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
