package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// MySQLLog is a MySQL-backed Log sharing SQLiteLog's schema, for
// deployments that already run a MySQL instance and would rather not
// manage a separate SQLite file alongside it.
type MySQLLog struct {
	db *sql.DB
}

// NewMySQLLog opens a MySQL connection using dsn (driver:
// github.com/go-sql-driver/mysql DSN syntax, e.g.
// "user:pass@tcp(127.0.0.1:3306)/wfengine") and migrates its table.
// parseTime is always enabled, since LoadRun scans DATETIME columns into
// time.Time.
func NewMySQLLog(ctx context.Context, dsn string) (*MySQLLog, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: parsing mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("audit: opening mysql connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: pinging mysql: %w", err)
	}
	if err := migrateMySQL(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &MySQLLog{db: db}, nil
}

func migrateMySQL(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_runs (
			run_id      VARCHAR(191) PRIMARY KEY,
			status      VARCHAR(32) NOT NULL,
			error       TEXT,
			started_at  DATETIME(6) NOT NULL,
			ended_at    DATETIME(6) NOT NULL,
			tasks_json  JSON NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("audit: migrating mysql schema: %w", err)
	}
	return nil
}

func (m *MySQLLog) RecordRun(ctx context.Context, rec RunRecord) error {
	tasksJSON, err := json.Marshal(rec.Tasks)
	if err != nil {
		return fmt.Errorf("audit: marshaling task records: %w", err)
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO audit_runs (run_id, status, error, started_at, ended_at, tasks_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status=VALUES(status), error=VALUES(error),
			started_at=VALUES(started_at), ended_at=VALUES(ended_at),
			tasks_json=VALUES(tasks_json);
	`, rec.RunID, rec.Status, rec.Error, rec.StartedAt, rec.EndedAt, string(tasksJSON))
	if err != nil {
		return fmt.Errorf("audit: recording run %s: %w", rec.RunID, err)
	}
	return nil
}

func (m *MySQLLog) LoadRun(ctx context.Context, runID string) (RunRecord, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT run_id, status, error, started_at, ended_at, tasks_json
		FROM audit_runs WHERE run_id = ?;
	`, runID)

	var rec RunRecord
	var tasksJSON string
	if err := row.Scan(&rec.RunID, &rec.Status, &rec.Error, &rec.StartedAt, &rec.EndedAt, &tasksJSON); err != nil {
		if err == sql.ErrNoRows {
			return RunRecord{}, ErrNotFound
		}
		return RunRecord{}, fmt.Errorf("audit: loading run %s: %w", runID, err)
	}
	if err := json.Unmarshal([]byte(tasksJSON), &rec.Tasks); err != nil {
		return RunRecord{}, fmt.Errorf("audit: unmarshaling task records: %w", err)
	}
	return rec, nil
}

func (m *MySQLLog) Close() error {
	return m.db.Close()
}
