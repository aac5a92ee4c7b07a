package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens/creates a SQLite DB file and ensures tables exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA journal_mode=WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA foreign_keys=ON: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA busy_timeout=5000: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

const sqliteDriverName = "sqlite"

const schemaRunState = `
CREATE TABLE IF NOT EXISTS run_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    run_id TEXT NOT NULL,
    program TEXT NOT NULL,
    running BOOLEAN NOT NULL,
    started_at TIMESTAMP NOT NULL,
    step_index INTEGER NOT NULL,
    current_step TEXT NOT NULL,
    step_started_at TIMESTAMP NOT NULL,
    material_c REAL NOT NULL,
    oven_c REAL NOT NULL,
    heater INTEGER NOT NULL,
    fan INTEGER NOT NULL,
    humidifier INTEGER NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaExecutionLog = `
CREATE TABLE IF NOT EXISTS execution_log (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    ts INTEGER NOT NULL,
    step TEXT NOT NULL,
    steptime INTEGER NOT NULL,
    material REAL NOT NULL,
    oven REAL NOT NULL,
    heater INTEGER NOT NULL,
    fan INTEGER NOT NULL,
    humidifier INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
`

const indexExecutionLogRun = `
CREATE INDEX IF NOT EXISTS idx_execution_log_run ON execution_log (run_id, ts);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range []string{
		schemaRunState,
		schemaExecutionLog,
		indexExecutionLogRun,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
