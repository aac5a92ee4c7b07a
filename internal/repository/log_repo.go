package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kiln_console/internal/models"
)

type LogSQLite struct {
	db *sql.DB
}

func NewLogSQLite(db *sql.DB) *LogSQLite { return &LogSQLite{db: db} }

const (
	insertLogSQL = `
		INSERT INTO execution_log (id, run_id, ts, step, steptime, material, oven, heater, fan, humidifier, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectLogSQL = `
		SELECT ts, step, steptime, material, oven, heater, fan, humidifier
		FROM execution_log WHERE run_id = ? ORDER BY ts ASC, recorded_at ASC
	`
)

// Append inserts one row of runID's execution log.
func (r *LogSQLite) Append(ctx context.Context, runID string, rec models.LogRecord) error {
	_, err := r.db.ExecContext(ctx, insertLogSQL,
		uuid.NewString(),
		runID,
		rec.Timestamp,
		rec.Step,
		rec.StepElapsed,
		rec.MaterialC,
		rec.OvenC,
		rec.HeaterPct,
		rec.FanPct,
		rec.HumidifierPct,
		time.Now().UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("append log row: %w", err)
	}
	return nil
}

// List returns runID's rows ordered by run time.
func (r *LogSQLite) List(ctx context.Context, runID string) ([]models.LogRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectLogSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("list log rows: %w", err)
	}
	defer rows.Close()

	out := make([]models.LogRecord, 0, 64)
	for rows.Next() {
		var rec models.LogRecord
		if err := rows.Scan(
			&rec.Timestamp,
			&rec.Step,
			&rec.StepElapsed,
			&rec.MaterialC,
			&rec.OvenC,
			&rec.HeaterPct,
			&rec.FanPct,
			&rec.HumidifierPct,
		); err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
