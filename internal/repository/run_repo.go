package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kiln_console/internal/models"
)

type RunSQLite struct {
	db *sql.DB
}

func NewRunSQLite(db *sql.DB) *RunSQLite {
	return &RunSQLite{db: db}
}

const (
	runStateRowID = 1

	upsertRunSQL = `
		INSERT INTO run_state (id, run_id, program, running, started_at, step_index, current_step,
			step_started_at, material_c, oven_c, heater, fan, humidifier, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			run_id=excluded.run_id,
			program=excluded.program,
			running=excluded.running,
			started_at=excluded.started_at,
			step_index=excluded.step_index,
			current_step=excluded.current_step,
			step_started_at=excluded.step_started_at,
			material_c=excluded.material_c,
			oven_c=excluded.oven_c,
			heater=excluded.heater,
			fan=excluded.fan,
			humidifier=excluded.humidifier,
			updated_at=excluded.updated_at
	`

	selectRunSQL = `
		SELECT id, run_id, program, running, started_at, step_index, current_step,
			step_started_at, material_c, oven_c, heater, fan, humidifier, updated_at
		FROM run_state WHERE id=?
	`
)

func marshalProgram(p models.Program) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal program: %w", err)
	}
	return string(b), nil
}

func unmarshalProgram(s string) (models.Program, error) {
	var p models.Program
	if s == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return models.Program{}, fmt.Errorf("unmarshal program: %w", err)
	}
	return p, nil
}

// Save upserts the run_state row (id always 1). Times are stored as UTC.
func (r *RunSQLite) Save(ctx context.Context, s models.RunState) error {
	program, err := marshalProgram(s.Program)
	if err != nil {
		return err
	}

	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err = r.db.ExecContext(ctx, upsertRunSQL,
		runStateRowID,
		s.RunID,
		program,
		s.Running,
		s.StartedAt.UTC(),
		s.StepIndex,
		s.CurrentStep,
		s.StepStartedAt.UTC(),
		s.MaterialC,
		s.OvenC,
		s.HeaterPct,
		s.FanPct,
		s.HumidifierPct,
		updated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save run state: %w", err)
	}
	return nil
}

// Load returns the run_state row, or the zero value when nothing ran yet.
func (r *RunSQLite) Load(ctx context.Context) (models.RunState, error) {
	row := r.db.QueryRowContext(ctx, selectRunSQL, runStateRowID)

	var (
		s       models.RunState
		program string
	)
	if err := row.Scan(
		&s.ID,
		&s.RunID,
		&program,
		&s.Running,
		&s.StartedAt,
		&s.StepIndex,
		&s.CurrentStep,
		&s.StepStartedAt,
		&s.MaterialC,
		&s.OvenC,
		&s.HeaterPct,
		&s.FanPct,
		&s.HumidifierPct,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RunState{}, nil
		}
		return models.RunState{}, fmt.Errorf("load run state: %w", err)
	}

	p, err := unmarshalProgram(program)
	if err != nil {
		return models.RunState{}, err
	}
	s.Program = p
	s.StartedAt = s.StartedAt.UTC()
	s.StepStartedAt = s.StepStartedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}
