package repository

import (
	"context"
	"database/sql"

	"kiln_console/internal/models"
)

// RunRepo persists the single current run of the simulated control unit.
type RunRepo interface {
	Save(ctx context.Context, s models.RunState) error
	Load(ctx context.Context) (models.RunState, error)
}

// LogRepo stores execution log rows per run.
type LogRepo interface {
	Append(ctx context.Context, runID string, rec models.LogRecord) error
	List(ctx context.Context, runID string) ([]models.LogRecord, error)
}

type Repository struct {
	Runs RunRepo
	Logs LogRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Runs: NewRunSQLite(db),
		Logs: NewLogSQLite(db),
	}
}
