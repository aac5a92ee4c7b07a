package service

import (
	"context"
	"sync"

	"kiln_console/internal/models"
)

// runRepoStub is an in-memory repository.RunRepo.
type runRepoStub struct {
	mu      sync.Mutex
	state   models.RunState
	loadErr error
	saveErr error
	saves   []models.RunState
}

func (r *runRepoStub) Load(ctx context.Context) (models.RunState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.loadErr
}

func (r *runRepoStub) Save(ctx context.Context, s models.RunState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves = append(r.saves, s)
	r.state = s
	return nil
}

// logRepoStub is an in-memory repository.LogRepo.
type logRepoStub struct {
	mu      sync.Mutex
	rows    map[string][]models.LogRecord
	listErr error
}

func newLogRepoStub() *logRepoStub {
	return &logRepoStub{rows: map[string][]models.LogRecord{}}
}

func (l *logRepoStub) Append(ctx context.Context, runID string, rec models.LogRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows[runID] = append(l.rows[runID], rec)
	return nil
}

func (l *logRepoStub) List(ctx context.Context, runID string) ([]models.LogRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listErr != nil {
		return nil, l.listErr
	}
	return append([]models.LogRecord(nil), l.rows[runID]...), nil
}

func testProgram() models.Program {
	return models.Program{
		Name: "pine 40mm",
		Steps: []models.ProgramStep{
			{Name: "Heat", Type: models.StepHeating, TargetC: 40, FanPct: 50},
			{Name: "Dry", Type: models.StepAcclimate, TargetC: 45, RuntimeSec: 120, FanPct: 80, HumidifierPct: 20},
			{Name: "Cool", Type: models.StepCooling, TargetC: 30},
		},
	}
}
