package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"kiln_console/internal/models"
	"kiln_console/internal/repository"
)

type RunnerService struct {
	runs  repository.RunRepo
	clock clockwork.Clock
}

func NewRunnerService(runs repository.RunRepo, clock clockwork.Clock) *RunnerService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RunnerService{runs: runs, clock: clock}
}

// Start validates p and begins a new run in the Initializing step. The kiln
// keeps the temperatures it had at the end of the previous run.
func (s *RunnerService) Start(ctx context.Context, p models.Program) (models.RunState, error) {
	if err := p.Validate(); err != nil {
		return models.RunState{}, fmt.Errorf("invalid program: %w", err)
	}

	prev, err := s.runs.Load(ctx)
	if err != nil {
		return models.RunState{}, err
	}
	if prev.Running {
		return models.RunState{}, ErrAlreadyRunning
	}

	now := s.clock.Now().UTC()
	st := models.RunState{
		ID:            1,
		RunID:         uuid.NewString(),
		Program:       p,
		Running:       true,
		StartedAt:     now,
		StepIndex:     -1,
		CurrentStep:   models.StepInitializing,
		StepStartedAt: now,
		MaterialC:     AmbientC,
		OvenC:         AmbientC,
		UpdatedAt:     now,
	}
	if prev.ID != 0 {
		st.MaterialC = prev.MaterialC
		st.OvenC = prev.OvenC
	}

	if err := s.runs.Save(ctx, st); err != nil {
		return models.RunState{}, err
	}
	return st, nil
}

// Cancel ends the current run. Its log is kept.
func (s *RunnerService) Cancel(ctx context.Context) error {
	st, err := s.runs.Load(ctx)
	if err != nil {
		return err
	}
	if !st.Running {
		return ErrNoProgramRunning
	}

	st.Running = false
	st.CurrentStep = models.StepCompleted
	st.HeaterPct, st.FanPct, st.HumidifierPct = 0, 0, 0
	st.UpdatedAt = s.clock.Now().UTC()
	return s.runs.Save(ctx, st)
}
