package service

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"kiln_console/internal/logger"
	"kiln_console/internal/models"
	"kiln_console/internal/repository"
)

// ----------- Simulation constants -----------
const (
	AmbientC         = 20.0  // °C
	MaxOvenC         = 200.0 // oven never exceeds this
	HeatRateCPerSec  = 0.5   // oven rise per second at 100% heater
	LossRateCPerSec  = 0.05  // oven loss per second toward ambient
	TransferPerSec   = 0.02  // share of the oven/material gap closed per second
	TargetToleranceC = 1.0   // °C band for "reached"
	OvenMarginC      = 20.0  // heating steps keep the oven at most this far above target

	DefaultLogResolution = 60 * time.Second
)

// SimulatorService moves the running program through its steps and writes
// the execution log.
type SimulatorService struct {
	runs       repository.RunRepo
	logs       repository.LogRepo
	clock      clockwork.Clock
	resolution time.Duration
	log        *logger.Logger

	mu      sync.Mutex
	lastLog logCursor
}

// logCursor is the last row written to the execution log.
type logCursor struct {
	runID string
	at    time.Time
	ts    int64
	step  string
}

func NewSimulatorService(runs repository.RunRepo, logs repository.LogRepo, clock clockwork.Clock, resolution time.Duration, log *logger.Logger) *SimulatorService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if resolution <= 0 {
		resolution = DefaultLogResolution
	}
	return &SimulatorService{runs: runs, logs: logs, clock: clock, resolution: resolution, log: logger.OrNop(log)}
}

// Run ticks at the given interval until ctx is canceled. A failing tick is
// logged once until the next success.
func (s *SimulatorService) Run(ctx context.Context, tick time.Duration) {
	t := s.clock.NewTicker(tick)
	defer t.Stop()
	var failing string
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.Chan():
			err := s.Tick(ctx, now)
			switch {
			case err != nil && ctx.Err() != nil:
				return
			case err != nil && err.Error() != failing:
				failing = err.Error()
				s.log.Warnw("simulator_tick_failed", "err", err)
			case err == nil && failing != "":
				failing = ""
				s.log.Infow("simulator_tick_recovered")
			}
		}
	}
}

// Tick advances the running program to now.
func (s *SimulatorService) Tick(ctx context.Context, now time.Time) error {
	st, err := s.runs.Load(ctx)
	if err != nil {
		return err
	}
	if !st.Running {
		return nil
	}
	now = now.UTC()
	elapsed := now.Sub(st.UpdatedAt).Seconds()
	if elapsed <= 0 {
		return nil
	}

	if st.StepIndex < 0 {
		enterStep(&st, 0, now)
	} else {
		step := st.Program.Steps[st.StepIndex]
		controlPowers(&st, step)
		advanceThermal(&st, elapsed)
		if stepDone(st, step, now) {
			if next := st.StepIndex + 1; next < len(st.Program.Steps) {
				enterStep(&st, next, now)
			} else {
				complete(&st)
			}
		}
	}
	st.UpdatedAt = now

	if err := s.runs.Save(ctx, st); err != nil {
		return err
	}
	if !st.Running {
		return nil
	}
	return s.writeLog(ctx, st, now)
}

// writeLog appends a row when the step changed or the resolution elapsed
// since the previous row of the same run.
func (s *SimulatorService) writeLog(ctx context.Context, st models.RunState, now time.Time) error {
	rec := st.Record(now)

	s.mu.Lock()
	last := s.lastLog
	s.mu.Unlock()

	if last.runID == st.RunID {
		if rec.Timestamp <= last.ts {
			return nil
		}
		if rec.Step == last.step && now.Sub(last.at) < s.resolution {
			return nil
		}
	}

	if err := s.logs.Append(ctx, st.RunID, rec); err != nil {
		return err
	}

	s.mu.Lock()
	s.lastLog = logCursor{runID: st.RunID, at: now, ts: rec.Timestamp, step: rec.Step}
	s.mu.Unlock()
	return nil
}

func enterStep(st *models.RunState, idx int, now time.Time) {
	step := st.Program.Steps[idx]
	st.StepIndex = idx
	st.CurrentStep = step.Name
	st.StepStartedAt = now
	controlPowers(st, step)
}

func complete(st *models.RunState) {
	st.Running = false
	st.CurrentStep = models.StepCompleted
	st.HeaterPct, st.FanPct, st.HumidifierPct = 0, 0, 0
}

// controlPowers is a bang-bang controller for the step's target.
func controlPowers(st *models.RunState, step models.ProgramStep) {
	maxHeater := step.MaxHeaterPct
	if maxHeater == 0 {
		maxHeater = 100
	}

	st.HeaterPct = 0
	switch step.Type {
	case models.StepHeating:
		if st.MaterialC < step.TargetC && st.OvenC < step.TargetC+OvenMarginC {
			st.HeaterPct = maxHeater
		}
	case models.StepAcclimate:
		if st.OvenC < step.TargetC {
			st.HeaterPct = maxHeater
		}
	}
	st.FanPct = step.FanPct
	st.HumidifierPct = step.HumidifierPct
}

// advanceThermal applies elapsed seconds of heating, losses and
// oven-to-material transfer.
func advanceThermal(st *models.RunState, elapsed float64) {
	heat := HeatRateCPerSec * float64(st.HeaterPct) / 100 * elapsed
	loss := LossRateCPerSec * elapsed
	st.OvenC = math.Min(MaxOvenC, math.Max(AmbientC, st.OvenC+heat-loss))

	share := math.Min(1, TransferPerSec*elapsed)
	st.MaterialC += (st.OvenC - st.MaterialC) * share
}

func stepDone(st models.RunState, step models.ProgramStep, now time.Time) bool {
	if step.RuntimeSec > 0 {
		return now.Sub(st.StepStartedAt) >= time.Duration(step.RuntimeSec)*time.Second
	}
	switch step.Type {
	case models.StepHeating:
		return st.MaterialC >= step.TargetC-TargetToleranceC
	case models.StepCooling:
		return st.MaterialC <= step.TargetC+TargetToleranceC
	}
	return false
}
