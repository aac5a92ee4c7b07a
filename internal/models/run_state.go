package models

import "time"

// Simulated control unit step names outside the program steps.
const (
	StepInitializing = "Initializing"
	StepCompleted    = "Completed"
)

// RunState is the simulated control unit's current run.
type RunState struct {
	ID            int       `json:"-"` // single row, always 1 once persisted
	RunID         string    `json:"run_id"`
	Program       Program   `json:"program"`
	Running       bool      `json:"running"`
	StartedAt     time.Time `json:"started_at"`
	StepIndex     int       `json:"step_index"` // -1 while initializing
	CurrentStep   string    `json:"current_step"`
	StepStartedAt time.Time `json:"current_step_started_at"`
	MaterialC     float64   `json:"material"`
	OvenC         float64   `json:"oven"`
	HeaterPct     int       `json:"heater"`
	FanPct        int       `json:"fan"`
	HumidifierPct int       `json:"humidifier"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Record samples the state as a log row at now.
func (s RunState) Record(now time.Time) LogRecord {
	return LogRecord{
		Timestamp:     int64(now.Sub(s.StartedAt) / time.Second),
		Step:          s.CurrentStep,
		StepElapsed:   int64(now.Sub(s.StepStartedAt) / time.Second),
		MaterialC:     s.MaterialC,
		OvenC:         s.OvenC,
		HeaterPct:     s.HeaterPct,
		FanPct:        s.FanPct,
		HumidifierPct: s.HumidifierPct,
	}
}
