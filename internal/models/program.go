package models

import (
	"errors"
	"fmt"
	"strings"
)

// Step types understood by the simulated control unit.
const (
	StepHeating   = "heating"
	StepAcclimate = "acclimate"
	StepCooling   = "cooling"
)

// ProgramStep is one phase of a kiln program.
type ProgramStep struct {
	Name          string  `json:"name"`
	Type          string  `json:"type"`                 // heating | acclimate | cooling
	TargetC       float64 `json:"temperature_target"`   // °C
	RuntimeSec    int     `json:"runtime_s,omitempty"`  // 0 = until target reached
	FanPct        int     `json:"fan,omitempty"`        // %
	HumidifierPct int     `json:"humidifier,omitempty"` // %
	MaxHeaterPct  int     `json:"heater_max,omitempty"` // %, 0 means 100
}

// Program is an ordered list of steps.
type Program struct {
	Name  string        `json:"name"`
	Steps []ProgramStep `json:"steps"`
}

var (
	ErrProgramName  = errors.New("program name is required")
	ErrProgramSteps = errors.New("program must have at least one step")
	ErrInvalidStep  = errors.New("invalid step")
)

// Validate checks the program before it is handed to the simulator.
func (p Program) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrProgramName
	}
	if len(p.Steps) == 0 {
		return ErrProgramSteps
	}
	for i, s := range p.Steps {
		if err := s.validate(); err != nil {
			return fmt.Errorf("step %d (%q): %w", i+1, s.Name, err)
		}
	}
	return nil
}

func (s ProgramStep) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidStep)
	}
	switch s.Type {
	case StepHeating, StepAcclimate, StepCooling:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidStep, s.Type)
	}
	if s.RuntimeSec < 0 {
		return fmt.Errorf("%w: runtime must not be negative", ErrInvalidStep)
	}
	if s.Type == StepAcclimate && s.RuntimeSec == 0 {
		return fmt.Errorf("%w: acclimate step needs a runtime", ErrInvalidStep)
	}
	for name, pct := range map[string]int{"fan": s.FanPct, "humidifier": s.HumidifierPct, "heater_max": s.MaxHeaterPct} {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("%w: %s must be between 0 and 100", ErrInvalidStep, name)
		}
	}
	return nil
}
