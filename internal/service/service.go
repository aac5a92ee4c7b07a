package service

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"kiln_console/internal/logger"
	"kiln_console/internal/models"
	"kiln_console/internal/repository"
	"kiln_console/internal/telemetry"
)

var (
	ErrNoProgramRunning = errors.New("no program running")
	ErrAlreadyRunning   = errors.New("a program is already running")
)

// Runner starts and cancels program runs on the simulated control unit.
type Runner interface {
	Start(ctx context.Context, p models.Program) (models.RunState, error)
	Cancel(ctx context.Context) error
}

// Monitoring exposes the running program: status, the recorded log and the
// live row that is streamed.
type Monitoring interface {
	Status(ctx context.Context) (models.RunState, error)
	RunningLog(ctx context.Context) (string, error)
	LiveRecord(ctx context.Context) (models.LogRecord, error)
}

// Simulator advances the running program over time.
// Stop via context cancellation in main() for graceful shutdown.
type Simulator interface {
	Run(ctx context.Context, tick time.Duration)
}

// Telemetry is the console's read model of the live execution log.
type Telemetry interface {
	Start(ctx context.Context)
	Refresh()
	Stop()
	View() telemetry.View
	Status() TelemetryStatus
}

// Service aggregates the sub-services. The control unit binary fills
// Runner, Monitoring and Simulator; the console fills Telemetry.
type Service struct {
	Runner
	Monitoring
	Simulator
	Telemetry
}

// NewControlUnitService wires the simulated control unit over the
// repository layer.
func NewControlUnitService(repos *repository.Repository, clock clockwork.Clock, logResolution time.Duration, log *logger.Logger) *Service {
	return &Service{
		Runner:     NewRunnerService(repos.Runs, clock),
		Monitoring: NewMonitoringService(repos.Runs, repos.Logs, clock),
		Simulator:  NewSimulatorService(repos.Runs, repos.Logs, clock, logResolution, log),
	}
}

// NewConsoleService wires the console around a telemetry session.
func NewConsoleService(session *telemetry.Session) *Service {
	return &Service{Telemetry: NewTelemetryService(session)}
}
