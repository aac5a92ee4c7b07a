package handlers

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"

	"kiln_console/internal/models"
	"kiln_console/internal/service"
	"kiln_console/internal/telemetry"
)

// ---- Service Mocks ----

type mockRunner struct {
	state     models.RunState
	startErr  error
	cancelErr error

	lastProgram  models.Program
	startCalled  int
	cancelCalled int
}

func (m *mockRunner) Start(ctx context.Context, p models.Program) (models.RunState, error) {
	m.startCalled++
	m.lastProgram = p
	if m.startErr != nil {
		return models.RunState{}, m.startErr
	}
	st := m.state
	st.Program = p
	return st, nil
}

func (m *mockRunner) Cancel(ctx context.Context) error {
	m.cancelCalled++
	return m.cancelErr
}

// mockMonitoring serves a running program whose live row advances one
// second per call until finish is called.
type mockMonitoring struct {
	mu     sync.Mutex
	state  models.RunState
	err    error
	log    string
	logErr error
	ts     int64
}

func (m *mockMonitoring) Status(ctx context.Context) (models.RunState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.err
}

func (m *mockMonitoring) RunningLog(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	return m.log, m.logErr
}

func (m *mockMonitoring) LiveRecord(ctx context.Context) (models.LogRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.LogRecord{}, m.err
	}
	m.ts++
	return models.LogRecord{Timestamp: m.ts, Step: "Heat", StepElapsed: m.ts, MaterialC: 25, OvenC: 40, HeaterPct: 100}, nil
}

func (m *mockMonitoring) finish() {
	m.mu.Lock()
	m.err = service.ErrNoProgramRunning
	m.mu.Unlock()
}

type mockTelemetry struct {
	mu        sync.Mutex
	view      telemetry.View
	status    service.TelemetryStatus
	refreshes int
}

func (m *mockTelemetry) Start(ctx context.Context) {}
func (m *mockTelemetry) Stop()                     {}

func (m *mockTelemetry) Refresh() {
	m.mu.Lock()
	m.refreshes++
	m.mu.Unlock()
}

func (m *mockTelemetry) View() telemetry.View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

func (m *mockTelemetry) Status() service.TelemetryStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// ---- Shared Test Helpers ----

func newConsoleRouter(s *service.Service, opts ...Option) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewHandler(s, nil, opts...).InitRoutes()
}

func newControlUnitRouter(s *service.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewHandler(s, nil).InitControlUnitRoutes()
}
