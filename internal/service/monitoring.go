package service

import (
	"context"
	"strings"

	"github.com/jonboulle/clockwork"

	"kiln_console/internal/models"
	"kiln_console/internal/repository"
)

type MonitoringService struct {
	runs  repository.RunRepo
	logs  repository.LogRepo
	clock clockwork.Clock
}

func NewMonitoringService(runs repository.RunRepo, logs repository.LogRepo, clock clockwork.Clock) *MonitoringService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MonitoringService{runs: runs, logs: logs, clock: clock}
}

// Status returns the running program, or ErrNoProgramRunning.
func (s *MonitoringService) Status(ctx context.Context) (models.RunState, error) {
	st, err := s.runs.Load(ctx)
	if err != nil {
		return models.RunState{}, err
	}
	if !st.Running {
		return models.RunState{}, ErrNoProgramRunning
	}
	return st, nil
}

// RunningLog renders everything logged so far for the running program as
// CSV: the header, then rows in strictly increasing time order.
func (s *MonitoringService) RunningLog(ctx context.Context) (string, error) {
	st, err := s.Status(ctx)
	if err != nil {
		return "", err
	}
	rows, err := s.logs.List(ctx, st.RunID)
	if err != nil {
		return "", err
	}

	var log models.OrderedLog
	for _, r := range rows {
		log.Append(r)
	}

	var b strings.Builder
	b.WriteString(models.LogHeader)
	for _, r := range log.Records() {
		b.WriteByte('\n')
		b.WriteString(r.CSV())
	}
	b.WriteByte('\n')
	return b.String(), nil
}

// LiveRecord samples the running program now.
func (s *MonitoringService) LiveRecord(ctx context.Context) (models.LogRecord, error) {
	st, err := s.Status(ctx)
	if err != nil {
		return models.LogRecord{}, err
	}
	return st.Record(s.clock.Now()), nil
}
