package service

import (
	"context"
	"sync"

	"kiln_console/internal/models"
	"kiln_console/internal/telemetry"
)

// TelemetryStatus summarizes the session without the log itself.
type TelemetryStatus struct {
	State         models.ConnectionState `json:"state"`
	Activity      models.ProcessActivity `json:"activity"`
	Connected     bool                   `json:"connected"`
	NoProcess     bool                   `json:"no_process"`
	Loading       bool                   `json:"loading"`
	Records       int                    `json:"records"`
	LastTimestamp *int64                 `json:"last_timestamp,omitempty"`
	Stats         telemetry.Stats        `json:"stats"`
	SnapshotURL   string                 `json:"snapshot_url"`
	StreamURL     string                 `json:"stream_url"`
}

type TelemetryService struct {
	session *telemetry.Session

	mu  sync.Mutex
	ctx context.Context
}

func NewTelemetryService(session *telemetry.Session) *TelemetryService {
	return &TelemetryService{session: session, ctx: context.Background()}
}

// Start mounts the session; ctx bounds it and every later Refresh.
func (s *TelemetryService) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.session.Start(ctx)
}

// Refresh starts a new acquisition cycle: the snapshot is read again and
// the stream is opened if it is not already.
func (s *TelemetryService) Refresh() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	s.session.Start(ctx)
}

func (s *TelemetryService) Stop() { s.session.Stop() }

func (s *TelemetryService) View() telemetry.View { return s.session.View() }

func (s *TelemetryService) Status() TelemetryStatus {
	v := s.session.View()
	return TelemetryStatus{
		State:         v.State,
		Activity:      v.Activity,
		Connected:     v.Connected,
		NoProcess:     v.NoProcess,
		Loading:       v.Loading,
		Records:       len(v.Records),
		LastTimestamp: v.LastTimestamp,
		Stats:         v.Stats,
		SnapshotURL:   s.session.SnapshotURL(),
		StreamURL:     s.session.StreamURL(),
	}
}
