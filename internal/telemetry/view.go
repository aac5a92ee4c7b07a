package telemetry

import "kiln_console/internal/models"

// View is the read model handed to the chart: the reconciled log plus the
// two indicators it renders. Records is shared between views and must not
// be modified.
type View struct {
	CSV           string                 `json:"csv,omitempty"`
	Records       []models.LogRecord     `json:"records"`
	LastTimestamp *int64                 `json:"last_timestamp,omitempty"`
	Connected     bool                   `json:"connected"`
	NoProcess     bool                   `json:"no_process"`
	Loading       bool                   `json:"loading"`
	State         models.ConnectionState `json:"state"`
	Activity      models.ProcessActivity `json:"activity"`
	Stats         Stats                  `json:"stats"`
}

// Sink receives every published View. Publish runs on the session loop and
// must not block or call back into the Session.
type Sink interface {
	Publish(View)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(View)

func (f SinkFunc) Publish(v View) { f(v) }

// Observer receives session measurements; metrics.Collector implements it.
type Observer interface {
	LineProcessed(outcome string)
	SnapshotResolved(activity models.ProcessActivity)
	ReconnectScheduled()
	StateChanged(state models.ConnectionState)
	RecordsChanged(n int)
}

type nopObserver struct{}

func (nopObserver) LineProcessed(string) {}
func (nopObserver) SnapshotResolved(models.ProcessActivity) {}
func (nopObserver) ReconnectScheduled() {}
func (nopObserver) StateChanged(models.ConnectionState) {}
func (nopObserver) RecordsChanged(int) {}
