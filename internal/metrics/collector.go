// Package metrics provides Prometheus metrics for the telemetry session.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"kiln_console/internal/models"
)

const namespace = "kiln_console"

// Collector implements telemetry.Observer on top of Prometheus metrics.
type Collector struct {
	lines      *prometheus.CounterVec
	snapshots  *prometheus.CounterVec
	reconnects prometheus.Counter
	connState  prometheus.Gauge
	records    prometheus.Gauge
}

// NewCollector registers the session metrics on reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		lines: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_lines_total",
			Help:      "Inbound telemetry lines by reconciler outcome",
		}, []string{"outcome"}),
		snapshots: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_snapshots_total",
			Help:      "Snapshot requests by resolved activity",
		}, []string{"activity"}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after an unexpected close",
		}),
		connState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "telemetry_connection_state",
			Help:      "Current stream connection state (0 idle .. 5 terminated)",
		}),
		records: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "telemetry_records",
			Help:      "Records currently held in the ordered log",
		}),
	}
}

func (c *Collector) LineProcessed(outcome string) {
	if c == nil {
		return
	}
	c.lines.WithLabelValues(outcome).Inc()
}

func (c *Collector) SnapshotResolved(activity models.ProcessActivity) {
	if c == nil {
		return
	}
	c.snapshots.WithLabelValues(activity.String()).Inc()
}

func (c *Collector) ReconnectScheduled() {
	if c == nil {
		return
	}
	c.reconnects.Inc()
}

func (c *Collector) StateChanged(state models.ConnectionState) {
	if c == nil {
		return
	}
	c.connState.Set(float64(state))
}

func (c *Collector) RecordsChanged(n int) {
	if c == nil {
		return
	}
	c.records.Set(float64(n))
}
