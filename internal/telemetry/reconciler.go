package telemetry

import (
	"strings"

	"kiln_console/internal/logger"
	"kiln_console/internal/models"
)

// LineOutcome is what the reconciler did with one inbound line.
type LineOutcome int

const (
	LineEmpty LineOutcome = iota
	LineHeader
	LineDuplicateHeader
	LineSentinel
	LineMalformed
	LineStale // timestamp <= last accepted: duplicate or regression
	LineAccepted
)

var lineOutcomeNames = [...]string{
	LineEmpty:           "empty",
	LineHeader:          "header",
	LineDuplicateHeader: "duplicate_header",
	LineSentinel:        "sentinel",
	LineMalformed:       "malformed",
	LineStale:           "stale",
	LineAccepted:        "accepted",
}

func (o LineOutcome) String() string {
	if int(o) < len(lineOutcomeNames) {
		return lineOutcomeNames[o]
	}
	return "unknown"
}

// Stats counts reconciler outcomes for the current acquisition cycle.
type Stats struct {
	Accepted  int `json:"accepted"`
	Stale     int `json:"stale"`
	Malformed int `json:"malformed"`
}

// Reconciler is the single writer of the session's OrderedLog. Snapshot
// text and streamed messages both pass through AppendLine, so replays and
// overlaps between the two sources never reorder or duplicate rows.
//
// A Reconciler is not safe for concurrent use; the session loop owns it.
type Reconciler struct {
	log        models.OrderedLog
	activity   models.ProcessActivity
	headerSeen bool
	watermark  int64
	hasMark    bool
	stats      Stats
	rev        uint64 // bumped whenever the log changes
	logger     *logger.Logger
}

// NewReconciler returns an empty reconciler with Unknown activity.
func NewReconciler(log *logger.Logger) *Reconciler {
	return &Reconciler{logger: logger.OrNop(log)}
}

// AppendLine ingests one raw line from the snapshot body or the stream.
func (r *Reconciler) AppendLine(raw string) LineOutcome {
	line := strings.TrimSpace(raw)
	if line == "" {
		return LineEmpty
	}

	if line == models.NoProgramRunning {
		r.activity = models.ActivityInactive
		r.clear()
		return LineSentinel
	}

	if models.IsHeader(line) {
		if r.headerSeen {
			return LineDuplicateHeader
		}
		r.headerSeen = true
		return LineHeader
	}

	ts, err := models.LeadingTimestamp(line)
	if err != nil {
		r.stats.Malformed++
		r.logger.Debugw("telemetry_line_malformed", "line", line, "err", err)
		return LineMalformed
	}

	if r.hasMark && ts <= r.watermark {
		r.stats.Stale++
		r.logger.Debugw("skipping duplicate timestamp", "timestamp", ts, "last", r.watermark)
		return LineStale
	}

	rec, err := models.ParseLogRecord(line)
	if err != nil {
		r.stats.Malformed++
		r.logger.Debugw("telemetry_line_malformed", "line", line, "err", err)
		return LineMalformed
	}

	r.log.Append(rec)
	r.rev++
	r.watermark, r.hasMark = ts, true
	r.stats.Accepted++
	return LineAccepted
}

// Reset starts a new acquisition cycle from a snapshot result. The log is
// emptied and rebuilt from the snapshot body through AppendLine.
func (r *Reconciler) Reset(snap SnapshotResult) {
	r.clear()
	r.stats = Stats{}
	r.activity = snap.Activity
	if snap.Activity != models.ActivityActive {
		return
	}

	for _, line := range strings.Split(snap.Body, "\n") {
		if r.AppendLine(line) == LineSentinel {
			return
		}
	}

	// The snapshot's last timestamp bounds what the stream may add, even
	// when that last row itself was unusable.
	if snap.LastTimestamp != nil && (!r.hasMark || *snap.LastTimestamp > r.watermark) {
		r.watermark, r.hasMark = *snap.LastTimestamp, true
	}
}

func (r *Reconciler) clear() {
	r.log.Reset()
	r.rev++
	r.headerSeen = false
	r.watermark, r.hasMark = 0, false
}

// Activity returns the last known process activity.
func (r *Reconciler) Activity() models.ProcessActivity { return r.activity }

// Records returns a copy of the accepted records.
func (r *Reconciler) Records() []models.LogRecord { return r.log.Records() }

// SharedRecords returns the accepted records without copying; see
// models.OrderedLog.Shared.
func (r *Reconciler) SharedRecords() []models.LogRecord { return r.log.Shared() }

// Revision changes whenever the log is appended to or cleared.
func (r *Reconciler) Revision() uint64 { return r.rev }

// CSV renders the accepted records as header plus rows.
func (r *Reconciler) CSV() string { return r.log.CSV() }

// Len returns the number of accepted records.
func (r *Reconciler) Len() int { return r.log.Len() }

// LastTimestamp returns the last accepted timestamp.
func (r *Reconciler) LastTimestamp() (int64, bool) { return r.watermark, r.hasMark }

// Stats returns outcome counters since the last Reset.
func (r *Reconciler) Stats() Stats { return r.stats }
