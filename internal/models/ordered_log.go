package models

import "strings"

// OrderedLog is the accumulated telemetry of one viewing session: strictly
// ascending by timestamp, at most one record per timestamp. The CSV
// rendering is built as records are appended.
type OrderedLog struct {
	records []LogRecord
	csv     *strings.Builder
}

// Append adds rec if its timestamp is newer than the last record. Ties and
// regressions are rejected, never overwritten.
func (l *OrderedLog) Append(rec LogRecord) bool {
	if last, ok := l.LastTimestamp(); ok && rec.Timestamp <= last {
		return false
	}
	l.records = append(l.records, rec)
	if l.csv == nil {
		l.csv = &strings.Builder{}
		l.csv.WriteString(LogHeader)
	}
	l.csv.WriteByte('\n')
	l.csv.WriteString(rec.CSV())
	return true
}

// Reset empties the log. Slices and strings handed out earlier keep their
// contents.
func (l *OrderedLog) Reset() {
	l.records = nil
	l.csv = nil
}

// Len returns the number of records.
func (l *OrderedLog) Len() int {
	return len(l.records)
}

// LastTimestamp returns the newest timestamp, if any.
func (l *OrderedLog) LastTimestamp() (int64, bool) {
	if len(l.records) == 0 {
		return 0, false
	}
	return l.records[len(l.records)-1].Timestamp, true
}

// Records returns a copy safe to hand to readers.
func (l *OrderedLog) Records() []LogRecord {
	out := make([]LogRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Shared returns the records without copying. Callers must not modify the
// elements; later appends never change what the returned slice shows.
func (l *OrderedLog) Shared() []LogRecord {
	return l.records[:len(l.records):len(l.records)]
}

// CSV renders header plus rows, or "" when empty.
func (l *OrderedLog) CSV() string {
	if l.csv == nil {
		return ""
	}
	return l.csv.String()
}
