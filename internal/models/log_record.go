package models

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// LogHeader is the fixed header row of every execution log.
const LogHeader = "time,step,steptime,material,oven,heater,fan,humidifier"

// LogHeaderPrefix identifies the header row when it arrives in-band.
const LogHeaderPrefix = "time,step,steptime"

// NoProgramRunning is the in-band sentinel sent instead of data when the
// control unit has nothing to execute.
const NoProgramRunning = "No program running"

// logFieldCount is the positional arity of a row.
const logFieldCount = 8

var (
	ErrEmptyLine      = errors.New("empty log line")
	ErrFieldCount     = errors.New("unexpected number of log fields")
	ErrBadTimestamp   = errors.New("invalid log timestamp")
	ErrHeaderNotARow  = errors.New("header is not a data row")
	errMalformedField = errors.New("malformed log field")
)

// LogRecord is one telemetry sample of a running program.
type LogRecord struct {
	Timestamp     int64   `json:"time"`       // seconds since program start
	Step          string  `json:"step"`       // current step name
	StepElapsed   int64   `json:"steptime"`   // seconds into the step
	MaterialC     float64 `json:"material"`   // °C
	OvenC         float64 `json:"oven"`       // °C
	HeaterPct     int     `json:"heater"`     // %
	FanPct        int     `json:"fan"`        // %
	HumidifierPct int     `json:"humidifier"` // %
}

// IsHeader reports whether line is the log header row.
func IsHeader(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), LogHeaderPrefix)
}

// LeadingTimestamp parses only the first field of a row. It is what the
// reconciler orders by; the remaining fields are validated separately.
func LeadingTimestamp(line string) (int64, error) {
	first, _, _ := strings.Cut(strings.TrimSpace(line), ",")
	ts, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadTimestamp, first)
	}
	return ts, nil
}

// ParseLogRecord parses a single CSV data row.
func ParseLogRecord(line string) (LogRecord, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return LogRecord{}, ErrEmptyLine
	}
	if IsHeader(line) {
		return LogRecord{}, ErrHeaderNotARow
	}

	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = logFieldCount
	r.TrimLeadingSpace = true
	fields, err := r.Read()
	if err != nil {
		return LogRecord{}, fmt.Errorf("%w: %v", ErrFieldCount, err)
	}

	ts, err := LeadingTimestamp(fields[0])
	if err != nil {
		return LogRecord{}, err
	}

	rec := LogRecord{Timestamp: ts, Step: fields[1]}
	if rec.StepElapsed, err = parseIntField("steptime", fields[2]); err != nil {
		return LogRecord{}, err
	}
	if rec.MaterialC, err = parseFloatField("material", fields[3]); err != nil {
		return LogRecord{}, err
	}
	if rec.OvenC, err = parseFloatField("oven", fields[4]); err != nil {
		return LogRecord{}, err
	}
	if rec.HeaterPct, err = parsePercentField("heater", fields[5]); err != nil {
		return LogRecord{}, err
	}
	if rec.FanPct, err = parsePercentField("fan", fields[6]); err != nil {
		return LogRecord{}, err
	}
	if rec.HumidifierPct, err = parsePercentField("humidifier", fields[7]); err != nil {
		return LogRecord{}, err
	}
	return rec, nil
}

// CSV renders the record in the control unit's row format.
func (r LogRecord) CSV() string {
	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.Write(r.fields())
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

func (r LogRecord) fields() []string {
	return []string{
		strconv.FormatInt(r.Timestamp, 10),
		r.Step,
		strconv.FormatInt(r.StepElapsed, 10),
		strconv.FormatFloat(r.MaterialC, 'f', 1, 64),
		strconv.FormatFloat(r.OvenC, 'f', 1, 64),
		strconv.Itoa(r.HeaterPct),
		strconv.Itoa(r.FanPct),
		strconv.Itoa(r.HumidifierPct),
	}
}

func parseIntField(name, s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w %s=%q", errMalformedField, name, s)
	}
	return v, nil
}

func parseFloatField(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w %s=%q", errMalformedField, name, s)
	}
	return v, nil
}

// parsePercentField accepts "100" as well as "100.0"; the control unit has
// emitted both over time.
func parsePercentField(name, s string) (int, error) {
	v, err := parseFloatField(name, s)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}
