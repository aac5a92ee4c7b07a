package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"kiln_console/internal/models"
)

func TestMonitoringService_Status(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		state   models.RunState
		loadErr error
		wantErr error
	}{
		{name: "nothing ran yet", wantErr: ErrNoProgramRunning},
		{name: "finished run", state: models.RunState{ID: 1, RunID: "r"}, wantErr: ErrNoProgramRunning},
		{name: "running", state: models.RunState{ID: 1, RunID: "r", Running: true}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := NewMonitoringService(&runRepoStub{state: tc.state}, newLogRepoStub(), nil)
			st, err := svc.Status(context.Background())
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Status() error = %v, want %v", err, tc.wantErr)
			}
			if tc.wantErr == nil && st.RunID != "r" {
				t.Fatalf("unexpected state: %+v", st)
			}
		})
	}

	t.Run("load error", func(t *testing.T) {
		svc := NewMonitoringService(&runRepoStub{loadErr: errors.New("db down")}, newLogRepoStub(), nil)
		if _, err := svc.Status(context.Background()); err == nil || errors.Is(err, ErrNoProgramRunning) {
			t.Fatalf("expected repository error, got %v", err)
		}
	})
}

func TestMonitoringService_RunningLog(t *testing.T) {
	t.Parallel()

	logs := newLogRepoStub()
	logs.rows["r"] = []models.LogRecord{
		{Timestamp: 0, Step: "Initializing", MaterialC: 20, OvenC: 20},
		{Timestamp: 60, Step: "Heat", StepElapsed: 59, MaterialC: 21.3, OvenC: 45, HeaterPct: 100, FanPct: 50},
		{Timestamp: 60, Step: "Heat", StepElapsed: 59, MaterialC: 21.3, OvenC: 45, HeaterPct: 100, FanPct: 50},
	}
	svc := NewMonitoringService(&runRepoStub{state: models.RunState{ID: 1, RunID: "r", Running: true}}, logs, nil)

	got, err := svc.RunningLog(context.Background())
	if err != nil {
		t.Fatalf("RunningLog() error = %v", err)
	}
	want := models.LogHeader + "\n" +
		"0,Initializing,0,20.0,20.0,0,0,0\n" +
		"60,Heat,59,21.3,45.0,100,50,0\n"
	if got != want {
		t.Fatalf("RunningLog() =\n%q\nwant\n%q", got, want)
	}
}

func TestMonitoringService_RunningLog_HeaderOnlyAndErrors(t *testing.T) {
	t.Parallel()

	running := &runRepoStub{state: models.RunState{ID: 1, RunID: "r", Running: true}}
	got, err := NewMonitoringService(running, newLogRepoStub(), nil).RunningLog(context.Background())
	if err != nil || strings.TrimSpace(got) != models.LogHeader {
		t.Fatalf("RunningLog() = %q, %v; want header only", got, err)
	}

	if _, err := NewMonitoringService(&runRepoStub{}, newLogRepoStub(), nil).RunningLog(context.Background()); !errors.Is(err, ErrNoProgramRunning) {
		t.Fatalf("expected ErrNoProgramRunning, got %v", err)
	}

	failing := newLogRepoStub()
	failing.listErr = errors.New("locked")
	if _, err := NewMonitoringService(running, failing, nil).RunningLog(context.Background()); err == nil {
		t.Fatal("expected list error")
	}
}

func TestMonitoringService_LiveRecord(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start.Add(150 * time.Second))
	runs := &runRepoStub{state: models.RunState{
		ID: 1, RunID: "r", Running: true,
		StartedAt: start, CurrentStep: "Heat", StepStartedAt: start.Add(100 * time.Second),
		MaterialC: 30, OvenC: 50, HeaterPct: 100,
	}}

	rec, err := NewMonitoringService(runs, newLogRepoStub(), clock).LiveRecord(context.Background())
	if err != nil {
		t.Fatalf("LiveRecord() error = %v", err)
	}
	if rec.Timestamp != 150 || rec.StepElapsed != 50 || rec.Step != "Heat" || rec.HeaterPct != 100 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}
