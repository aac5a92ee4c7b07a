package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kiln_console/internal/models"
	"kiln_console/internal/telemetry"
)

func rec(ts int64) models.LogRecord {
	return models.LogRecord{Timestamp: ts, Step: "Heat", StepElapsed: ts, MaterialC: 20, OvenC: 30, HeaterPct: 100}
}

func TestPrinter_PrintsEachRowOnce(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)

	p.Publish(telemetry.View{Loading: true})
	p.Publish(telemetry.View{Records: []models.LogRecord{rec(60), rec(120)}})
	p.Publish(telemetry.View{Records: []models.LogRecord{rec(60), rec(120), rec(180)}})
	p.Publish(telemetry.View{NoProcess: true})
	p.Publish(telemetry.View{Records: []models.LogRecord{rec(240)}})

	want := models.LogHeader + "\n" +
		rec(60).CSV() + "\n" + rec(120).CSV() + "\n" + rec(180).CSV() + "\n" +
		models.NoProgramRunning + "\n"
	if buf.String() != want {
		t.Fatalf("output:\n%s\nwant:\n%s", buf.String(), want)
	}
	select {
	case <-p.done:
	default:
		t.Fatal("done not closed after no-process view")
	}
}

func TestRun_LogsStayOffStdout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var stdout, stderr bytes.Buffer
	err := run(ctx, []string{"--url", srv.URL + "/engine/running", "--log-level", "debug"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("run did not finish on its own")
	}
	if stdout.String() != models.NoProgramRunning+"\n" {
		t.Fatalf("stdout=%q, want only the sentinel", stdout.String())
	}
	if !strings.Contains(stderr.String(), "telemetry_session_started") {
		t.Fatalf("session events missing from stderr: %q", stderr.String())
	}
}
