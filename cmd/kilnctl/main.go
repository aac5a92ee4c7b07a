// Command kilnctl tails a control unit's running log through a telemetry
// session: the snapshot first, then live rows, until the program ends.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"

	"kiln_console/internal/logger"
	"kiln_console/internal/models"
	"kiln_console/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run tails until the program ends or ctx is done. Rows go to stdout;
// connection events go to stderr.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("kilnctl", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	url := fs.String("url", "http://localhost:8081/engine/running", "control unit engine base URL")
	level := fs.String("log-level", logger.WarnLevel, "log level for connection events")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: kilnctl [--url URL] [--log-level LEVEL]")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Print the running execution log, then follow it until the program ends.")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := logger.New(*level, zapcore.AddSync(stderr))
	p := newPrinter(stdout)

	session, err := telemetry.NewSession(telemetry.Config{BaseURL: *url},
		telemetry.WithLogger(log),
		telemetry.WithSink(p),
	)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	session.Start(ctx)
	select {
	case <-ctx.Done():
	case <-p.done:
	}
	session.Stop()
	return nil
}

// printer writes each accepted row once, in order, and reports when the
// control unit has no program running.
type printer struct {
	w    io.Writer
	done chan struct{}

	mu       sync.Mutex
	header   bool
	last     *int64
	finished bool
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, done: make(chan struct{})}
}

func (p *printer) Publish(v telemetry.View) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished || v.Loading {
		return
	}
	if v.NoProcess {
		fmt.Fprintln(p.w, models.NoProgramRunning)
		p.finished = true
		close(p.done)
		return
	}
	for _, r := range v.Records {
		if p.last != nil && r.Timestamp <= *p.last {
			continue
		}
		if !p.header {
			fmt.Fprintln(p.w, models.LogHeader)
			p.header = true
		}
		fmt.Fprintln(p.w, r.CSV())
		ts := r.Timestamp
		p.last = &ts
	}
}
