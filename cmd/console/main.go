// Command console follows a control unit's running program and serves the
// reconciled execution log over HTTP and WebSocket.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"kiln_console/internal/config"
	"kiln_console/internal/handlers"
	"kiln_console/internal/logger"
	"kiln_console/internal/metrics"
	"kiln_console/internal/server"
	"kiln_console/internal/service"
	"kiln_console/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load("console", os.Args[1:])
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(cfg.GetString("log.level"))

	// metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// telemetry session
	hub := handlers.NewHub(log)
	session, err := telemetry.NewSession(telemetry.Config{
		BaseURL:         cfg.GetString("controlunit.url"),
		ReconnectDelay:  cfg.GetDuration("telemetry.reconnect_delay"),
		SnapshotTimeout: cfg.GetDuration("telemetry.snapshot_timeout"),
	},
		telemetry.WithLogger(log.Named("telemetry")),
		telemetry.WithObserver(collector),
		telemetry.WithSink(hub),
	)
	if err != nil {
		log.Fatalw("invalid telemetry config", "err", err)
	}

	services := service.NewConsoleService(session)
	apiHandler := handlers.NewHandler(services, log, handlers.WithHub(hub), handlers.WithGatherer(reg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Infow("telemetry_starting", "snapshot_url", session.SnapshotURL(), "stream_url", session.StreamURL())
	services.Telemetry.Start(ctx)

	srv := &server.Server{}
	runHTTPServer(srv, cfg.GetString("port"), apiHandler, log)

	waitForShutdown(func() {
		cancel()
		services.Telemetry.Stop()
	}, srv, log)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		log.Infow("http_listening", "port", port)
		if err := srv.Run(port, handler.InitRoutes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(stop func(), srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")
	stop()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
