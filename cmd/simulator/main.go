// Command simulator is a simulated kiln control unit. It runs programs
// against a thermal model and serves the running log and its live stream.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"kiln_console/internal/config"
	"kiln_console/internal/handlers"
	"kiln_console/internal/logger"
	"kiln_console/internal/repository"
	"kiln_console/internal/repository/db"
	"kiln_console/internal/server"
	"kiln_console/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load("simulator", os.Args[1:])
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(cfg.GetString("log.level"))

	// open DB
	conn, err := db.InitDB(cfg.GetString("db.path"))
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(conn)
	services := service.NewControlUnitService(repos, clockwork.NewRealClock(), cfg.GetDuration("simulator.log_resolution"), log.Named("simulator"))
	apiHandler := handlers.NewHandler(services, log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go services.Simulator.Run(ctx, cfg.GetDuration("simulator.tick"))

	srv := &server.Server{}
	runHTTPServer(srv, cfg.GetString("port"), apiHandler, log)

	waitForShutdown(cancel, srv, log)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		log.Infow("http_listening", "port", port)
		if err := srv.Run(port, handler.InitControlUnitRoutes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
