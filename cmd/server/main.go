/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, then environment)
  2. Build the structured logger
  3. Open the store selected by STORE_DRIVER
  4. Load the rule table (POLICY_FILE or built-in defaults)
  5. Create the API handler, router and balance initializer
  6. Start server with graceful shutdown

ENVIRONMENT:
  APP_ADDR               Listen address (default :8080)
  APP_ENV                development | production
  LOG_LEVEL              debug | info | warn | error
  STORE_DRIVER           sqlite | postgres | memory (default sqlite)
  SQLITE_PATH            SQLite database path (default leave.db)
  DATABASE_URL           Postgres connection string
  POLICY_FILE            JSON rule table; empty means built-in defaults
  CORS_ALLOWED_ORIGINS   Comma-separated origins
  BALANCE_INIT_INTERVAL  Year-start initializer interval; 0 disables it
  BALANCE_INIT_WORKERS   Initializer concurrency

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the balance initializer
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the store

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - api/scheduler.go: Balance initializer
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/store/postgres"
	"github.com/warp/leave-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := api.NewLogger(cfg.App.LogLevel, cfg.App.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closer, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer closer.Close()

	tables := factory.DefaultTables()
	if cfg.PolicyFile != "" {
		if tables, err = factory.LoadFile(cfg.PolicyFile); err != nil {
			return err
		}
	}
	logger.Info("rule table loaded",
		"policy_version", tables.Policies.Version(),
		"rates_version", tables.Rates.Version,
		"file", cfg.PolicyFile)

	handler := api.NewHandler(store, tables, nil, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		Logger:         logger,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	initializer := api.NewBalanceInitializer(handler)
	initializer.Interval = cfg.Initializer.Interval
	initializer.Workers = cfg.Initializer.Workers
	initializer.Start()
	defer initializer.Stop()

	server := &http.Server{
		Addr:         cfg.App.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.App.Addr, "store", cfg.Store.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (api.Store, io.Closer, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.DriverMemory:
		return memory.New(), io.NopCloser(nil), nil
	default:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}
