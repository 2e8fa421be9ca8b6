/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Majani cooperative engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Initialize SQLite store
  3. Seed demo fixtures into an empty database (SEED_FIXTURES)
  4. Connect the text generator when GEMINI_API_KEY is set
  5. Configure HTTP router and start the session sweeper
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper, close the generator and database
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/majani.db"

  # Run on different port, AI enabled
  GEMINI_API_KEY=... ./server -port=3000

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/majani/coop-engine/ai"
	"github.com/majani/coop-engine/api"
	"github.com/majani/coop-engine/config"
	"github.com/majani/coop-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags
	port := flag.Int("port", cfg.App.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.Database.Path, "SQLite database path")
	flag.Parse()

	logger := api.NewLogger(os.Stdout, cfg.Level())
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	// Text generator is optional; without it AI endpoints answer "unavailable"
	var gen ai.TextGenerator
	if cfg.AI.APIKey != "" {
		gemini, err := ai.NewGemini(ctx, cfg.AI.APIKey, cfg.AI.Model)
		if err != nil {
			logger.Warn("AI disabled", "error", err)
		} else {
			defer gemini.Close()
			gen = gemini
		}
	}

	handler := api.NewHandler(store, ai.NewReporter(gen, logger, loc), logger, loc)

	if cfg.App.SeedFixtures {
		farmers, err := store.ListFarmers(ctx)
		if err != nil {
			return err
		}
		if len(farmers) == 0 {
			if err := handler.LoadFixtures(ctx); err != nil {
				return fmt.Errorf("load fixtures: %w", err)
			}
			logger.Info("fixtures loaded")
		}
	}

	sweeper := api.NewSessionSweeper(handler)
	sweeper.Start()
	defer sweeper.Stop()

	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.App.CORSOrigins,
		LogLevel:    cfg.Level(),
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errs := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", *port, "db", *dbPath, "timezone", loc.String(), "ai", gen != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errs:
		return err
	case <-quit:
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
