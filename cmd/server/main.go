/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Deployment Assistant analysis server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Build the structured logger
  3. Initialize SQLite store
  4. Load monitor configuration (file or defaults)
  5. Create API handler and background scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: assistant.db)
           Use ":memory:" for an in-memory database
  -config  Monitor configuration JSON file (optional)
  -window  Default expiration window in days, overrides config
  -log     Logging mode: dev or prod (default: dev)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/assistant.db"

  # Run with a custom monitor config
  ./server -config="./monitor.json"

  # Run on different port with a 60-day default window
  ./server -port=3000 -window=60

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Background batch re-analysis
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridian/deploy-assistant/api"
	"github.com/meridian/deploy-assistant/factory"
	"github.com/meridian/deploy-assistant/logging"
	"github.com/meridian/deploy-assistant/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "assistant.db", "SQLite database path")
	configPath := flag.String("config", "", "Monitor configuration JSON file")
	window := flag.Int("window", 0, "Default expiration window in days (overrides config)")
	logMode := flag.String("log", "dev", "Logging mode: dev or prod")
	flag.Parse()

	logger, err := logging.New(*logMode)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal("failed to initialize database", "error", err)
	}
	defer store.Close()

	// Monitor configuration
	cfg := factory.Defaults()
	if *configPath != "" {
		cfg, err = factory.NewConfigFactory().LoadFile(*configPath)
		if err != nil {
			logger.Fatal("failed to load monitor config", "path", *configPath, "error", err)
		}
	}
	if *window > 0 {
		cfg.DefaultWindowDays = *window
		if !cfg.ValidWindow(*window) {
			cfg.WindowPresets = append(cfg.WindowPresets, *window)
		}
	}

	// Handler and background scheduler
	handler := api.NewHandler(store, cfg, logger)
	scheduler := api.NewAnalysisScheduler(store, handler.Expiry, logger)
	scheduler.WindowDays = cfg.DefaultWindowDays
	scheduler.CheckInterval = cfg.SchedulerInterval
	scheduler.Enabled = cfg.SchedulerEnabled
	handler.Scheduler = scheduler

	scheduler.Start()
	defer scheduler.Stop()

	// Create router and server
	router := api.NewRouter(handler)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "addr", fmt.Sprintf("http://localhost:%d", *port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}
