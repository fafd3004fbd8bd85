/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the billing engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Read the settings file (water rate, sweep interval)
  3. Initialize SQLite store
  4. Wire the rooms/payments/billing services
  5. Configure HTTP router and start the auto-close sweep
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port      HTTP server port (default: 8080)
  -db        SQLite database path (default: billing.db)
             Use ":memory:" for in-memory database
  -settings  JSON settings file path (default: settings.json;
             missing file means defaults)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the auto-close sweep
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/billing.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on different port
  ./server -port=3000

ENVIRONMENT:
  PORT overrides -port when set. Variables are also read from a .env
  file in the working directory when one exists.

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/factory"
	"github.com/warp/billing-engine/payments"
	"github.com/warp/billing-engine/rooms"
	"github.com/warp/billing-engine/store/sqlite"
)

func main() {
	// .env is optional; ignore a missing file
	_ = godotenv.Load()

	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "billing.db", "SQLite database path")
	settingsPath := flag.String("settings", "settings.json", "JSON settings file path")
	flag.Parse()

	if env := os.Getenv("PORT"); env != "" {
		if p, err := strconv.Atoi(env); err == nil {
			*port = p
		}
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Settings
	cfg, err := factory.Load(*settingsPath)
	if err != nil {
		logger.Fatal("failed to load settings", zap.String("path", *settingsPath), zap.Error(err))
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.String("path", *dbPath), zap.Error(err))
	}
	defer store.Close()

	// Wire services. The SQLite store implements every storage interface.
	billSvc := billing.NewService(store, store, store, cfg.Rates, logger)
	roomSvc := rooms.NewService(store)
	paySvc := payments.NewService(store, store, billSvc, logger)

	handler := api.NewHandler(roomSvc, paySvc, billSvc, logger)
	handler.Resetter = store
	router := api.NewRouter(handler)

	// Background auto-close sweep
	sweep := api.NewAutoCloseScheduler(roomSvc, billSvc, logger)
	sweep.Enabled = cfg.SweepEnabled
	sweep.CheckInterval = cfg.SweepInterval
	sweep.Start()
	defer sweep.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.Int("port", *port),
			zap.String("db", *dbPath))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
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
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
