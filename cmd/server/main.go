// Package main is the entry point for the task manager API server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main" package.
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (env vars, optionally seeded from a .env file)
// 2. Create dependencies (logger, tracing, the server)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/handler, etc.).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/task-manager/internal/config"
	"github.com/sakif/task-manager/internal/server"
	"github.com/sakif/task-manager/internal/telemetry"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// JWT_SECRET is required. Generate one with:
	//   JWT_SECRET=$(openssl rand -hex 32)
	cfg, err := config.Load()
	if err != nil {
		// No configured logger yet; fall back to the default one.
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// LOG_LEVEL and LOG_FORMAT pick the slog handler (text for terminals,
	// json for log shippers).
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run lives apart from main so deferred cleanup runs before os.Exit.
func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	// === 3. TRACING (opt-in) ===
	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	return srv.Start()
}
