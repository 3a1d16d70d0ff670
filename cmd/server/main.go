// MomoGuard - Mobile money fraud detection for Ghana
package main

import (
	"context"
	"os"

	"github.com/kbaffoe/momoguard/internal/config"
	"github.com/kbaffoe/momoguard/internal/logging"
	"github.com/kbaffoe/momoguard/internal/server"
	"github.com/kbaffoe/momoguard/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Create logger
	logger := logging.New("info", "text")

	logger.Info("starting momoguard",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"timezone", cfg.Timezone,
		"confirm_ttl_hours", cfg.ConfirmTTLHours,
	)

	ctx := context.Background()

	// Tracing is optional; without an OTLP endpoint spans are dropped
	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	} else {
		defer func() { _ = shutdownTraces(ctx) }()
	}

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
