package main

import (
	"fmt"
	"os"

	"github.com/quill-dev/quill/internal/config"
	"github.com/quill-dev/quill/internal/gateway"
	"github.com/quill-dev/quill/internal/logger"
)

var version = "dev" // Will be set during build with -ldflags

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.GetLogger()

	srv, err := gateway.New(cfg.Gateway, cfg.Backend.GraphQLURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gateway")
	}

	log.Info().Str("version", version).Msg("Starting quill gateway...")

	// Start HTTP server (this blocks)
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("Gateway failed")
	}
}
