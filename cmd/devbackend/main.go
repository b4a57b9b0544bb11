package main

import (
	"fmt"
	"os"

	"github.com/quill-dev/quill/internal/config"
	"github.com/quill-dev/quill/internal/devbackend"
	"github.com/quill-dev/quill/internal/logger"
)

var version = "dev" // Will be set during build with -ldflags

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.GetLogger()

	srv, err := devbackend.New(cfg.Dev, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create development backend")
	}

	log.Info().Str("version", version).Str("seed_email", cfg.Dev.SeedEmail).Msg("Starting quill development backend...")

	if err := srv.Start(cfg.Dev.Addr); err != nil {
		log.Fatal().Err(err).Msg("Development backend failed")
	}
}
