// Command server runs the mr-blogs API.
//
// Configuration comes from defaults, .env, an optional YAML file named by
// CONFIG_FILE and the environment; see internal/config.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/mr-blogs/internal/config"
	"github.com/sakif/mr-blogs/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	if cfg.Store.Driver == "sqlite" && cfg.Store.SQLitePath != ":memory:" {
		dbDir := filepath.Dir(cfg.Store.SQLitePath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// blocks until SIGINT or SIGTERM
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
