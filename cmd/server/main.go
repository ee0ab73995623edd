// Package main is the entry point of the JokeBot server.
//
// main stays small: read configuration, set up logging, make sure the data
// directories exist, then hand over to internal/server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/jokebot/internal/config"
	"github.com/sakif/jokebot/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	envFile := flag.String("env", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	// Until the configured level is known, log everything at info.
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	level, _ := cfg.SlogLevel() // validated by Load
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Without fixed secrets every restart logs everyone out.
	for name, secret := range map[string]*string{
		"JWT_SECRET":     &cfg.Auth.JWTSecret,
		"SESSION_SECRET": &cfg.Auth.SessionSecret,
	} {
		if *secret != "" {
			continue
		}
		generated, err := config.RandomSecret()
		if err != nil {
			logger.Error("failed to generate secret", slog.String("name", name), slog.String("error", err.Error()))
			os.Exit(1)
		}
		*secret = generated
		logger.Warn(name + " not set, using a random secret; sessions will not survive a restart")
	}

	for _, dir := range []string{filepath.Dir(cfg.DBPath), cfg.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv, err := server.New(context.Background(), cfg, logger, server.Options{})
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
