package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Zubariev/quarantine/internal/config"
	"github.com/Zubariev/quarantine/internal/db"
	"github.com/Zubariev/quarantine/internal/game"
	"github.com/Zubariev/quarantine/internal/store"
)

// quarantine-migrate applies the schema and seeds the default catalogs, then
// exits. Safe to run repeatedly.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadMigrateFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.SlogLevel(cfg.LogLevel)}))
	backend, kind, err := store.Open(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: 2, AppName: "quarantine-migrate"})
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer backend.Close()

	if err := backend.Migrate(ctx); err != nil {
		logger.Error("migrate failed", "backend", kind, "err", err)
		os.Exit(1)
	}
	logger.Info("schema applied", "backend", kind)

	if cfg.SeedCatalog {
		svc := game.NewService(backend, logger, game.Options{})
		if err := svc.SeedDefaults(ctx); err != nil {
			logger.Error("seed defaults failed", "err", err)
			os.Exit(1)
		}
	}
	logger.Info("migrate completed")
}
