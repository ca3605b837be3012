package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/querydock/querydock/internal/config"
	"github.com/querydock/querydock/internal/maintenance"
	"github.com/querydock/querydock/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("querydock-sweeper")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	svc := &maintenance.Service{
		Config: maintenance.Config{
			Root:          cfg.Artifact.RootDir,
			SweepInterval: cfg.Artifact.SweepInterval,
			RetentionAge:  cfg.Artifact.RetentionAge,
		},
		Logger: logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("artifact sweeper started", slog.String("root", cfg.Artifact.RootDir))
	if err := svc.Run(ctx); err != nil {
		logger.Error("artifact sweeper failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("artifact sweeper stopped")
}
