package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"SalesAnalytics/internal/app"
	"SalesAnalytics/internal/config"
	"SalesAnalytics/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		stop()
		_ = application.Close()
		os.Exit(1)
	}
}
