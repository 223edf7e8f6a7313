// tickerd runs the market tracker pipeline: feed ingest, snapshot
// view publishing, threshold alerting, and scheduled credential
// rotation, wired together by internal/app.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kavyaiyer/marketpulse/internal/app"
	"github.com/kavyaiyer/marketpulse/internal/config"
	"github.com/kavyaiyer/marketpulse/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/tickerd.local.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting tickerd",
		slog.Any("build", version.LogValue()),
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"broker_rest_url", cfg.Broker.RestURL,
		"feed_mode", cfg.Feed.Mode,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to construct application", "error", err)
		os.Exit(1)
	}

	logger.Info("tickerd running")

	if err := a.Run(ctx); err != nil {
		logger.Error("tickerd exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("tickerd stopped")
}
