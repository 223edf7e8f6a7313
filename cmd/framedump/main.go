// framedump connects directly to the broker's binary market-data feed and
// prints each decoded tick to the console, bypassing the view publisher,
// alert engine, and audit log entirely. Intended for diagnosing frame
// decode issues (wrong mode, zlib failures, truncated frames) against a
// live feed without involving the rest of the pipeline.
//
// Usage: go run ./cmd/framedump --config configs/tickerd.local.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kavyaiyer/marketpulse/internal/broker"
	"github.com/kavyaiyer/marketpulse/internal/catalog"
	"github.com/kavyaiyer/marketpulse/internal/config"
	"github.com/kavyaiyer/marketpulse/internal/credential"
	"github.com/kavyaiyer/marketpulse/internal/feed"
	"github.com/kavyaiyer/marketpulse/internal/model"
	"github.com/kavyaiyer/marketpulse/internal/snapshot"
	"github.com/kavyaiyer/marketpulse/internal/subscription"
)

func main() {
	configPath := flag.String("config", "configs/tickerd.local.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print every field of every delta")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	holder := credential.NewHolder(credential.FileStore{Path: cfg.Rotation.CredentialPath})
	if err := holder.LoadFromStore(ctx); err != nil {
		logger.Error("failed to load credential", "error", err)
		os.Exit(1)
	}
	if cur := holder.Current(); cur.APIKey == "" {
		holder.Set(ctx, credential.Credential{
			APIKey:      os.Getenv(cfg.Broker.APIKeyEnv),
			AccessToken: os.Getenv(cfg.Broker.AccessTokenEnv),
		})
	}

	brokerClient := broker.NewClient(cfg.Broker.RestURL, func() string { return holder.Current().AccessToken }, broker.WithLogger(logger))

	cat := catalog.New()
	if err := cat.Load(ctx, brokerClient); err != nil {
		logger.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}

	registry, err := subscription.Load(cfg.Subscription.Path, cat)
	if err != nil {
		logger.Error("failed to load subscription registry", "error", err)
		os.Exit(1)
	}
	tokens := registry.Tokens()
	if len(tokens) == 0 {
		logger.Error("subscription registry is empty, nothing to stream")
		os.Exit(1)
	}

	store := snapshot.New()
	escalate := make(chan error, 1)

	feedCfg := feed.DefaultConfig()
	feedCfg.URL = cfg.Broker.WSURL
	session := feed.New(feedCfg, feed.GorillaDialer{HandshakeTimeout: feedCfg.ConnectTimeout}, holder.APIKeyAndToken, cat, store, escalate, logger)

	session.OnDelta(func(delta model.Delta) {
		printDelta(delta, *verbose)
	})

	logger.Info("connecting", "ws_url", cfg.Broker.WSURL, "tokens", len(tokens))
	if err := session.Start(ctx, tokens); err != nil {
		logger.Error("failed to start feed session", "error", err)
		os.Exit(1)
	}

	go func() {
		for err := range escalate {
			logger.Error("feed session escalated", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	session.Stop()
	logger.Info("framedump stopped")
}

func printDelta(delta model.Delta, verbose bool) {
	if verbose {
		fmt.Printf("%s: last=%d vol=%d buy=%d sell=%d observed=%s\n",
			delta.New.Instrument.Symbol, delta.New.LastPrice, delta.New.Volume,
			delta.New.BuyQty, delta.New.SellQty, delta.New.ObservedAt.Format("15:04:05.000"))
		return
	}
	fmt.Printf("%s %d -> %d\n", delta.New.Instrument.Symbol, delta.Old.LastPrice, delta.New.LastPrice)
}
