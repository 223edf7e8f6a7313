// subctl manages the on-disk subscription registry (subscriptions.json)
// from the command line: add or remove a tracked instrument by symbol or
// token, or list the current tracked set. It talks to the broker's REST
// API to resolve identifiers against the instrument catalog but never
// touches the live feed session: tickerd must be restarted (or the
// rotator's next cycle relied upon) to pick up an edit made while it is
// not running.
//
// Usage:
//
//	subctl --config configs/tickerd.local.yaml --add NSE:ACME
//	subctl --config configs/tickerd.local.yaml --remove NSE:ACME
//	subctl --config configs/tickerd.local.yaml --list
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/kavyaiyer/marketpulse/internal/broker"
	"github.com/kavyaiyer/marketpulse/internal/catalog"
	"github.com/kavyaiyer/marketpulse/internal/config"
	"github.com/kavyaiyer/marketpulse/internal/credential"
	"github.com/kavyaiyer/marketpulse/internal/subscription"
)

func main() {
	configPath := flag.String("config", "configs/tickerd.local.yaml", "path to config file")
	add := flag.String("add", "", "identifier (EXCHANGE:SYMBOL or numeric token) to add")
	remove := flag.String("remove", "", "identifier (EXCHANGE:SYMBOL or numeric token) to remove")
	list := flag.Bool("list", false, "list the current tracked set")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if *add == "" && *remove == "" && !*list {
		fmt.Fprintln(os.Stderr, "subctl: one of --add, --remove, --list is required")
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "subctl: load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	holder := credential.NewHolder(credential.FileStore{Path: cfg.Rotation.CredentialPath})
	if err := holder.LoadFromStore(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "subctl: load credential: %v\n", err)
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
		fmt.Fprintf(os.Stderr, "subctl: load instrument catalog: %v\n", err)
		os.Exit(1)
	}

	registry, err := subscription.Load(cfg.Subscription.Path, cat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "subctl: load subscription registry: %v\n", err)
		os.Exit(1)
	}

	if *add != "" {
		if err := registry.Add(*add); err != nil {
			fmt.Fprintf(os.Stderr, "subctl: add %s: %v\n", *add, err)
			os.Exit(1)
		}
		fmt.Printf("added %s\n", *add)
	}

	if *remove != "" {
		if err := registry.Remove(*remove); err != nil {
			fmt.Fprintf(os.Stderr, "subctl: remove %s: %v\n", *remove, err)
			os.Exit(1)
		}
		fmt.Printf("removed %s\n", *remove)
	}

	if *list {
		for _, inst := range registry.Instruments() {
			fmt.Printf("%d\t%s\t%s\n", inst.Token, inst.Symbol, inst.Name)
		}
	}
}
