// Package app is the composition root: the single place every component
// is constructed and wired together, in place of the package-level
// singletons the teacher's cmd/gatherer main.go builds inline.
//
// Construction order follows the dependency chain credential rotation
// forces: Catalog needs the broker client, which needs the credential
// holder; the feed session needs the catalog and snapshot store; the
// rotator needs handles to the feed session, view publisher, snapshot
// store and subscription registry, but neither of those ever holds a
// reference back to the rotator (the feed session escalates over a
// one-way channel instead), breaking the cycle spec.md §9 calls out.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kavyaiyer/marketpulse/internal/alert"
	"github.com/kavyaiyer/marketpulse/internal/audit"
	"github.com/kavyaiyer/marketpulse/internal/broker"
	"github.com/kavyaiyer/marketpulse/internal/catalog"
	"github.com/kavyaiyer/marketpulse/internal/config"
	"github.com/kavyaiyer/marketpulse/internal/credential"
	"github.com/kavyaiyer/marketpulse/internal/database"
	"github.com/kavyaiyer/marketpulse/internal/feed"
	"github.com/kavyaiyer/marketpulse/internal/login"
	"github.com/kavyaiyer/marketpulse/internal/model"
	"github.com/kavyaiyer/marketpulse/internal/rotator"
	"github.com/kavyaiyer/marketpulse/internal/sink"
	"github.com/kavyaiyer/marketpulse/internal/snapshot"
	"github.com/kavyaiyer/marketpulse/internal/subscription"
	"github.com/kavyaiyer/marketpulse/internal/view"
)

// App owns every component value for one run of the tracker. No
// package-level singletons; everything flows from New.
type App struct {
	cfg    *config.TrackerConfig
	logger *slog.Logger

	brokerClient *broker.Client
	chatSink     sink.Sink
	holder       *credential.Holder
	catalog      *catalog.Catalog
	registry     *subscription.Registry
	store        *snapshot.Store
	feedSession  *feed.Session
	alertEngine  *alert.Engine
	publisher    *view.Publisher
	auditPool    *pgxpool.Pool
	auditLog     *audit.Log
	rotator      *rotator.Rotator

	escalate chan error
}

// New constructs every component in dependency order. It does not start
// any goroutine-owning loop; call Run for that.
func New(ctx context.Context, cfg *config.TrackerConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	holder := credential.NewHolder(credential.FileStore{Path: cfg.Rotation.CredentialPath})
	if err := holder.LoadFromStore(ctx); err != nil {
		return nil, fmt.Errorf("app: load credential: %w", err)
	}
	if cur := holder.Current(); cur.APIKey == "" || cur.AccessToken == "" {
		seed := credential.Credential{
			APIKey:      os.Getenv(cfg.Broker.APIKeyEnv),
			AccessToken: os.Getenv(cfg.Broker.AccessTokenEnv),
		}
		if err := holder.Set(ctx, seed); err != nil {
			return nil, fmt.Errorf("app: seed credential from environment: %w", err)
		}
	}

	brokerClient := broker.NewClient(
		cfg.Broker.RestURL,
		func() string { return holder.Current().AccessToken },
		broker.WithTimeout(cfg.Broker.Timeout),
		broker.WithRetries(cfg.Broker.MaxRetries, cfg.Broker.RetryBackoff),
		broker.WithLogger(logger),
	)

	cat := catalog.New()
	if err := cat.Load(ctx, brokerClient); err != nil {
		return nil, fmt.Errorf("app: load instrument catalog: %w", err)
	}

	registry, err := subscription.Load(cfg.Subscription.Path, cat)
	if err != nil {
		return nil, fmt.Errorf("app: load subscription registry: %w", err)
	}

	store := snapshot.New()

	escalate := make(chan error, 1)

	viewZone, err := parseZone(cfg.View.Zone)
	if err != nil {
		return nil, fmt.Errorf("app: view.zone: %w", err)
	}
	rotationZone, err := parseZone(cfg.Rotation.Zone)
	if err != nil {
		return nil, fmt.Errorf("app: rotation.zone: %w", err)
	}

	feedCfg := feed.Config{
		URL:                cfg.Broker.WSURL,
		Mode:               parseSubMode(cfg.Feed.Mode),
		ConnectTimeout:     cfg.Feed.ConnectTimeout,
		ReconnectInterval:  cfg.Feed.ReconnectInterval,
		MaxBackoffAttempts: cfg.Feed.MaxBackoffAttempts,
		ModeSettlePause:    cfg.Feed.ModeSettlePause,
		FirstTickGrace:     cfg.Feed.FirstTickGrace,
		ControlRateLimit:   rateLimit(cfg.Feed.ControlRateLimit),
		ControlBurst:       cfg.Feed.ControlBurst,
	}
	feedSession := feed.New(feedCfg, feed.GorillaDialer{HandshakeTimeout: cfg.Feed.ConnectTimeout}, holder.APIKeyAndToken, cat, store, escalate, logger)
	registry.SetFeed(feedSession)

	chatSink := sink.NewHTTPSink(
		cfg.Sink.BaseURL,
		os.Getenv(cfg.Sink.TokenEnv),
		sink.WithTimeout(cfg.Sink.Timeout),
		sink.WithLogger(logger),
	)

	alertCfg := alert.Config{
		Window:                  cfg.Alert.Window,
		CrashThresholdPct:       decimalFromFloat(cfg.Alert.CrashThresholdPct),
		SpikeThresholdPct:       decimalFromFloat(cfg.Alert.SpikeThresholdPct),
		VolumeSpikeRatio:        decimalFromFloat(cfg.Alert.VolumeSpikeRatio),
		GateVolumeSpikeByWindow: boolOrDefault(cfg.Alert.GateVolumeSpikeByWindow, true),
	}
	alertSink := alert.NewChatSink(chatSink, cfg.Sink.AlertChannelID)
	alertEngine := alert.New(alertCfg, alertSink, logger)

	feedSession.OnDelta(func(delta model.Delta) {
		alertEngine.Apply(context.Background(), delta)
	})

	viewCfg := view.Config{
		Cadence:         cfg.View.Cadence,
		InitialDelay:    cfg.View.InitialDelay,
		PageSize:        cfg.View.PageSize,
		InterPageSpacer: cfg.View.InterPageSpacer,
		RecoverHandles:  cfg.View.RecoverHandles,
		RecoverLimit:    cfg.View.RecoverLimit,
		ChannelID:       cfg.Sink.TickerChannelID,
		Zone:            viewZone,
	}
	publisher := view.New(viewCfg, store, registry, chatSink, logger)

	var auditPool *pgxpool.Pool
	var auditLog *audit.Log
	if cfg.Audit.Enabled {
		auditPool, err = database.Connect(ctx, cfg.Audit.DSN, cfg.Audit.MaxConns, cfg.Audit.MinConns)
		if err != nil {
			return nil, fmt.Errorf("app: connect audit database: %w", err)
		}
		auditLog = audit.New(audit.Config{
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: cfg.Audit.FlushInterval,
			BufferSize:    cfg.Audit.BufferSize,
		}, auditPool, logger)
	}

	rotatorCfg := rotator.Config{
		Zone:         rotationZone,
		TimeOfDay:    cfg.Rotation.TimeOfDay,
		LoginTimeout: cfg.Rotation.LoginTimeout,
		RestartPause: cfg.Rotation.RestartPause,
	}
	collaborator := login.NewFake(holder.Current())
	rot := rotator.New(rotatorCfg, feedSession, publisher, store, registry, holder, collaborator, brokerClient, auditLog, logger)

	return &App{
		cfg:          cfg,
		logger:       logger,
		brokerClient: brokerClient,
		chatSink:     chatSink,
		holder:       holder,
		catalog:      cat,
		registry:     registry,
		store:        store,
		feedSession:  feedSession,
		alertEngine:  alertEngine,
		publisher:    publisher,
		auditPool:    auditPool,
		auditLog:     auditLog,
		rotator:      rot,
		escalate:     escalate,
	}, nil
}

// Run starts every goroutine-owning component and blocks until ctx is
// cancelled, then stops them in reverse dependency order.
func (a *App) Run(ctx context.Context) error {
	if err := a.brokerClient.Validate(ctx); err != nil {
		a.logger.Warn("startup credential validation failed, rotating before first connect", "error", err)
		if rotErr := a.rotator.Rotate(ctx); rotErr != nil {
			return fmt.Errorf("app: startup rotation: %w", rotErr)
		}
	} else if err := a.feedSession.Start(ctx, a.registry.Tokens()); err != nil {
		return fmt.Errorf("app: start feed session: %w", err)
	}

	if a.auditLog != nil {
		a.auditLog.Start(ctx)
	}
	a.publisher.Start(ctx)
	a.rotator.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.watchEscalation(gctx) })

	<-ctx.Done()
	a.shutdown()

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// watchEscalation bridges the feed session's one-way escalate channel
// (repeated reconnect backoff exhaustion, or a rejected credential) into
// an immediate out-of-schedule rotation.
func (a *App) watchEscalation(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-a.escalate:
			a.logger.Error("feed session escalated, triggering rotation", "error", err)
			if rotErr := a.rotator.Rotate(context.Background()); rotErr != nil {
				a.logger.Error("escalated rotation failed", "error", rotErr)
			}
		}
	}
}

func (a *App) shutdown() {
	a.logger.Info("shutting down")
	a.rotator.Stop()
	a.publisher.Stop()
	a.feedSession.Stop()
	if a.auditLog != nil {
		a.auditLog.Stop()
	}
	if a.auditPool != nil {
		a.auditPool.Close()
	}
	a.logger.Info("shutdown complete")
}

func parseZone(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

func parseSubMode(mode string) model.SubscriptionMode {
	switch mode {
	case "ltp":
		return model.SubModeLTP
	case "quote":
		return model.SubModeQuote
	default:
		return model.SubModeFull
	}
}

func rateLimit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Limit(3)
	}
	return rate.Limit(perSecond)
}

func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func boolOrDefault(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
