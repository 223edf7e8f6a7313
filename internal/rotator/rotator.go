// Package rotator implements the scheduled & on-demand credential
// rotation coordinator (C6): a wall-clock trigger that stops the feed
// session and view publisher, invokes the external login collaborator,
// and rebuilds the pipeline with the refreshed credential while leaving
// the subscription registry and snapshot continuity policy untouched.
//
// The timer-loop shape (context-cancellable goroutine, WaitGroup-tracked
// shutdown) is grounded on the teacher's poller.Poller, generalized from a
// fixed-interval ticker to a wall-clock time-of-day timer recomputed after
// every fire (handles DST and variable day length without drift).
package rotator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kavyaiyer/marketpulse/internal/audit"
	"github.com/kavyaiyer/marketpulse/internal/broker"
	"github.com/kavyaiyer/marketpulse/internal/credential"
	"github.com/kavyaiyer/marketpulse/internal/login"
)

// FeedSession is the subset of *feed.Session the rotator needs.
type FeedSession interface {
	Stop()
	Start(ctx context.Context, tokens []uint32) error
}

// ViewPublisher is the subset of *view.Publisher the rotator needs.
type ViewPublisher interface {
	Stop()
	ClearHandles()
	Start(ctx context.Context)
}

// SnapshotStore is the subset of *snapshot.Store the rotator needs.
type SnapshotStore interface {
	Clear()
}

// Registry is the subset of *subscription.Registry the rotator needs.
type Registry interface {
	Tokens() []uint32
}

// Config configures a Rotator.
type Config struct {
	Zone         *time.Location
	TimeOfDay    string // "HH:MM" in Zone
	LoginTimeout time.Duration
	RestartPause time.Duration
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		Zone:         time.UTC,
		TimeOfDay:    "05:45",
		LoginTimeout: 120 * time.Second,
		RestartPause: 2 * time.Second,
	}
}

// Rotator coordinates credential rotation.
type Rotator struct {
	cfg Config

	feed      FeedSession
	publisher ViewPublisher
	store     SnapshotStore
	registry  Registry
	holder    *credential.Holder
	login     login.Collaborator
	validator broker.ProfileValidator
	auditLog  *audit.Log
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Rotator. auditLog may be nil, in which case rotation
// events are simply not recorded.
func New(
	cfg Config,
	feed FeedSession,
	publisher ViewPublisher,
	store SnapshotStore,
	registry Registry,
	holder *credential.Holder,
	collaborator login.Collaborator,
	validator broker.ProfileValidator,
	auditLog *audit.Log,
	logger *slog.Logger,
) *Rotator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rotator{
		cfg:       cfg,
		feed:      feed,
		publisher: publisher,
		store:     store,
		registry:  registry,
		holder:    holder,
		login:     collaborator,
		validator: validator,
		auditLog:  auditLog,
		logger:    logger,
	}
}

// Start begins the wall-clock scheduler loop.
func (r *Rotator) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go r.scheduleLoop(runCtx)
}

// Stop cancels the scheduler loop. Does not interrupt a rotation that is
// already in flight.
func (r *Rotator) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

func (r *Rotator) scheduleLoop(ctx context.Context) {
	defer r.wg.Done()

	for {
		wait := r.nextFireDelay(time.Now())
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := r.Rotate(ctx); err != nil {
			r.logger.Error("scheduled rotation failed", "error", err)
		}
	}
}

// nextFireDelay returns the duration until the next occurrence of
// cfg.TimeOfDay in cfg.Zone, strictly after now.
func (r *Rotator) nextFireDelay(now time.Time) time.Duration {
	zone := r.cfg.Zone
	if zone == nil {
		zone = time.UTC
	}
	local := now.In(zone)

	var hour, minute int
	fmt.Sscanf(r.cfg.TimeOfDay, "%d:%d", &hour, &minute)

	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, zone)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(local)
}

// Rotate runs the full rotation sequence (spec §4.6): emit RotationStarted,
// invoke the login collaborator with the configured timeout, validate and
// persist the returned credential, then stop/clear/restart the feed and
// view publisher with the unchanged token set.
func (r *Rotator) Rotate(ctx context.Context) error {
	start := time.Now()
	r.emitAudit(audit.KindRotationStarted, nil)

	loginCtx, cancel := context.WithTimeout(ctx, r.cfg.LoginTimeout)
	result, err := r.login.Login(loginCtx)
	cancel()

	if err != nil || !result.Success {
		r.emitAudit(audit.KindRotationFailed, map[string]any{"error": errString(err, result.Err)})
		return fmt.Errorf("rotator: login collaborator failed: %w", firstNonNil(err, result.Err))
	}

	if err := r.holder.Set(ctx, result.Credential); err != nil {
		r.emitAudit(audit.KindRotationFailed, map[string]any{"error": err.Error(), "stage": "persist"})
		return fmt.Errorf("rotator: persist credential: %w", err)
	}

	if r.validator != nil {
		if err := r.validator.Validate(ctx); err != nil {
			r.emitAudit(audit.KindRotationFailed, map[string]any{"error": err.Error(), "stage": "validate"})
			return fmt.Errorf("rotator: validate rotated credential: %w", err)
		}
	}

	tokens := r.registry.Tokens()

	r.feed.Stop()
	r.publisher.Stop()
	r.publisher.ClearHandles()
	r.store.Clear()

	select {
	case <-time.After(r.cfg.RestartPause):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := r.feed.Start(ctx, tokens); err != nil {
		r.emitAudit(audit.KindRotationFailed, map[string]any{"error": err.Error(), "stage": "restart"})
		return fmt.Errorf("rotator: restart feed session: %w", err)
	}
	r.publisher.Start(ctx)

	r.emitAudit(audit.KindRotationCompleted, map[string]any{
		"duration_ms":    time.Since(start).Milliseconds(),
		"tracked_tokens": len(tokens),
	})
	return nil
}

func (r *Rotator) emitAudit(kind audit.Kind, payload map[string]any) {
	if r.auditLog == nil {
		return
	}
	r.auditLog.Record(audit.Record{Kind: kind, OccurredAt: time.Now(), Payload: payload})
}

func errString(errs ...error) string {
	if e := firstNonNil(errs...); e != nil {
		return e.Error()
	}
	return ""
}

func firstNonNil(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}
