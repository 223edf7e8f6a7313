// Package view renders the snapshot store into paged text views on a
// fixed timer and keeps them up to date in the sink via send-then-edit.
//
// Grounded on the teacher's poller.Poller, a ticker-driven loop with an
// immediate first fire, cancellable via context, generalized from "fetch
// and hand to a snapshot handler" to "render and send/edit into a chat
// sink," with the non-reentrancy guard and page-handle bookkeeping the
// teacher's poller didn't need (it had no "previous page" to continue).
package view

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kavyaiyer/marketpulse/internal/model"
	"github.com/kavyaiyer/marketpulse/internal/sink"
	"github.com/kavyaiyer/marketpulse/internal/snapshot"
)

// Registry supplies the stable token ordering views are rendered in.
type Registry interface {
	Tokens() []uint32
}

const headerMarker = "LIVE TRACKER"

// Config configures a Publisher.
type Config struct {
	Cadence         time.Duration
	InitialDelay    time.Duration
	PageSize        int
	InterPageSpacer time.Duration
	RecoverHandles  bool
	RecoverLimit    int
	ChannelID       string
	Zone            *time.Location
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		Cadence:         3 * time.Second,
		InitialDelay:    2 * time.Second,
		PageSize:        50,
		InterPageSpacer: 200 * time.Millisecond,
		RecoverHandles:  true,
		RecoverLimit:    100,
		Zone:            time.UTC,
	}
}

// Publisher renders the snapshot store into paged text views.
type Publisher struct {
	cfg      Config
	store    *snapshot.Store
	registry Registry
	sink     sink.Sink
	logger   *slog.Logger

	mu        sync.Mutex
	running   bool
	handles   map[int]sink.Handle
	tickCount uint64
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	clock func() time.Time
}

// New creates a Publisher.
func New(cfg Config, store *snapshot.Store, registry Registry, s sink.Sink, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:      cfg,
		store:    store,
		registry: registry,
		sink:     s,
		logger:   logger,
		handles:  make(map[int]sink.Handle),
		clock:    time.Now,
	}
}

// Start begins the timer loop: first fire after InitialDelay, then every
// Cadence. If RecoverHandles is set, it attempts handle recovery before
// the first render.
func (p *Publisher) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	if p.cfg.RecoverHandles {
		p.recoverHandles(runCtx)
	}

	p.wg.Add(1)
	go p.loop(runCtx)
}

// Stop cancels the timer loop and abandons any in-flight sink call.
func (p *Publisher) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// ClearHandles drops all tracked page handles, used when a credential
// rotation invalidates the prior session's continuity.
func (p *Publisher) ClearHandles() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handles = make(map[int]sink.Handle)
}

func (p *Publisher) loop(ctx context.Context) {
	defer p.wg.Done()

	initial := time.NewTimer(p.cfg.InitialDelay)
	defer initial.Stop()

	select {
	case <-ctx.Done():
		return
	case <-initial.C:
	}
	p.tick(ctx)

	ticker := time.NewTicker(p.cfg.Cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick is non-reentrant: a late publish from a prior fire must complete
// before the next one starts its work.
func (p *Publisher) tick(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.logger.Warn("view tick skipped, previous publish still in flight")
		return
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	p.publish(ctx)
}

func (p *Publisher) publish(ctx context.Context) {
	order := p.registry.Tokens()
	entries := p.store.SnapshotForView(order)

	p.mu.Lock()
	p.tickCount++
	tickCount := p.tickCount
	p.mu.Unlock()

	pages := paginate(entries, p.cfg.PageSize)
	now := p.clock().In(p.cfg.Zone)

	for i, page := range pages {
		text := renderPage(i, len(pages), page, i*p.cfg.PageSize, len(entries), tickCount, now, i == len(pages)-1)
		p.publishPage(ctx, i, text)
	}
}

func (p *Publisher) publishPage(ctx context.Context, index int, text string) {
	p.mu.Lock()
	handle, exists := p.handles[index]
	p.mu.Unlock()

	if !exists {
		h, err := p.sink.Send(ctx, p.cfg.ChannelID, text)
		if err != nil {
			p.logger.Warn("view page send failed", "page", index, "error", err)
			return
		}
		p.mu.Lock()
		p.handles[index] = h
		p.mu.Unlock()

		select {
		case <-time.After(p.cfg.InterPageSpacer):
		case <-ctx.Done():
		}
		return
	}

	if err := p.sink.Edit(ctx, handle, text); err != nil {
		p.logger.Warn("view page edit failed, will re-send next tick", "page", index, "error", err)
		p.mu.Lock()
		delete(p.handles, index)
		p.mu.Unlock()
	}
}

// recoverHandles fetches recent sink messages and, if they match the
// stable header marker, adopts them ascending by creation time as page
// handles 0..k-1.
func (p *Publisher) recoverHandles(ctx context.Context) {
	msgs, err := p.sink.FetchRecent(ctx, p.cfg.ChannelID, p.cfg.RecoverLimit)
	if err != nil {
		p.logger.Warn("view handle recovery failed", "error", err)
		return
	}

	var matched []sink.Message
	for _, m := range msgs {
		if len(m.Text) >= len(headerMarker) && m.Text[:len(headerMarker)] == headerMarker {
			matched = append(matched, m)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt < matched[j].CreatedAt })

	p.mu.Lock()
	defer p.mu.Unlock()
	for i, m := range matched {
		p.handles[i] = m.Handle
	}
}

func paginate(entries []model.SnapshotEntry, pageSize int) [][]model.SnapshotEntry {
	if len(entries) == 0 {
		return [][]model.SnapshotEntry{{}}
	}
	var pages [][]model.SnapshotEntry
	for i := 0; i < len(entries); i += pageSize {
		end := i + pageSize
		if end > len(entries) {
			end = len(entries)
		}
		pages = append(pages, entries[i:end])
	}
	return pages
}

func renderPage(index, total int, page []model.SnapshotEntry, startIndex, grandTotal int, tickCount uint64, now time.Time, isLast bool) string {
	header := fmt.Sprintf("%s %d/%d | %s", headerMarker, index+1, total, now.Format("15:04:05 MST"))

	lines := make([]string, 0, len(page)+2)
	lines = append(lines, header)
	for i, entry := range page {
		lines = append(lines, renderEntry(startIndex+i+1, entry))
	}
	if isLast {
		lines = append(lines, fmt.Sprintf("Total: %d | Ticks: %d", grandTotal, tickCount))
	}

	text := lines[0]
	for _, l := range lines[1:] {
		text += "\n" + l
	}
	return text
}

func renderEntry(globalIndex int, entry model.SnapshotEntry) string {
	price := decimal.NewFromInt(entry.LastPrice).DivRound(decimal.NewFromInt(100), 2)
	pct := pctChange(entry.OHLC.Close, entry.LastPrice)
	volumeLakh := decimal.NewFromInt(int64(entry.Volume)).DivRound(decimal.NewFromInt(100000), 2)

	sign := "+"
	if pct.IsNegative() {
		sign = ""
	}

	name := entry.Instrument.Name
	if name == "" {
		name = entry.Instrument.Symbol
	}

	return fmt.Sprintf("%d.%s : %s (%s%s%%) {%sL}", globalIndex, name, price.StringFixed(2), sign, pct.StringFixed(2), volumeLakh.StringFixed(2))
}

func pctChange(base, price int64) decimal.Decimal {
	if base == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(price - base).Mul(decimal.NewFromInt(100)).DivRound(decimal.NewFromInt(base), 2)
}
