package view

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kavyaiyer/marketpulse/internal/model"
	"github.com/kavyaiyer/marketpulse/internal/sink"
	"github.com/kavyaiyer/marketpulse/internal/snapshot"
)

type fakeRegistry struct {
	tokens []uint32
}

func (f fakeRegistry) Tokens() []uint32 { return f.tokens }

func applyTick(store *snapshot.Store, token uint32, symbol string, lastPrice, close int64, volume uint32, at time.Time) {
	inst := model.Instrument{Token: token, Symbol: symbol, Name: symbol}
	store.Apply(model.Tick{
		Token:     token,
		LastPrice: lastPrice,
		OHLC:      model.OHLC{Close: close},
		VolumeTraded: volume,
	}, inst, at)
}

func TestPublisher_Publish_RendersExpectedLines(t *testing.T) {
	store := snapshot.New()
	now := time.Date(2026, 8, 6, 10, 0, 0, 0, time.UTC)
	applyTick(store, 738561, "RELIANCE", 250000, 240000, 0, now)
	applyTick(store, 2953217, "TCS", 350000, 350000, 0, now)

	fake := sink.NewFake()
	cfg := DefaultConfig()
	cfg.ChannelID = "tracker"
	p := New(cfg, store, fakeRegistry{tokens: []uint32{738561, 2953217}}, fake, nil)
	p.clock = func() time.Time { return now }

	p.publish(context.Background())

	handle, ok := p.handles[0]
	if !ok {
		t.Fatal("expected page 0 handle after publish")
	}
	text, _ := fake.Text(handle)
	if !strings.Contains(text, "1.RELIANCE : 2500.00 (+4.17%)") {
		t.Fatalf("page text missing RELIANCE line:\n%s", text)
	}
	if !strings.Contains(text, "2.TCS : 3500.00 (+0.00%)") {
		t.Fatalf("page text missing TCS line:\n%s", text)
	}
	if !strings.Contains(text, "Total: 2 | Ticks: 1") {
		t.Fatalf("page text missing trailer:\n%s", text)
	}
}

func TestPublisher_Publish_SecondTickEditsNotSend(t *testing.T) {
	store := snapshot.New()
	now := time.Now()
	applyTick(store, 1, "FOO", 100000, 100000, 0, now)

	fake := sink.NewFake()
	cfg := DefaultConfig()
	cfg.ChannelID = "tracker"
	p := New(cfg, store, fakeRegistry{tokens: []uint32{1}}, fake, nil)
	p.clock = func() time.Time { return now }

	p.publish(context.Background())
	firstHandle := p.handles[0]

	p.publish(context.Background())
	secondHandle := p.handles[0]

	if firstHandle != secondHandle {
		t.Fatalf("handle changed across ticks (%v -> %v), want edit in place", firstHandle, secondHandle)
	}
}

func TestPublisher_Publish_Paging120Instruments(t *testing.T) {
	store := snapshot.New()
	now := time.Now()
	tokens := make([]uint32, 120)
	for i := 0; i < 120; i++ {
		tokens[i] = uint32(i + 1)
		applyTick(store, tokens[i], "SYM", 10000, 10000, 0, now)
	}

	fake := sink.NewFake()
	cfg := DefaultConfig()
	cfg.ChannelID = "tracker"
	cfg.InterPageSpacer = 0
	p := New(cfg, store, fakeRegistry{tokens: tokens}, fake, nil)
	p.clock = func() time.Time { return now }

	p.publish(context.Background())
	if len(p.handles) != 3 {
		t.Fatalf("handles = %d, want 3 pages (50,50,20)", len(p.handles))
	}

	p.publish(context.Background())
	if len(p.handles) != 3 {
		t.Fatalf("handles after second tick = %d, want still 3 (edited not resent)", len(p.handles))
	}
}

func TestPublisher_EditFailureInvalidatesHandle(t *testing.T) {
	store := snapshot.New()
	now := time.Now()
	applyTick(store, 1, "FOO", 100000, 100000, 0, now)

	fake := sink.NewFake()
	cfg := DefaultConfig()
	cfg.ChannelID = "tracker"
	p := New(cfg, store, fakeRegistry{tokens: []uint32{1}}, fake, nil)
	p.clock = func() time.Time { return now }

	p.publish(context.Background())
	fake.FailEdit = true
	p.publish(context.Background())

	if _, exists := p.handles[0]; exists {
		t.Fatal("expected handle to be invalidated after edit failure")
	}
}

func TestPublisher_NonReentrant_SkipsOverlappingTick(t *testing.T) {
	store := snapshot.New()
	fake := sink.NewFake()
	cfg := DefaultConfig()
	p := New(cfg, store, fakeRegistry{}, fake, nil)

	p.mu.Lock()
	p.running = true
	p.mu.Unlock()

	p.tick(context.Background())

	msgs, _ := fake.FetchRecent(context.Background(), "tracker", 10)
	if len(msgs) != 0 {
		t.Fatal("expected no publish while a tick is already running")
	}
}
