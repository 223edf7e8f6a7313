package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kavyaiyer/marketpulse/internal/model"
)

type fakeSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (f *fakeSink) SendAlert(ctx context.Context, event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func entry(price int64, volume uint32, at time.Time) model.SnapshotEntry {
	return model.SnapshotEntry{
		Instrument: model.Instrument{Token: 1, Symbol: "FOO"},
		LastPrice:  price,
		Volume:     volume,
		ObservedAt: at,
	}
}

func TestEngine_Crash(t *testing.T) {
	sink := &fakeSink{}
	e := New(DefaultConfig(), sink, nil)

	base := time.Unix(0, 0)
	delta := model.Delta{
		Old: entry(250000, 0, base),
		New: entry(240000, 0, base.Add(60*time.Second)),
	}

	events := e.Apply(context.Background(), delta)
	if len(events) != 1 || events[0].Kind != KindCrash {
		t.Fatalf("events = %+v, want exactly one Crash", events)
	}
	pct, _ := events[0].PctChange.Float64()
	if pct > -3.99 || pct < -4.01 {
		t.Errorf("PctChange = %v, want -4.00", events[0].PctChange)
	}
	if events[0].Elapsed != 60*time.Second {
		t.Errorf("Elapsed = %v, want 60s", events[0].Elapsed)
	}
}

func TestEngine_Spike(t *testing.T) {
	sink := &fakeSink{}
	e := New(DefaultConfig(), sink, nil)

	base := time.Unix(0, 0)
	delta := model.Delta{
		Old: entry(100000, 0, base),
		New: entry(105000, 0, base.Add(30*time.Second)),
	}
	events := e.Apply(context.Background(), delta)
	if len(events) != 1 || events[0].Kind != KindSpike {
		t.Fatalf("events = %+v, want exactly one Spike", events)
	}
}

func TestEngine_VolumeSpikeWithoutPriceMovement(t *testing.T) {
	sink := &fakeSink{}
	e := New(DefaultConfig(), sink, nil)

	base := time.Unix(0, 0)
	delta := model.Delta{
		Old: entry(100000, 100000, base),
		New: entry(100000, 300000, base.Add(10*time.Second)),
	}
	events := e.Apply(context.Background(), delta)
	if len(events) != 1 || events[0].Kind != KindVolumeSpike {
		t.Fatalf("events = %+v, want exactly one VolumeSpike, no Crash/Spike", events)
	}
}

func TestEngine_OutsideWindow_NoCrashOrSpike(t *testing.T) {
	sink := &fakeSink{}
	e := New(DefaultConfig(), sink, nil)

	base := time.Unix(0, 0)
	delta := model.Delta{
		Old: entry(250000, 0, base),
		New: entry(240000, 0, base.Add(400*time.Second)),
	}
	events := e.Apply(context.Background(), delta)
	if len(events) != 0 {
		t.Fatalf("events = %+v, want none (outside window)", events)
	}
}

func TestEngine_BelowThreshold_NoAlert(t *testing.T) {
	sink := &fakeSink{}
	e := New(DefaultConfig(), sink, nil)

	base := time.Unix(0, 0)
	delta := model.Delta{
		Old: entry(100000, 0, base),
		New: entry(100100, 0, base.Add(time.Second)),
	}
	events := e.Apply(context.Background(), delta)
	if len(events) != 0 {
		t.Fatalf("events = %+v, want none (below threshold)", events)
	}
}

func TestEngine_SinkFailureDoesNotPanicOrBlock(t *testing.T) {
	sink := &fakeSink{err: context.DeadlineExceeded}
	e := New(DefaultConfig(), sink, nil)

	base := time.Unix(0, 0)
	delta := model.Delta{
		Old: entry(250000, 0, base),
		New: entry(240000, 0, base.Add(60*time.Second)),
	}
	events := e.Apply(context.Background(), delta)
	if len(events) != 1 {
		t.Fatalf("events = %+v, want one event even though sink fails", events)
	}
}
