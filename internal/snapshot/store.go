// Package snapshot holds the live per-instrument market state: the most
// recent tick for every tracked token (current) and the one before it
// (previous), used by the alert engine to compute deltas.
//
// Grounded on the teacher's internal/market state, a single mutex-guarded
// map with a locked upsert path, generalized from one map to the
// current/previous pair this spec requires.
package snapshot

import (
	"sync"
	"time"

	"github.com/kavyaiyer/marketpulse/internal/model"
)

// Store is the keyed live state for every tracked instrument, plus the
// penultimate state used for delta-based alerting.
//
// Apply is called only from the feed's ingest path; SnapshotForView only
// from the view publisher's timer. The coarse mutex below is sufficient to
// serialize those two callers without torn reads, per spec's concurrency
// model, ticks are microsecond-scale updates, not a contention hot path.
type Store struct {
	mu       sync.Mutex
	current  map[uint32]model.SnapshotEntry
	previous map[uint32]model.SnapshotEntry
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		current:  make(map[uint32]model.SnapshotEntry),
		previous: make(map[uint32]model.SnapshotEntry),
	}
}

// Apply upserts the current entry for a tick's token, built against the
// resolved instrument. If a prior entry existed it is moved to previous
// and a Delta is returned; otherwise ok is false (first tick for this
// token). observedAt is the ingest-time wall clock, injected by the
// caller so Store itself never reads the clock.
func (s *Store) Apply(tick model.Tick, instrument model.Instrument, observedAt time.Time) (model.Delta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := entryFromTick(tick, instrument, observedAt)

	old, existed := s.current[tick.Token]
	s.current[tick.Token] = entry
	if !existed {
		return model.Delta{}, false
	}

	s.previous[tick.Token] = old
	return model.Delta{Old: old, New: entry}, true
}

// SnapshotForView returns the current entry for each token in order,
// skipping tokens that have not yet received a tick. order is supplied by
// the caller (the subscription registry's stable ordering), the store
// itself holds no ordering opinion.
func (s *Store) SnapshotForView(order []uint32) []model.SnapshotEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.SnapshotEntry, 0, len(order))
	for _, token := range order {
		if entry, ok := s.current[token]; ok {
			out = append(out, entry)
		}
	}
	return out
}

// Size returns the number of tokens with at least one applied tick.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.current)
}

// Purge drops a single token's state, used when a subscription is removed.
func (s *Store) Purge(token uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.current, token)
	delete(s.previous, token)
}

// Clear drops all state. Used on pipeline restart (credential rotation):
// the new feed session has no continuity guarantee with the old one.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = make(map[uint32]model.SnapshotEntry)
	s.previous = make(map[uint32]model.SnapshotEntry)
}

func entryFromTick(tick model.Tick, instrument model.Instrument, observedAt time.Time) model.SnapshotEntry {
	return model.SnapshotEntry{
		Instrument: instrument,
		LastPrice:  tick.LastPrice,
		Change:     tick.Change,
		Volume:     tick.VolumeTraded,
		OHLC:       tick.OHLC,
		Depth:      tick.Depth,
		BuyQty:     tick.TotalBuyQty,
		SellQty:    tick.TotalSellQty,
		AvgPrice:   tick.AvgTradedPrice,
		LastQty:    tick.LastTradedQty,
		ObservedAt: observedAt,
	}
}
