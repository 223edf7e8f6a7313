// Package catalog is the one-shot instrument lookup table: a bidirectional
// token<->symbol map fetched from the broker once at startup.
//
// Grounded on the teacher's internal/market registry's state-holding shape
// (a mutex-guarded struct built from a REST fetch), generalized from the
// teacher's continuous reconciliation loop to a single blocking load,
// since this spec's instrument list is fixed for the trading day.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/kavyaiyer/marketpulse/internal/broker"
	"github.com/kavyaiyer/marketpulse/internal/model"
)

// Source fetches the broker's instrument list. Satisfied by
// *broker.Client in production and a fake in tests.
type Source interface {
	FetchInstruments(ctx context.Context) ([]broker.InstrumentRecord, error)
}

// Catalog is the loaded, queryable instrument list.
type Catalog struct {
	mu         sync.RWMutex
	bySymbol   map[string]model.Instrument
	byToken    map[uint32]model.Instrument
	ready      bool
}

// New creates an empty, not-yet-ready Catalog.
func New() *Catalog {
	return &Catalog{
		bySymbol: make(map[string]model.Instrument),
		byToken:  make(map[uint32]model.Instrument),
	}
}

// Load fetches the full instrument list from source and populates the
// lookup maps. Must complete before the feed session or subscription
// registry can resolve any symbol.
func (c *Catalog) Load(ctx context.Context, source Source) error {
	records, err := source.FetchInstruments(ctx)
	if err != nil {
		return fmt.Errorf("catalog: load: %w", err)
	}

	bySymbol := make(map[string]model.Instrument, len(records))
	byToken := make(map[uint32]model.Instrument, len(records))
	for _, r := range records {
		inst := model.Instrument{Token: r.Token, Symbol: r.Symbol, Name: r.Name}
		bySymbol[r.Symbol] = inst
		byToken[r.Token] = inst
	}

	c.mu.Lock()
	c.bySymbol = bySymbol
	c.byToken = byToken
	c.ready = true
	c.mu.Unlock()

	return nil
}

// Ready reports whether Load has completed successfully at least once.
func (c *Catalog) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// BySymbol resolves a trading symbol to its instrument.
func (c *Catalog) BySymbol(symbol string) (model.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.bySymbol[symbol]
	return inst, ok
}

// ByToken resolves an instrument token to its instrument.
func (c *Catalog) ByToken(token uint32) (model.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.byToken[token]
	return inst, ok
}

// Size returns the number of loaded instruments.
func (c *Catalog) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byToken)
}
