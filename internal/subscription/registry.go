// Package subscription is the mutable, durably-persisted set of tracked
// instruments: an ordered, deduplicated list of identifiers mirrored to a
// JSON file on every mutation.
//
// Grounded on the teacher's internal/market registry's mutex-guarded state
// plus the append-only dedup shape of cmd/deduplicator, generalized here
// from "markets already known from a REST sync" to "identifiers a human
// operator explicitly added," with a file-backed persistence step the
// teacher's registry didn't need (it used pgx for everything).
package subscription

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/kavyaiyer/marketpulse/internal/catalog"
	"github.com/kavyaiyer/marketpulse/internal/model"
)

// Feed is the subset of the feed session's API the registry fans mutations
// out to. Satisfied by *feed.Session in production.
type Feed interface {
	Add(token uint32) error
	Remove(token uint32) error
}

// Registry is the ordered, deduplicated, durably-persisted set of tracked
// instruments.
type Registry struct {
	mu      sync.RWMutex
	path    string
	catalog *catalog.Catalog
	feed    Feed

	order      []uint32
	identifier map[uint32]string
	instrument map[uint32]model.Instrument
}

// Load reads path (a flat JSON array of identifier strings) and resolves
// each against cat. Missing files are treated as an empty registry, this
// is the expected first-run state. Entries that no longer resolve against
// the catalog are kept in the persisted identifier list but excluded from
// the live token set; they will resolve again once the catalog is
// refreshed with the new symbol.
func Load(path string, cat *catalog.Catalog) (*Registry, error) {
	r := &Registry{
		path:       path,
		catalog:    cat,
		identifier: make(map[uint32]string),
		instrument: make(map[uint32]model.Instrument),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("subscription: read %s: %w", path, err)
	}

	var identifiers []string
	if err := json.Unmarshal(raw, &identifiers); err != nil {
		return nil, fmt.Errorf("subscription: parse %s: %w", path, err)
	}

	for _, id := range identifiers {
		inst, ok := resolve(cat, id)
		if !ok {
			continue
		}
		r.order = append(r.order, inst.Token)
		r.identifier[inst.Token] = id
		r.instrument[inst.Token] = inst
	}

	return r, nil
}

// SetFeed wires the feed session for fan-out. Called once, after the feed
// session is constructed, the registry must exist before the feed
// session does (it seeds the feed's initial token set), so this breaks
// what would otherwise be a construction-order cycle.
func (r *Registry) SetFeed(feed Feed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feed = feed
}

// Tokens returns the current token order, stable across calls until the
// next Add/Remove. The returned slice is owned by the caller.
func (r *Registry) Tokens() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uint32, len(r.order))
	copy(out, r.order)
	return out
}

// Instruments returns the resolved instruments in registry order.
func (r *Registry) Instruments() []model.Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Instrument, 0, len(r.order))
	for _, tok := range r.order {
		out = append(out, r.instrument[tok])
	}
	return out
}

// Add resolves identifier against the catalog, appends it if not already
// present, fans the new token out to the feed, and persists the updated
// list. A persistence failure keeps the in-memory change and returns the
// error verbatim; the caller is expected to surface it to the operator.
func (r *Registry) Add(identifier string) error {
	inst, ok := resolve(r.catalog, identifier)
	if !ok {
		return fmt.Errorf("subscription: %q does not resolve against the instrument catalog", identifier)
	}

	r.mu.Lock()
	if _, exists := r.instrument[inst.Token]; exists {
		r.mu.Unlock()
		return nil
	}
	r.order = append(r.order, inst.Token)
	r.identifier[inst.Token] = identifier
	r.instrument[inst.Token] = inst
	feed := r.feed
	r.mu.Unlock()

	if feed != nil {
		if err := feed.Add(inst.Token); err != nil {
			return fmt.Errorf("subscription: feed add %s: %w", identifier, err)
		}
	}

	return r.persist()
}

// Remove drops identifier from the registry, fans the removal out to the
// feed, and persists the updated list. Removing an identifier that is not
// present is a no-op.
func (r *Registry) Remove(identifier string) error {
	inst, ok := resolve(r.catalog, identifier)
	if !ok {
		return fmt.Errorf("subscription: %q does not resolve against the instrument catalog", identifier)
	}

	r.mu.Lock()
	if _, exists := r.instrument[inst.Token]; !exists {
		r.mu.Unlock()
		return nil
	}
	r.order = removeToken(r.order, inst.Token)
	delete(r.identifier, inst.Token)
	delete(r.instrument, inst.Token)
	feed := r.feed
	r.mu.Unlock()

	if feed != nil {
		if err := feed.Remove(inst.Token); err != nil {
			return fmt.Errorf("subscription: feed remove %s: %w", identifier, err)
		}
	}

	return r.persist()
}

// persist rewrites the backing JSON file from the current in-memory order.
func (r *Registry) persist() error {
	r.mu.RLock()
	identifiers := make([]string, len(r.order))
	for i, tok := range r.order {
		identifiers[i] = r.identifier[tok]
	}
	r.mu.RUnlock()

	raw, err := json.MarshalIndent(identifiers, "", "  ")
	if err != nil {
		return fmt.Errorf("subscription: marshal: %w", err)
	}
	if err := os.WriteFile(r.path, raw, 0o644); err != nil {
		return fmt.Errorf("subscription: write %s: %w", r.path, err)
	}
	return nil
}

func resolve(cat *catalog.Catalog, identifier string) (model.Instrument, bool) {
	if symbol, ok := splitSymbol(identifier); ok {
		return cat.BySymbol(symbol)
	}
	if token, err := strconv.ParseUint(identifier, 10, 32); err == nil {
		return cat.ByToken(uint32(token))
	}
	return cat.BySymbol(identifier)
}

// splitSymbol splits an "EXCHANGE:SYMBOL" identifier. ok is false for bare
// symbols or numeric tokens.
func splitSymbol(identifier string) (string, bool) {
	idx := strings.IndexByte(identifier, ':')
	if idx < 0 {
		return "", false
	}
	return identifier[idx+1:], true
}

func removeToken(order []uint32, token uint32) []uint32 {
	out := order[:0]
	for _, t := range order {
		if t != token {
			out = append(out, t)
		}
	}
	return out
}
