package subscription

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/kavyaiyer/marketpulse/internal/broker"
	"github.com/kavyaiyer/marketpulse/internal/catalog"
)

type fakeSource struct {
	records []broker.InstrumentRecord
}

func (f fakeSource) FetchInstruments(ctx context.Context) ([]broker.InstrumentRecord, error) {
	return f.records, nil
}

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat := catalog.New()
	src := fakeSource{records: []broker.InstrumentRecord{
		{Token: 738561, Symbol: "RELIANCE", Name: "Reliance Industries"},
		{Token: 2953217, Symbol: "TCS", Name: "Tata Consultancy"},
	}}
	if err := cat.Load(context.Background(), src); err != nil {
		t.Fatalf("catalog.Load() error = %v", err)
	}
	return cat
}

type fakeFeed struct {
	added   []uint32
	removed []uint32
}

func (f *fakeFeed) Add(token uint32) error    { f.added = append(f.added, token); return nil }
func (f *fakeFeed) Remove(token uint32) error { f.removed = append(f.removed, token); return nil }

func TestRegistry_Load_MissingFileIsEmpty(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "subscriptions.json"), newTestCatalog(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(r.Tokens()) != 0 {
		t.Fatalf("Tokens() = %v, want empty", r.Tokens())
	}
}

func TestRegistry_AddResolvesFansOutAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscriptions.json")
	cat := newTestCatalog(t)
	r, err := Load(path, cat)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	feed := &fakeFeed{}
	r.SetFeed(feed)

	if err := r.Add("NSE:RELIANCE"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := r.Add("NSE:TCS"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	tokens := r.Tokens()
	if len(tokens) != 2 || tokens[0] != 738561 || tokens[1] != 2953217 {
		t.Fatalf("Tokens() = %v, want [738561 2953217] (insertion order)", tokens)
	}
	if len(feed.added) != 2 {
		t.Fatalf("feed.added = %v, want 2 entries", feed.added)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading persisted file: %v", err)
	}
	var persisted []string
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("unmarshal persisted file: %v", err)
	}
	if len(persisted) != 2 || persisted[0] != "NSE:RELIANCE" {
		t.Fatalf("persisted = %v, want [NSE:RELIANCE NSE:TCS]", persisted)
	}
}

func TestRegistry_AddDuplicateIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscriptions.json")
	cat := newTestCatalog(t)
	r, _ := Load(path, cat)
	feed := &fakeFeed{}
	r.SetFeed(feed)

	r.Add("NSE:RELIANCE")
	r.Add("NSE:RELIANCE")

	if len(r.Tokens()) != 1 {
		t.Fatalf("Tokens() = %v, want 1 entry after duplicate add", r.Tokens())
	}
	if len(feed.added) != 1 {
		t.Fatalf("feed.added = %v, want exactly 1 fan-out", feed.added)
	}
}

func TestRegistry_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscriptions.json")
	cat := newTestCatalog(t)
	r, _ := Load(path, cat)
	feed := &fakeFeed{}
	r.SetFeed(feed)

	r.Add("NSE:RELIANCE")
	r.Add("NSE:TCS")
	if err := r.Remove("NSE:RELIANCE"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	tokens := r.Tokens()
	if len(tokens) != 1 || tokens[0] != 2953217 {
		t.Fatalf("Tokens() = %v, want [2953217]", tokens)
	}
	if len(feed.removed) != 1 || feed.removed[0] != 738561 {
		t.Fatalf("feed.removed = %v, want [738561]", feed.removed)
	}
}

func TestRegistry_AddUnknownSymbolFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscriptions.json")
	r, _ := Load(path, newTestCatalog(t))
	if err := r.Add("NSE:NOPE"); err == nil {
		t.Fatal("Add() error = nil, want error for unresolvable symbol")
	}
}

func TestRegistry_Load_RoundTripsPersistedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscriptions.json")
	cat := newTestCatalog(t)
	r1, _ := Load(path, cat)
	r1.SetFeed(&fakeFeed{})
	r1.Add("NSE:RELIANCE")
	r1.Add("NSE:TCS")

	r2, err := Load(path, cat)
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if len(r2.Tokens()) != 2 {
		t.Fatalf("Tokens() after reload = %v, want 2 entries", r2.Tokens())
	}
}
