package credential

import (
	"context"
	"path/filepath"
	"testing"
)

func TestHolder_SetPersistsAndCurrentReflectsIt(t *testing.T) {
	store := FileStore{Path: filepath.Join(t.TempDir(), "credential.json")}
	h := NewHolder(store)

	if err := h.Set(context.Background(), Credential{APIKey: "k1", AccessToken: "t1"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	key, token := h.APIKeyAndToken()
	if key != "k1" || token != "t1" {
		t.Fatalf("APIKeyAndToken() = (%q, %q), want (k1, t1)", key, token)
	}

	h2 := NewHolder(store)
	if err := h2.LoadFromStore(context.Background()); err != nil {
		t.Fatalf("LoadFromStore() error = %v", err)
	}
	if h2.Current() != (Credential{APIKey: "k1", AccessToken: "t1"}) {
		t.Fatalf("Current() after reload = %+v", h2.Current())
	}
}

func TestFileStore_Load_MissingFileReturnsZeroValue(t *testing.T) {
	store := FileStore{Path: filepath.Join(t.TempDir(), "nope.json")}
	cred, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cred != (Credential{}) {
		t.Fatalf("Load() on missing file = %+v, want zero value", cred)
	}
}
