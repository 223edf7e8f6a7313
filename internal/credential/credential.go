// Package credential holds the broker's bearer access token and the API
// key it pairs with, swapped atomically on rotation and persisted through
// a pluggable store so a restart doesn't require a fresh login.
//
// Adapted from the teacher's internal/auth.Credentials, a small loaded
// struct handed to request signers, generalized from an RSA-PSS signing
// key to an opaque bearer string pair, since this broker's WebSocket and
// REST auth is query-param/header based, not request-signed.
package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
)

// Credential is the broker's opaque bearer pair.
type Credential struct {
	APIKey      string `json:"api_key"`
	AccessToken string `json:"access_token"`
}

// Store persists a Credential across process restarts.
type Store interface {
	Load(ctx context.Context) (Credential, error)
	Save(ctx context.Context, cred Credential) error
}

// Holder is the in-memory, concurrency-safe current credential. Readers
// (the feed session's dialURL, the broker client's Authorization header)
// call Current(); the rotator calls Set() after a successful rotation.
type Holder struct {
	current atomic.Value // Credential
	store   Store
}

// NewHolder creates a Holder backed by store. Load is not called
// automatically, the caller decides whether to seed from the store or
// from environment variables at startup.
func NewHolder(store Store) *Holder {
	h := &Holder{store: store}
	h.current.Store(Credential{})
	return h
}

// LoadFromStore seeds the holder from its backing store.
func (h *Holder) LoadFromStore(ctx context.Context) error {
	cred, err := h.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("credential: load: %w", err)
	}
	h.current.Store(cred)
	return nil
}

// Current returns the active credential.
func (h *Holder) Current() Credential {
	return h.current.Load().(Credential)
}

// APIKeyAndToken is a convenience accessor matching the shape feed.Session
// expects from its credential function.
func (h *Holder) APIKeyAndToken() (string, string) {
	cred := h.Current()
	return cred.APIKey, cred.AccessToken
}

// Set atomically swaps in a new credential and persists it.
func (h *Holder) Set(ctx context.Context, cred Credential) error {
	h.current.Store(cred)
	if err := h.store.Save(ctx, cred); err != nil {
		return fmt.Errorf("credential: save: %w", err)
	}
	return nil
}

// FileStore persists a Credential as JSON on a local path. Default Store
// implementation; a deployment with a secrets manager can substitute its
// own Store.
type FileStore struct {
	Path string
}

// Load reads the credential from Path. A missing file returns the zero
// Credential without error, the expected first-run state before any
// login has occurred.
func (f FileStore) Load(ctx context.Context) (Credential, error) {
	raw, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return Credential{}, nil
	}
	if err != nil {
		return Credential{}, fmt.Errorf("credential: read %s: %w", f.Path, err)
	}
	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return Credential{}, fmt.Errorf("credential: parse %s: %w", f.Path, err)
	}
	return cred, nil
}

// Save writes the credential to Path as JSON.
func (f FileStore) Save(ctx context.Context, cred Credential) error {
	raw, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("credential: marshal: %w", err)
	}
	if err := os.WriteFile(f.Path, raw, 0o600); err != nil {
		return fmt.Errorf("credential: write %s: %w", f.Path, err)
	}
	return nil
}
