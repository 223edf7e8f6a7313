// Package login defines the external headless-browser login automation as
// a capability abstraction. The automation itself is out of scope (spec
// §1 Non-goals), this package ships only the interface and a fake
// implementation for tests and for wiring the rotator end to end.
package login

import (
	"context"
	"time"

	"github.com/kavyaiyer/marketpulse/internal/credential"
)

// Result is what the login collaborator reports back to the rotator.
type Result struct {
	Success    bool
	Credential credential.Credential
	Err        error
	Duration   time.Duration
}

// Collaborator performs a fresh login and returns a new credential. A real
// implementation would drive a headless browser through the broker's TOTP
// login flow; this repo never implements that, per the Non-goal framing.
type Collaborator interface {
	Login(ctx context.Context) (Result, error)
}

// Fake is a Collaborator test double. Each call to Login returns the
// configured Result, or a zero-value failure if none was queued.
type Fake struct {
	Next func(ctx context.Context) (Result, error)
	Calls int
}

// NewFake creates a Fake that always succeeds with cred until reconfigured.
func NewFake(cred credential.Credential) *Fake {
	f := &Fake{}
	f.Next = func(ctx context.Context) (Result, error) {
		return Result{Success: true, Credential: cred, Duration: time.Millisecond}, nil
	}
	return f
}

// Login records the call and delegates to Next.
func (f *Fake) Login(ctx context.Context) (Result, error) {
	f.Calls++
	if f.Next == nil {
		return Result{}, nil
	}
	return f.Next(ctx)
}
