// Package sink abstracts the chat-platform message channel the view
// publisher and alert engine write into: create, edit, and fetch-recent
// over a fixed channel, with no assumption about which chat platform
// backs it.
//
// Grounded on the teacher's internal/api.Client options pattern, and on
// spec.md's "dynamic dispatch" design note, sink, catalog, and the login
// collaborator are external collaborators with multiple plausible
// implementations, so each is a small interface rather than a
// concrete type import.
package sink

import "context"

// Handle is an opaque reference to a previously sent message, usable for
// in-place edits.
type Handle string

// Message is one entry returned by FetchRecent.
type Message struct {
	Handle    Handle
	Author    string
	CreatedAt int64 // unix seconds
	Text      string
}

// Sink is the capability abstraction every chat-platform backend
// implements.
type Sink interface {
	// Send posts text to channelID and returns a handle for later edits.
	Send(ctx context.Context, channelID, text string) (Handle, error)

	// Edit replaces the text of a previously sent message in place.
	Edit(ctx context.Context, handle Handle, text string) error

	// FetchRecent returns up to limit of the most recent messages in
	// channelID, for handle-recovery on restart.
	FetchRecent(ctx context.Context, channelID string, limit int) ([]Message, error)
}
