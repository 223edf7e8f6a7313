package sink

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Sink for tests: no network, deterministic handle
// allocation.
type Fake struct {
	mu       sync.Mutex
	messages map[Handle]Message
	order    []Handle
	next     int
	FailSend bool
	FailEdit bool
}

// NewFake creates an empty Fake sink.
func NewFake() *Fake {
	return &Fake{messages: make(map[Handle]Message)}
}

// Send records a new message and returns a deterministic handle.
func (f *Fake) Send(ctx context.Context, channelID, text string) (Handle, error) {
	if f.FailSend {
		return "", fmt.Errorf("sink: fake send failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	h := Handle(fmt.Sprintf("msg-%d", f.next))
	f.messages[h] = Message{Handle: h, Author: "marketpulse", CreatedAt: int64(f.next), Text: text}
	f.order = append(f.order, h)
	return h, nil
}

// Edit overwrites the stored text for handle.
func (f *Fake) Edit(ctx context.Context, handle Handle, text string) error {
	if f.FailEdit {
		return fmt.Errorf("sink: fake edit failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[handle]
	if !ok {
		return fmt.Errorf("sink: unknown handle %q", handle)
	}
	msg.Text = text
	f.messages[handle] = msg
	return nil
}

// FetchRecent returns up to limit messages in insertion order, oldest
// first, matching the ordering the view publisher's handle-recovery path
// expects after it sorts by CreatedAt.
func (f *Fake) FetchRecent(ctx context.Context, channelID string, limit int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	start := 0
	if len(f.order) > limit {
		start = len(f.order) - limit
	}
	out := make([]Message, 0, len(f.order)-start)
	for _, h := range f.order[start:] {
		out = append(out, f.messages[h])
	}
	return out, nil
}

// Text returns the current text stored for handle, for test assertions.
func (f *Fake) Text(handle Handle) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[handle]
	return msg.Text, ok
}
