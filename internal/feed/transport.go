package feed

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the subset of *websocket.Conn the session needs. Abstracted
// so tests can drive the state machine against an in-memory fake instead
// of a real socket.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetPingHandler(h func(appData string) error)
	SetPongHandler(h func(appData string) error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens a Transport. Satisfied by GorillaDialer in production.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// GorillaDialer dials with gorilla/websocket, the transport library the
// teacher's internal/connection.Client is built on.
type GorillaDialer struct {
	HandshakeTimeout time.Duration
}

// Dial opens a WebSocket connection.
func (d GorillaDialer) Dial(ctx context.Context, url string) (Transport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		return nil, err
	}
	return conn, nil
}
