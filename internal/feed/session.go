// Package feed owns the single WebSocket connection to the broker's
// binary market-data stream: the subscribe/unsubscribe/mode control
// protocol, fixed-interval reconnect, and the ingest path that decodes
// frames and applies them to the snapshot store.
//
// Adapted from the teacher's internal/connection.Client and .Manager,
// the same read-loop-plus-control-channel shape, collapsed from a
// 150-connection pool down to the single session this spec calls for,
// and with the teacher's exponential reconnect replaced by the fixed
// interval this domain's server-side rate limiting requires.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/kavyaiyer/marketpulse/internal/catalog"
	"github.com/kavyaiyer/marketpulse/internal/decode"
	"github.com/kavyaiyer/marketpulse/internal/model"
	"github.com/kavyaiyer/marketpulse/internal/snapshot"
)

// State is one node of the session's connection state machine.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpenUnsubscribed
	StateOpenSubscribed
	StateClosing
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpenUnsubscribed:
		return "open_unsubscribed"
	case StateOpenSubscribed:
		return "open_subscribed"
	case StateClosing:
		return "closing"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// ErrBackoffExhausted is sent on Escalate when the reconnect attempt
// counter reaches MaxBackoffAttempts.
var ErrBackoffExhausted = errors.New("feed: reconnect attempts exhausted")

// Config configures a Session.
type Config struct {
	URL                string // wss://<host>; api_key/access_token appended per credential
	Mode               model.SubscriptionMode
	ConnectTimeout      time.Duration
	ReconnectInterval   time.Duration
	MaxBackoffAttempts int
	ModeSettlePause    time.Duration // pause between subscribe and mode frames
	FirstTickGrace     time.Duration
	ControlRateLimit   rate.Limit // outbound control frames/sec
	ControlBurst       int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                model.SubModeFull,
		ConnectTimeout:      10 * time.Second,
		ReconnectInterval:   5 * time.Second,
		MaxBackoffAttempts: 10,
		ModeSettlePause:    1 * time.Second,
		FirstTickGrace:     60 * time.Second,
		ControlRateLimit:   3,
		ControlBurst:       3,
	}
}

// Session owns one WebSocket connection and drives its state machine.
type Session struct {
	cfg        Config
	dialer     Dialer
	credential func() (apiKey, accessToken string)
	catalog    *catalog.Catalog
	store      *snapshot.Store
	logger     *slog.Logger

	Escalate chan<- error

	mu           sync.Mutex
	state        State
	transport    Transport
	tokens       map[uint32]struct{}
	tokenOrder   []uint32
	attempts     int
	confirmed    bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	limiter      *rate.Limiter
	onDelta      func(model.Delta)

	clock func() time.Time
}

// OnDelta registers a callback invoked with every Delta produced by an
// applied tick (i.e. every tick after the first for its token). Intended
// for the alert engine; must be set before Start and is never called
// concurrently with itself.
func (s *Session) OnDelta(fn func(model.Delta)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDelta = fn
}

// New creates a Session. escalate receives ErrBackoffExhausted when
// reconnection gives up; the session holds no reference back to whatever
// consumes that channel.
func New(cfg Config, dialer Dialer, credential func() (string, string), cat *catalog.Catalog, store *snapshot.Store, escalate chan<- error, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:        cfg,
		dialer:     dialer,
		credential: credential,
		catalog:    cat,
		store:      store,
		logger:     logger,
		Escalate:   escalate,
		state:      StateIdle,
		tokens:     make(map[uint32]struct{}),
		limiter:    rate.NewLimiter(cfg.ControlRateLimit, cfg.ControlBurst),
		clock:      time.Now,
	}
}

// State returns the current state machine node.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start opens the connection and subscribes to the given initial token
// set. Blocks until the session reaches Open-Subscribed or the connect
// timeout/backoff path gives up.
func (s *Session) Start(ctx context.Context, tokens []uint32) error {
	s.mu.Lock()
	s.state = StateConnecting
	s.tokenOrder = append([]uint32(nil), tokens...)
	s.tokens = make(map[uint32]struct{}, len(tokens))
	for _, t := range tokens {
		s.tokens[t] = struct{}{}
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	if err := s.connectAndSubscribe(runCtx); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.runLoop(runCtx)
	return nil
}

// Stop closes the transport and returns the session to Idle. Promptly
// unblocks the frame-reading goroutine; never mutates the token set.
func (s *Session) Stop() {
	s.mu.Lock()
	s.state = StateClosing
	if s.cancel != nil {
		s.cancel()
	}
	transport := s.transport
	s.mu.Unlock()

	if transport != nil {
		transport.Close()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.state = StateIdle
	s.transport = nil
	s.mu.Unlock()
}

// Add subscribes a new token without disturbing the rest of the session.
func (s *Session) Add(token uint32) error {
	s.mu.Lock()
	if _, exists := s.tokens[token]; exists {
		s.mu.Unlock()
		return nil
	}
	s.tokens[token] = struct{}{}
	s.tokenOrder = append(s.tokenOrder, token)
	transport := s.transport
	s.mu.Unlock()

	if transport == nil {
		return nil
	}
	return s.sendSubscribeAndMode(context.Background(), transport, []uint32{token})
}

// Remove unsubscribes a token and purges its snapshot state.
func (s *Session) Remove(token uint32) error {
	s.mu.Lock()
	if _, exists := s.tokens[token]; !exists {
		s.mu.Unlock()
		return nil
	}
	delete(s.tokens, token)
	s.tokenOrder = removeToken(s.tokenOrder, token)
	transport := s.transport
	s.mu.Unlock()

	s.store.Purge(token)

	if transport == nil {
		return nil
	}
	return s.sendControl(context.Background(), transport, controlFrame{Action: "unsubscribe", Value: []uint32{token}})
}

// connectAndSubscribe performs Idle/Connecting -> Open-Unsubscribed ->
// Open-Subscribed, with the fixed 10s connect timeout from the state
// transition table.
func (s *Session) connectAndSubscribe(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	transport, err := s.dialer.Dial(connectCtx, s.dialURL())
	if err != nil {
		s.enterBackoff()
		return fmt.Errorf("feed: dial: %w", err)
	}

	s.mu.Lock()
	s.transport = transport
	s.state = StateOpenUnsubscribed
	s.confirmed = false
	tokens := append([]uint32(nil), s.tokenOrder...)
	s.mu.Unlock()

	if len(tokens) > 0 {
		if err := s.sendSubscribeAndMode(ctx, transport, tokens); err != nil {
			return fmt.Errorf("feed: subscribe: %w", err)
		}
	}

	s.mu.Lock()
	s.state = StateOpenSubscribed
	s.attempts = 0
	s.mu.Unlock()

	return nil
}

func (s *Session) dialURL() string {
	apiKey, accessToken := s.credential()
	return fmt.Sprintf("%s?api_key=%s&access_token=%s", s.cfg.URL, apiKey, accessToken)
}

type controlFrame struct {
	Action string      `json:"a"`
	Value  interface{} `json:"v"`
}

func (s *Session) sendControl(ctx context.Context, transport Transport, frame controlFrame) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("feed: marshal control frame: %w", err)
	}
	return transport.WriteMessage(websocket.TextMessage, data)
}

// sendSubscribeAndMode implements the Open-Unsubscribed -> Open-Subscribed
// transition: send subscribe, wait >= the settle pause, send mode.
func (s *Session) sendSubscribeAndMode(ctx context.Context, transport Transport, tokens []uint32) error {
	if err := s.sendControl(ctx, transport, controlFrame{Action: "subscribe", Value: tokens}); err != nil {
		return err
	}

	select {
	case <-time.After(s.cfg.ModeSettlePause):
	case <-ctx.Done():
		return ctx.Err()
	}

	return s.sendControl(ctx, transport, controlFrame{
		Action: "mode",
		Value:  []interface{}{string(s.cfg.Mode), tokens},
	})
}

// runLoop is the frame-reading goroutine: one long-lived task per open
// connection, per the teacher's readLoop shape.
func (s *Session) runLoop(ctx context.Context) {
	defer s.wg.Done()

	s.mu.Lock()
	transport := s.transport
	s.mu.Unlock()

	if transport == nil {
		return
	}

	transport.SetPingHandler(func(data string) error {
		return transport.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	grace := time.AfterFunc(s.cfg.FirstTickGrace, func() {
		s.mu.Lock()
		confirmed := s.confirmed
		s.mu.Unlock()
		if !confirmed {
			s.logger.Warn("no data frame received within grace period after subscribe", "grace", s.cfg.FirstTickGrace)
		}
	})
	defer grace.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := transport.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.logger.Warn("feed transport closed", "error", err)
			s.enterBackoff()
			s.wg.Add(1)
			go s.reconnectLoop(ctx)
			return
		}

		s.handleFrame(data)
	}
}

func (s *Session) handleFrame(data []byte) {
	frame, err := decode.Decode(data)
	if err != nil {
		s.logger.Warn("frame decode failed", "error", err)
		return
	}

	switch frame.Kind {
	case decode.KindHeartbeat:
		return
	case decode.KindTextControl:
		s.logger.Warn("text control frame from feed", "payload", frame.TextControl)
		return
	}

	if len(frame.Ticks) == 0 {
		return
	}

	s.mu.Lock()
	s.confirmed = true
	s.mu.Unlock()

	now := s.clock()
	s.mu.Lock()
	onDelta := s.onDelta
	s.mu.Unlock()

	for _, tick := range frame.Ticks {
		inst, ok := s.catalog.ByToken(tick.Token)
		if !ok {
			inst = model.Instrument{Token: tick.Token}
		}
		delta, hasDelta := s.store.Apply(tick, inst, now)
		if hasDelta && onDelta != nil {
			onDelta(delta)
		}
	}
}

// enterBackoff transitions any open state to Backoff.
func (s *Session) enterBackoff() {
	s.mu.Lock()
	s.state = StateBackoff
	s.mu.Unlock()
}

// reconnectLoop implements the Backoff -> Connecting -> (Open-Subscribed |
// Backoff) cycle with the spec's fixed (non-exponential) interval.
func (s *Session) reconnectLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectInterval):
		}

		s.mu.Lock()
		s.attempts++
		attempts := s.attempts
		s.mu.Unlock()

		if attempts >= s.cfg.MaxBackoffAttempts {
			s.mu.Lock()
			s.state = StateIdle
			s.mu.Unlock()
			s.logger.Error("reconnect attempts exhausted, escalating", "attempts", attempts)
			if s.Escalate != nil {
				select {
				case s.Escalate <- ErrBackoffExhausted:
				default:
				}
			}
			return
		}

		s.mu.Lock()
		s.state = StateConnecting
		s.mu.Unlock()

		if err := s.connectAndSubscribe(ctx); err != nil {
			s.logger.Warn("reconnect attempt failed", "attempt", attempts, "error", err)
			continue
		}

		s.wg.Add(1)
		go s.runLoop(ctx)
		return
	}
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
