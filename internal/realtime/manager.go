// Package realtime keeps at most one websocket connection to the chat server
// for the logged-in identity. It owns the shared presence set, message log and
// typing map, and exposes the outbound chat actions.
package realtime

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rkvalley/campus/internal/logging"
	"github.com/rkvalley/campus/internal/metrics"
	"github.com/rkvalley/campus/internal/model"
	"github.com/rkvalley/campus/internal/protocol"
	"github.com/rkvalley/campus/internal/session"
)

// State is the connection lifecycle state.
type State int

// Connection states.
const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by SetIdentity after Close.
var ErrClosed = errors.New("realtime: manager closed")

// EndpointFunc builds the websocket URL for a user id.
type EndpointFunc func(userID string) string

// Relay receives a copy of every decoded inbound event. It is called from the
// read loop and must not call back into the manager's lifecycle methods.
type Relay interface {
	Forward(userID, eventType string, frame []byte) error
}

// SessionSource is the part of the session store the manager follows.
type SessionSource interface {
	Subscribe(fn session.Observer) (unsubscribe func())
	Current() (session.Session, bool)
}

// Option configures a Manager.
type Option func(*Manager)

// WithRelay mirrors inbound events to r.
func WithRelay(r Relay) Option {
	return func(m *Manager) { m.relay = r }
}

// Manager is the connection manager. All shared state is mutated only by its
// own methods and its read loop, under mu.
type Manager struct {
	dialer   Dialer
	endpoint EndpointFunc
	relay    Relay
	logger   *zap.Logger

	// lifecycle serializes SetIdentity and Close so teardown and setup of
	// consecutive identities never overlap.
	lifecycle sync.Mutex

	mu       sync.Mutex
	state    State
	identity string
	gen      uint64 // bumped on every teardown; stale read loops compare against it
	conn     Conn
	loopDone chan struct{}
	presence []model.Identity
	messages []model.Message
	typing   map[string]bool
	subs     map[*Subscription]struct{}
	closed   bool
}

// NewManager returns a disconnected manager. endpoint maps a user id to the
// websocket URL to dial.
func NewManager(dialer Dialer, endpoint EndpointFunc, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		dialer:   dialer,
		endpoint: endpoint,
		logger:   logging.OrNop(logger).Named("realtime"),
		typing:   make(map[string]bool),
		subs:     make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	metrics.RealtimeState.Set(float64(Disconnected))
	return m
}

// Bind follows src: every session transition is translated into SetIdentity.
// The current session, if any, is applied immediately unless a transition
// was delivered while it was being read. The returned function stops
// following.
func (m *Manager) Bind(ctx context.Context, src SessionSource) (unbind func()) {
	var (
		mu          sync.Mutex
		transitions uint64
	)
	apply := func(s session.Session, present bool) {
		id := ""
		if present {
			id = s.Identity.ID
		}
		if err := m.SetIdentity(ctx, id); err != nil && !errors.Is(err, ErrClosed) {
			m.logger.Warn("realtime connection not established",
				zap.String("user_id", id),
				zap.Error(err))
		}
	}
	unbind = src.Subscribe(func(s session.Session, present bool) {
		mu.Lock()
		defer mu.Unlock()
		transitions++
		apply(s, present)
	})

	mu.Lock()
	seen := transitions
	mu.Unlock()

	s, ok := src.Current()

	mu.Lock()
	defer mu.Unlock()
	// A newer transition already reached the observer; s may be stale.
	if ok && transitions == seen {
		apply(s, true)
	}
	return unbind
}

// SetIdentity makes the connection match userID. The same identity with a live
// connection is a no-op. Any other value tears the current connection down
// and, when userID is non-empty, opens a new one. A dial failure leaves the
// manager Disconnected and is returned.
func (m *Manager) SetIdentity(ctx context.Context, userID string) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if userID == m.identity && (userID == "" || m.state != Disconnected) {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.teardown(userID)
	if userID == "" {
		return nil
	}
	return m.open(ctx, userID)
}

// teardown closes the current connection, waits for its read loop to exit and
// clears shared state. next becomes the tracked identity.
func (m *Manager) teardown(next string) {
	m.mu.Lock()
	conn, done, prev := m.conn, m.loopDone, m.identity
	m.gen++
	m.conn, m.loopDone = nil, nil
	m.identity = next
	m.setStateLocked(Disconnected)
	m.clearLocked()
	m.publishLocked()
	m.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		m.logger.Debug("close connection", zap.Error(err))
	}
	if done != nil {
		<-done
	}
	m.logger.Info("disconnected", zap.String("user_id", prev))
}

func (m *Manager) open(ctx context.Context, userID string) error {
	m.mu.Lock()
	gen := m.gen
	m.setStateLocked(Connecting)
	m.publishLocked()
	m.mu.Unlock()

	url := m.endpoint(userID)
	conn, err := m.dialer.Dial(ctx, url)
	if err != nil {
		m.mu.Lock()
		if m.gen == gen {
			m.setStateLocked(Disconnected)
			m.publishLocked()
		}
		m.mu.Unlock()
		return errors.Wrapf(err, "realtime: connect %s", userID)
	}

	done := make(chan struct{})
	m.mu.Lock()
	if m.gen != gen || m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	m.conn, m.loopDone = conn, done
	m.setStateLocked(Connected)
	m.publishLocked()
	m.mu.Unlock()

	metrics.RealtimeConnects.Inc()
	m.logger.Info("connected", zap.String("user_id", userID), zap.String("url", url))
	go m.readLoop(gen, userID, conn, done)

	m.write(protocol.TypeUserOnline, userID)
	return nil
}

// readLoop reads frames until the connection fails. Events from a connection
// that has since been torn down are discarded.
func (m *Manager) readLoop(gen uint64, userID string, conn Conn, done chan struct{}) {
	defer close(done)
	for {
		frame, err := conn.ReadEvent()
		if err != nil {
			m.handleClosed(gen, userID, err)
			return
		}
		m.handleFrame(gen, userID, frame)
	}
}

func (m *Manager) handleFrame(gen uint64, userID string, frame []byte) {
	eventType, event, err := protocol.ParseServerEvent(frame)
	if err != nil {
		metrics.RealtimeEvents.WithLabelValues("invalid").Inc()
		m.logger.Warn("skipping inbound frame",
			zap.String("type", eventType),
			zap.Error(err))
		return
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	switch ev := event.(type) {
	case []model.Identity:
		m.presence = ev
	case model.Message:
		m.messages = append(m.messages, ev)
	case []model.Message:
		m.messages = ev
	case model.TypingEvent:
		m.typing[ev.SenderID] = ev.IsTyping
	}
	m.publishLocked()
	m.mu.Unlock()

	metrics.RealtimeEvents.WithLabelValues(eventType).Inc()
	if m.relay != nil {
		if err := m.relay.Forward(userID, eventType, frame); err != nil {
			m.logger.Debug("relay forward", zap.String("type", eventType), zap.Error(err))
		}
	}
}

// handleClosed moves to Disconnected when the live connection drops. There is
// no reconnect; a new session transition is needed to connect again.
func (m *Manager) handleClosed(gen uint64, userID string, cause error) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.gen++
	m.conn, m.loopDone = nil, nil
	m.setStateLocked(Disconnected)
	m.clearLocked()
	m.publishLocked()
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	metrics.RealtimeEvents.WithLabelValues("closed").Inc()
	m.logger.Warn("connection lost", zap.String("user_id", userID), zap.Error(cause))
}

// ---------------------------------------------------------------------------
// Outbound actions
// ---------------------------------------------------------------------------

// Send asks the server to deliver body to receiverID. Dropped silently when
// there is no connection.
func (m *Manager) Send(receiverID, body string) {
	m.action(protocol.TypeSendMessage, func(self string) interface{} {
		return protocol.SendMessagePayload{SenderID: self, ReceiverID: receiverID, Message: body}
	})
}

// RequestHistory asks for the conversation with otherID. The answer replaces
// the message log.
func (m *Manager) RequestHistory(otherID string) {
	m.action(protocol.TypeGetMessageHistory, func(self string) interface{} {
		return protocol.HistoryRequestPayload{UserID: self, OtherUserID: otherID}
	})
}

// StartTyping tells receiverID that the user is typing.
func (m *Manager) StartTyping(receiverID string) {
	m.action(protocol.TypeTypingStart, func(self string) interface{} {
		return protocol.TypingPayload{SenderID: self, ReceiverID: receiverID}
	})
}

// StopTyping tells receiverID that the user stopped typing.
func (m *Manager) StopTyping(receiverID string) {
	m.action(protocol.TypeTypingStop, func(self string) interface{} {
		return protocol.TypingPayload{SenderID: self, ReceiverID: receiverID}
	})
}

func (m *Manager) action(eventType string, payload func(self string) interface{}) {
	m.mu.Lock()
	self, ok := m.identity, m.state == Connected && m.conn != nil
	m.mu.Unlock()
	if !ok || self == "" {
		metrics.RealtimeActions.WithLabelValues(eventType, "dropped").Inc()
		m.logger.Debug("action dropped, not connected", zap.String("action", eventType))
		return
	}
	m.write(eventType, payload(self))
}

// write encodes and sends one event. Failures are logged and counted only.
func (m *Manager) write(eventType string, payload interface{}) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		metrics.RealtimeActions.WithLabelValues(eventType, "dropped").Inc()
		return
	}

	frame, err := protocol.Encode(eventType, payload)
	if err != nil {
		metrics.RealtimeActions.WithLabelValues(eventType, "failed").Inc()
		m.logger.Error("encode action", zap.String("action", eventType), zap.Error(err))
		return
	}
	if err := conn.WriteEvent(frame); err != nil {
		metrics.RealtimeActions.WithLabelValues(eventType, "failed").Inc()
		m.logger.Warn("write action", zap.String("action", eventType), zap.Error(err))
		return
	}
	metrics.RealtimeActions.WithLabelValues(eventType, "sent").Inc()
}

// ---------------------------------------------------------------------------
// Read access
// ---------------------------------------------------------------------------

// State returns the connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Identity returns the user id the manager is tracking, or "".
func (m *Manager) Identity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Presence returns a copy of the online users.
func (m *Manager) Presence() []model.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Identity(nil), m.presence...)
}

// Messages returns a copy of the message log.
func (m *Manager) Messages() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Message(nil), m.messages...)
}

// Typing returns a copy of the typing map.
func (m *Manager) Typing() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyTyping(m.typing)
}

// IsOnline reports whether userID is in the presence set.
func (m *Manager) IsOnline(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.presence {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// Snapshot returns the current state as one value.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Close tears the connection down and closes every subscription. The manager
// cannot be reused.
func (m *Manager) Close() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.teardown("")

	m.mu.Lock()
	m.closed = true
	subs := m.subs
	m.subs = make(map[*Subscription]struct{})
	m.mu.Unlock()

	for s := range subs {
		s.close()
	}
	return nil
}

// ---------------------------------------------------------------------------
// helpers, called with mu held
// ---------------------------------------------------------------------------

func (m *Manager) setStateLocked(s State) {
	m.state = s
	metrics.RealtimeState.Set(float64(s))
}

func (m *Manager) clearLocked() {
	m.presence = nil
	m.messages = nil
	m.typing = make(map[string]bool)
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		State:    m.state,
		Identity: m.identity,
		Presence: append([]model.Identity(nil), m.presence...),
		Messages: append([]model.Message(nil), m.messages...),
		Typing:   copyTyping(m.typing),
	}
}

func (m *Manager) publishLocked() {
	if len(m.subs) == 0 {
		return
	}
	snap := m.snapshotLocked()
	for s := range m.subs {
		s.offer(snap)
	}
}

func copyTyping(src map[string]bool) map[string]bool {
	out := make(map[string]bool, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
