// Package messaging mirrors realtime chat events onto NATS so other local
// tools (loggers, notifiers, dashboards) can observe a session without
// opening a second websocket. It handles connection lifecycle, subject naming
// and the event envelope.
package messaging

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rkvalley/campus/internal/logging"
	"github.com/rkvalley/campus/internal/metrics"
)

// SubjectEvents is the root of every relayed subject:
// campus.events.<user_id>.<event_type>.
const SubjectEvents = "campus.events"

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn   *nats.Conn
	logger *zap.Logger
	mu     sync.Mutex
	subs   map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults. Each process gets a distinct
// client name.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "campus-" + uuid.NewString()[:8],
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig, logger *zap.Logger) (*NATSClient, error) {
	log := logging.OrNop(logger).Named("nats")
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected", zap.Error(err))
			} else {
				log.Info("disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info("connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}

	log.Info("connected", zap.String("url", nc.ConnectedUrl()), zap.String("name", config.Name))

	return &NATSClient{
		conn:   nc,
		logger: log,
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return errors.Wrapf(err, "nats subscribe %s", subject)
	}

	c.mu.Lock()
	if old, ok := c.subs[subject]; ok {
		_ = old.Unsubscribe()
	}
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// SubscribeEvents delivers relayed events for userID, or for every user when
// userID is empty. Messages that are not events are skipped.
func (c *NATSClient) SubscribeEvents(userID string, handler func(Event)) error {
	subject := SubjectEvents + ".>"
	if userID != "" {
		subject = SubjectEvents + "." + token(userID) + ".>"
	}
	return c.Subscribe(subject, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			c.logger.Debug("skipping non-event message", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		handler(ev)
	})
}

// Unsubscribe removes and unsubscribes from a specific subject.
func (c *NATSClient) Unsubscribe(subject string) error {
	c.mu.Lock()
	sub, ok := c.subs[subject]
	if !ok {
		c.mu.Unlock()
		return errors.Errorf("nats: no subscription for subject %s", subject)
	}
	delete(c.subs, subject)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return errors.Wrapf(err, "nats unsubscribe %s", subject)
	}
	return nil
}

// Flush blocks until the server has processed everything published so far.
func (c *NATSClient) Flush() error {
	return c.conn.Flush()
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.logger.Warn("drain subscription", zap.String("subject", subject), zap.Error(err))
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("connection drain", zap.Error(err))
	}
}

// Event is the payload published for every inbound realtime event.
type Event struct {
	UserID string          `json:"user_id"`      // identity the connection belongs to
	Type   string          `json:"type"`         // realtime event type, e.g. "newMessage"
	Frame  json.RawMessage `json:"frame"`        // the websocket frame as received
	Ts     int64           `json:"ts,omitempty"` // unix millis when relayed
}

// Publisher is the part of NATSClient the relay needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Relay forwards realtime events to a Publisher. It satisfies
// realtime.Relay.
type Relay struct {
	pub    Publisher
	logger *zap.Logger
	now    func() time.Time
}

// NewRelay returns a relay publishing through pub.
func NewRelay(pub Publisher, logger *zap.Logger) *Relay {
	return &Relay{
		pub:    pub,
		logger: logging.OrNop(logger).Named("relay"),
		now:    time.Now,
	}
}

// Forward publishes one event. A frame that is not valid JSON is wrapped as a
// JSON string so the envelope stays decodable.
func (r *Relay) Forward(userID, eventType string, frame []byte) error {
	raw := json.RawMessage(frame)
	if !json.Valid(frame) {
		quoted, _ := json.Marshal(string(frame))
		raw = quoted
	}
	data, err := json.Marshal(Event{
		UserID: userID,
		Type:   eventType,
		Frame:  raw,
		Ts:     r.now().UnixMilli(),
	})
	if err != nil {
		metrics.RelayEvents.WithLabelValues("failed").Inc()
		return errors.Wrap(err, "relay: encode event")
	}

	subject := EventSubject(userID, eventType)
	if err := r.pub.Publish(subject, data); err != nil {
		metrics.RelayEvents.WithLabelValues("failed").Inc()
		r.logger.Warn("publish failed", zap.String("subject", subject), zap.Error(err))
		return errors.Wrapf(err, "relay: publish %s", subject)
	}
	metrics.RelayEvents.WithLabelValues("published").Inc()
	return nil
}

// EventSubject names the subject an event for userID is published on.
func EventSubject(userID, eventType string) string {
	return SubjectEvents + "." + token(userID) + "." + token(eventType)
}

// token makes s usable as a single subject token: separators, wildcards and
// whitespace become '_'.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
