// Package realtimetest runs an in-process chat server that speaks the realtime
// protocol, for tests of code that drives a realtime.Manager.
package realtimetest

import (
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/rkvalley/campus/internal/protocol"
)

// Timeout bounds every wait helper.
const Timeout = 2 * time.Second

// Frame is one event received from a client.
type Frame struct {
	UserID   string
	Envelope protocol.Envelope
}

// Conn is the server side of one client connection.
type Conn struct {
	UserID  string
	conn    net.Conn
	writeMu sync.Mutex
}

// Send writes one event to the client.
func (c *Conn) Send(eventType string, payload interface{}) error {
	frame, err := protocol.Encode(eventType, payload)
	if err != nil {
		return err
	}
	return c.SendRaw(frame)
}

// SendRaw writes a frame to the client unchanged.
func (c *Conn) SendRaw(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.conn, ws.OpText, frame)
}

// Close drops the connection from the server side.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Server upgrades /ws?userId=<id> and records what clients send.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	live      map[*Conn]struct{}
	upgrades  int
	connected chan *Conn
	closed    chan *Conn
	received  chan Frame
}

// NewServer starts a server that is shut down when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		live:      make(map[*Conn]struct{}),
		connected: make(chan *Conn, 64),
		closed:    make(chan *Conn, 64),
		received:  make(chan Frame, 256),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(func() {
		s.mu.Lock()
		for c := range s.live {
			c.conn.Close()
		}
		s.mu.Unlock()
		s.Server.Close()
	})
	return s
}

// Endpoint returns the websocket URL for userID.
func (s *Server) Endpoint(userID string) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?userId=" + url.QueryEscape(userID)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}

	c := &Conn{UserID: userID, conn: conn}
	s.mu.Lock()
	s.live[c] = struct{}{}
	s.upgrades++
	s.mu.Unlock()
	s.connected <- c

	go s.readLoop(c)
}

func (s *Server) readLoop(c *Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.live, c)
		s.mu.Unlock()
		c.conn.Close()
		s.closed <- c
	}()
	for {
		data, err := wsutil.ReadClientText(c.conn)
		if err != nil {
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			continue
		}
		s.received <- Frame{UserID: c.UserID, Envelope: env}
	}
}

// Upgrades returns how many connections were accepted in total.
func (s *Server) Upgrades() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upgrades
}

// Live returns how many connections are currently open.
func (s *Server) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// WaitConnected returns the next accepted connection.
func (s *Server) WaitConnected(t testing.TB) *Conn {
	t.Helper()
	select {
	case c := <-s.connected:
		return c
	case <-time.After(Timeout):
		t.Fatal("realtimetest: no client connected")
		return nil
	}
}

// WaitClosed returns the next connection whose client went away.
func (s *Server) WaitClosed(t testing.TB) *Conn {
	t.Helper()
	select {
	case c := <-s.closed:
		return c
	case <-time.After(Timeout):
		t.Fatal("realtimetest: no connection closed")
		return nil
	}
}

// Next returns the next frame any client sent.
func (s *Server) Next(t testing.TB) Frame {
	t.Helper()
	select {
	case f := <-s.received:
		return f
	case <-time.After(Timeout):
		t.Fatal("realtimetest: no frame received")
		return Frame{}
	}
}

// NextOfType skips frames until one of eventType arrives.
func (s *Server) NextOfType(t testing.TB, eventType string) Frame {
	t.Helper()
	deadline := time.After(Timeout)
	for {
		select {
		case f := <-s.received:
			if f.Envelope.Type == eventType {
				return f
			}
		case <-deadline:
			t.Fatalf("realtimetest: no %q frame received", eventType)
			return Frame{}
		}
	}
}

// AssertSilent fails if any frame arrives within d.
func (s *Server) AssertSilent(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case f := <-s.received:
		t.Fatalf("realtimetest: unexpected %q frame from %s", f.Envelope.Type, f.UserID)
	case <-time.After(d):
	}
}
