package realtime

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/rkvalley/campus/internal/session"
)

// fakeConn is an in-memory Conn. Frames pushed to in are returned by
// ReadEvent; gate, when open, lets the test hold the read loop.
type fakeConn struct {
	in       chan []byte
	gate     chan struct{}
	closed   chan struct{}
	once     sync.Once
	mu       sync.Mutex
	written  [][]byte
	writeErr error
}

func newFakeConn() *fakeConn {
	gate := make(chan struct{})
	close(gate)
	return &fakeConn{
		in:     make(chan []byte, 16),
		gate:   gate,
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadEvent() ([]byte, error) {
	<-c.gate
	select {
	case f := <-c.in:
		return f, nil
	default:
	}
	select {
	case f := <-c.in:
		return f, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteEvent(frame []byte) error {
	select {
	case <-c.closed:
		return errors.New("fake: write on closed connection")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, frame)
	return nil
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands out queued connections and records dialed URLs.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	urls  []string
	err   error
}

func (d *fakeDialer) Dial(_ context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn()
	if len(d.conns) > 0 {
		c, d.conns = d.conns[0], d.conns[1:]
	}
	return c, nil
}

func (d *fakeDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

type forwarded struct {
	userID, eventType string
}

type recordingRelay struct {
	mu  sync.Mutex
	got []forwarded
}

func (r *recordingRelay) Forward(userID, eventType string, _ []byte) error {
	r.mu.Lock()
	r.got = append(r.got, forwarded{userID, eventType})
	r.mu.Unlock()
	return nil
}

func (r *recordingRelay) events() []forwarded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]forwarded(nil), r.got...)
}

func fakeEndpoint(userID string) string { return "ws://fake/ws?userId=" + userID }

// racingSource reports a session from Current, but a logout is delivered to
// its observer while Current is running, so the returned session is stale.
type racingSource struct {
	stale    session.Session
	observer session.Observer
}

func (r *racingSource) Subscribe(fn session.Observer) func() {
	r.observer = fn
	return func() { r.observer = nil }
}

func (r *racingSource) Current() (session.Session, bool) {
	if r.observer != nil {
		r.observer(session.Session{}, false)
	}
	return r.stale, true
}
