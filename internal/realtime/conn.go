package realtime

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/pkg/errors"
)

// Conn is one open realtime connection. ReadEvent is only called from the
// manager's read loop; WriteEvent may be called from any goroutine.
type Conn interface {
	ReadEvent() ([]byte, error)
	WriteEvent(frame []byte) error
	Close() error
}

// Dialer opens connections to the realtime server.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) { return f(ctx, url) }

// WSDialer dials websocket connections with gobwas/ws.
type WSDialer struct {
	// Timeout bounds the TCP connect and upgrade handshake. Zero means the
	// caller's context is the only limit.
	Timeout time.Duration
}

// Dial performs the websocket handshake against url.
func (d WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := ws.Dialer{Timeout: d.Timeout}
	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "realtime: dial %s", url)
	}
	return newWSConn(conn, br), nil
}

// newWSConn takes over the bytes the server sent along with the handshake
// response, if any, and returns br to the gobwas pool.
func newWSConn(conn net.Conn, br *bufio.Reader) *wsConn {
	c := &wsConn{conn: conn, src: conn}
	if br == nil {
		return c
	}
	buffered, _ := br.Peek(br.Buffered())
	head := append([]byte(nil), buffered...)
	ws.PutReader(br)
	c.src = io.MultiReader(bytes.NewReader(head), conn)
	return c
}

// wsConn serializes writes with a mutex so concurrent actions, and pongs sent
// from the read loop, never interleave frame bytes.
type wsConn struct {
	conn      net.Conn
	src       io.Reader
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// ReadEvent returns the next text frame, answering pings along the way.
func (c *wsConn) ReadEvent() ([]byte, error) {
	for {
		msgs, err := wsutil.ReadMessage(c.src, ws.StateClientSide, nil)
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			switch m.OpCode {
			case ws.OpText:
				return m.Payload, nil
			case ws.OpPing:
				if err := c.write(ws.OpPong, m.Payload); err != nil {
					return nil, err
				}
			case ws.OpClose:
				_ = c.write(ws.OpClose, nil)
				return nil, io.EOF
			}
		}
	}
}

func (c *wsConn) WriteEvent(frame []byte) error {
	return c.write(ws.OpText, frame)
}

func (c *wsConn) write(op ws.OpCode, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteClientMessage(c.conn, op, payload)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
