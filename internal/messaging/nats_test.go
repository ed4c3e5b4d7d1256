package messaging

import (
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkvalley/campus/internal/metrics"
	"github.com/rkvalley/campus/internal/protocol"
)

type published struct {
	subject string
	data    []byte
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{subject, data})
	return nil
}

func fixedClock(r *Relay) {
	r.now = func() time.Time { return time.UnixMilli(1700000000000) }
}

func TestEventSubject(t *testing.T) {
	cases := []struct {
		user, event, want string
	}{
		{"u1", protocol.TypeNewMessage, "campus.events.u1.newMessage"},
		{"a.b", "x y", "campus.events.a_b.x_y"},
		{"*", ">", "campus.events._._"},
		{"", "typing", "campus.events._.typing"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, EventSubject(tc.user, tc.event))
	}
}

func TestRelay_Forward(t *testing.T) {
	pub := &recordingPublisher{}
	r := NewRelay(pub, nil)
	fixedClock(r)

	frame := []byte(`{"type":"newMessage","data":{"message":"hi"}}`)
	require.NoError(t, r.Forward("u1", protocol.TypeNewMessage, frame))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "campus.events.u1.newMessage", pub.msgs[0].subject)

	var ev Event
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &ev))
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, protocol.TypeNewMessage, ev.Type)
	assert.JSONEq(t, string(frame), string(ev.Frame))
	assert.Equal(t, int64(1700000000000), ev.Ts)
}

func TestRelay_WrapsInvalidFrames(t *testing.T) {
	pub := &recordingPublisher{}
	r := NewRelay(pub, nil)

	require.NoError(t, r.Forward("u1", "invalid", []byte("not json")))

	var ev Event
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &ev))
	var s string
	require.NoError(t, json.Unmarshal(ev.Frame, &s))
	assert.Equal(t, "not json", s)
}

func TestRelay_PublishFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats down")}
	r := NewRelay(pub, nil)
	before := testutil.ToFloat64(metrics.RelayEvents.WithLabelValues("failed"))

	err := r.Forward("u1", "typing", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "campus.events.u1.typing")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RelayEvents.WithLabelValues("failed")))
}

// newTestNATS connects to a local NATS server. Tests that call this helper
// require one on NATS_URL or the default port.
func newTestNATS(t *testing.T) *NATSClient {
	t.Helper()
	cfg := DefaultNATSConfig()
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.URL = url
	}
	cfg.MaxReconnects = 0
	c, err := NewNATSClient(cfg, nil)
	if err != nil {
		t.Skipf("nats not available: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestNATS_RelayRoundTrip(t *testing.T) {
	c := newTestNATS(t)

	got := make(chan Event, 4)
	require.NoError(t, c.SubscribeEvents("u1", func(ev Event) { got <- ev }))
	require.NoError(t, c.Flush())

	r := NewRelay(c, nil)
	require.NoError(t, r.Forward("u2", "typing", []byte(`{"type":"typing"}`)))
	require.NoError(t, r.Forward("u1", "onlineUsers", []byte(`{"type":"onlineUsers","data":[]}`)))
	require.NoError(t, c.Flush())

	select {
	case ev := <-got:
		assert.Equal(t, "u1", ev.UserID)
		assert.Equal(t, "onlineUsers", ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no event relayed")
	}
	select {
	case ev := <-got:
		t.Fatalf("event for another user delivered: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNATS_Unsubscribe(t *testing.T) {
	c := newTestNATS(t)

	require.NoError(t, c.SubscribeEvents("", func(Event) {}))
	require.NoError(t, c.Unsubscribe(SubjectEvents+".>"))
	assert.Error(t, c.Unsubscribe(SubjectEvents+".>"))
}
