package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkvalley/campus/internal/api"
	"github.com/rkvalley/campus/internal/config"
	"github.com/rkvalley/campus/internal/gateway"
	"github.com/rkvalley/campus/internal/model"
	"github.com/rkvalley/campus/internal/protocol"
	"github.com/rkvalley/campus/internal/realtime"
	"github.com/rkvalley/campus/internal/realtime/realtimetest"
	"github.com/rkvalley/campus/internal/session/storage"
)

type navigations struct {
	mu    sync.Mutex
	paths []string
}

func (n *navigations) Navigate(path string) {
	n.mu.Lock()
	n.paths = append(n.paths, path)
	n.mu.Unlock()
}

func (n *navigations) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

// newBackend serves the two REST routes these tests need.
func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"tok","user":{"_id":"u1","name":"Alice","role":"Student"}}`))
	})
	mux.HandleFunc("/api/admin/dashboard-stats", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(apiOrigin, rtOrigin string) config.Config {
	cfg := config.Default()
	cfg.APIOrigin = apiOrigin
	cfg.RealtimeOrigin = rtOrigin
	cfg.Storage = config.StorageMemory
	return cfg
}

func waitState(t *testing.T, m *realtime.Manager, want realtime.State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want },
		realtimetest.Timeout, 10*time.Millisecond, "manager state %s, want %s", m.State(), want)
}

func TestApp_LoginConnectsAndUnauthorizedDisconnects(t *testing.T) {
	rest := newBackend(t)
	rt := realtimetest.NewServer(t)
	nav := &navigations{}

	a, err := New(context.Background(), testConfig(rest.URL, rt.URL), nil, WithNavigator(nav))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	a.Start(context.Background())
	assert.False(t, a.Sessions.Loading())
	assert.Equal(t, realtime.Disconnected, a.Realtime.State())

	_, err = a.API.Login(context.Background(), api.LoginRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)

	conn := rt.WaitConnected(t)
	assert.Equal(t, "u1", conn.UserID)
	f := rt.NextOfType(t, protocol.TypeUserOnline)
	assert.Equal(t, "u1", f.UserID)
	assert.Equal(t, realtime.Connected, a.Realtime.State())

	_, err = a.API.DashboardStats(context.Background())
	require.Error(t, err)

	assert.Nil(t, a.Sessions.Identity())
	assert.Equal(t, realtime.Disconnected, a.Realtime.State())
	assert.Equal(t, []string{gateway.LoginRoute}, nav.all())
	rt.WaitClosed(t)
}

func TestApp_StartRestoresAndConnects(t *testing.T) {
	rt := realtimetest.NewServer(t)
	st := storage.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, storage.KeyUser, `{"_id":"u9","role":"Faculty"}`))
	require.NoError(t, st.Set(ctx, storage.KeyToken, "tok"))

	a, err := New(ctx, testConfig("http://127.0.0.1:1", rt.URL), nil, WithStorage(st))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	a.Start(ctx)
	assert.Equal(t, model.RoleFaculty, a.Sessions.Identity().Role)
	assert.Equal(t, "u9", rt.WaitConnected(t).UserID)
	waitState(t, a.Realtime, realtime.Connected)

	require.NoError(t, a.Close())
	assert.Equal(t, realtime.Disconnected, a.Realtime.State())
	rt.WaitClosed(t)

	// Close keeps the durable session for the next run.
	v, err := st.Get(ctx, storage.KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "tok", v)
}

func TestApp_UnreachableRealtimeServerLeavesSessionIntact(t *testing.T) {
	rest := newBackend(t)
	dialer := realtime.DialerFunc(func(context.Context, string) (realtime.Conn, error) {
		return nil, assert.AnError
	})

	a, err := New(context.Background(), testConfig(rest.URL, ""), nil, WithDialer(dialer))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	a.Start(context.Background())

	_, err = a.API.Login(context.Background(), api.LoginRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "u1", a.Sessions.Identity().ID)
	assert.Equal(t, realtime.Disconnected, a.Realtime.State())
}

func TestApp_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage = "floppy"
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestApp_FileStorageByDefault(t *testing.T) {
	cfg := config.Default()
	cfg.ConfigDir = t.TempDir()

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	_, ok := a.Storage.(*storage.File)
	assert.True(t, ok)
}
