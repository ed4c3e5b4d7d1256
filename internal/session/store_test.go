package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkvalley/campus/internal/model"
	"github.com/rkvalley/campus/internal/session/storage"
)

var alice = model.Identity{ID: "u1", Name: "Alice", Username: "alice", Role: model.RoleStudent}

// failingStorage wraps a backend and fails Set for one key.
type failingStorage struct {
	storage.Storage
	failKey string
}

func (f *failingStorage) Set(ctx context.Context, key, value string) error {
	if key == f.failKey {
		return errors.New("disk full")
	}
	return f.Storage.Set(ctx, key, value)
}

type transition struct {
	id      string
	present bool
}

func record(s *Store) *[]transition {
	var got []transition
	s.Subscribe(func(sess Session, present bool) {
		got = append(got, transition{id: sess.Identity.ID, present: present})
	})
	return &got
}

// ---------------------------------------------------------------------------
// Login / Logout
// ---------------------------------------------------------------------------

func TestLoginLogout_IdentityAndCredentialTogether(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	s := New(st, nil)

	assert.True(t, s.Loading())
	assert.Nil(t, s.Identity())
	assert.Empty(t, s.Credential())

	require.NoError(t, s.Login(ctx, alice, "tok"))
	assert.False(t, s.Loading())
	require.NotNil(t, s.Identity())
	assert.Equal(t, "u1", s.Identity().ID)
	assert.Equal(t, "tok", s.Credential())

	raw, err := st.Get(ctx, storage.KeyUser)
	require.NoError(t, err)
	assert.Contains(t, raw, `"_id":"u1"`)
	tok, err := st.Get(ctx, storage.KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)

	require.NoError(t, s.Logout(ctx))
	_, ok := s.Current()
	assert.False(t, ok)
	assert.Nil(t, s.Identity())
	assert.Empty(t, s.Credential())

	_, err = st.Get(ctx, storage.KeyUser)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	_, err = st.Get(ctx, storage.KeyToken)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestLogin_RejectsPartialSession(t *testing.T) {
	s := New(storage.NewMemory(), nil)
	assert.Error(t, s.Login(context.Background(), model.Identity{}, "tok"))
	assert.Error(t, s.Login(context.Background(), alice, ""))
	_, ok := s.Current()
	assert.False(t, ok)
}

func TestLogin_PersistFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	s := New(&failingStorage{Storage: mem, failKey: storage.KeyToken}, nil)
	got := record(s)

	err := s.Login(ctx, alice, "tok")
	require.Error(t, err)

	_, ok := s.Current()
	assert.False(t, ok)
	assert.Empty(t, *got)
	_, err = mem.Get(ctx, storage.KeyUser)
	assert.True(t, errors.Is(err, storage.ErrNotFound), "identity must not be left behind alone")
}

func TestObservers_SeeEveryTransitionInOrder(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemory(), nil)
	got := record(s)

	bob := model.Identity{ID: "u2", Role: model.RoleFaculty}
	require.NoError(t, s.Login(ctx, alice, "t1"))
	require.NoError(t, s.Login(ctx, bob, "t2"))
	require.NoError(t, s.Logout(ctx))
	require.NoError(t, s.Logout(ctx)) // already logged out: no transition

	assert.Equal(t, []transition{
		{id: "u1", present: true},
		{id: "u2", present: true},
		{id: "", present: false},
	}, *got)
}

func TestObserver_ReadsNewStateDuringNotification(t *testing.T) {
	s := New(storage.NewMemory(), nil)
	var seen string
	s.Subscribe(func(Session, bool) { seen = s.Credential() })

	require.NoError(t, s.Login(context.Background(), alice, "tok"))
	assert.Equal(t, "tok", seen)
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemory(), nil)
	calls := 0
	unsub := s.Subscribe(func(Session, bool) { calls++ })

	require.NoError(t, s.Login(ctx, alice, "tok"))
	unsub()
	unsub()
	require.NoError(t, s.Logout(ctx))
	assert.Equal(t, 1, calls)
}

// ---------------------------------------------------------------------------
// Restore
// ---------------------------------------------------------------------------

func TestRestore_ReloadsPersistedSession(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	require.NoError(t, New(st, nil).Login(ctx, alice, "tok"))

	s := New(st, nil)
	got := record(s)
	assert.True(t, s.Loading())
	s.Restore(ctx)

	assert.False(t, s.Loading())
	sess, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, alice.ID, sess.Identity.ID)
	assert.Equal(t, model.RoleStudent, sess.Identity.Role)
	assert.Equal(t, "tok", sess.Credential)
	assert.Equal(t, []transition{{id: "u1", present: true}}, *got)
}

func TestRestore_EmptyStorage(t *testing.T) {
	s := New(storage.NewMemory(), nil)
	got := record(s)
	s.Restore(context.Background())

	assert.False(t, s.Loading())
	_, ok := s.Current()
	assert.False(t, ok)
	assert.Empty(t, *got)
}

func TestRestore_OnlyOneKeyPresent(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	require.NoError(t, st.Set(ctx, storage.KeyToken, "tok"))

	s := New(st, nil)
	s.Restore(ctx)
	_, ok := s.Current()
	assert.False(t, ok)
}

func TestRestore_MalformedRecordIsCleared(t *testing.T) {
	tests := []struct {
		name string
		user string
	}{
		{"not json", "{oops"},
		{"missing id", `{"name":"Alice"}`},
		{"wrong shape", `["u1"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := storage.NewMemory()
			require.NoError(t, st.Set(ctx, storage.KeyUser, tt.user))
			require.NoError(t, st.Set(ctx, storage.KeyToken, "tok"))

			s := New(st, nil)
			s.Restore(ctx)

			assert.False(t, s.Loading())
			_, ok := s.Current()
			assert.False(t, ok)
			_, err := st.Get(ctx, storage.KeyUser)
			assert.True(t, errors.Is(err, storage.ErrNotFound))
			_, err = st.Get(ctx, storage.KeyToken)
			assert.True(t, errors.Is(err, storage.ErrNotFound))
		})
	}
}

func TestRestore_FileBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, New(storage.NewFile(dir, "default"), nil).Login(ctx, alice, "tok"))

	s := New(storage.NewFile(dir, "default"), nil)
	s.Restore(ctx)
	require.NotNil(t, s.Identity())
	assert.Equal(t, "alice", s.Identity().Username)
}

// ---------------------------------------------------------------------------
// ExpiresAt
// ---------------------------------------------------------------------------

func TestExpiresAt(t *testing.T) {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("server-secret"))
	require.NoError(t, err)

	s := New(storage.NewMemory(), nil)
	_, ok := s.ExpiresAt()
	assert.False(t, ok)

	require.NoError(t, s.Login(ctx, alice, signed))
	got, ok := s.ExpiresAt()
	require.True(t, ok)
	assert.True(t, exp.Equal(got), "want %v got %v", exp, got)

	require.NoError(t, s.Login(ctx, alice, "opaque-token"))
	_, ok = s.ExpiresAt()
	assert.False(t, ok)
}
