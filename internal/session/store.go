// Package session holds the authenticated identity and its bearer credential,
// persists both across restarts, and notifies observers of every transition.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rkvalley/campus/internal/logging"
	"github.com/rkvalley/campus/internal/model"
	"github.com/rkvalley/campus/internal/session/storage"
)

// Session is an identity together with the credential proving it.
type Session struct {
	Identity   model.Identity
	Credential string
}

// Observer is called after every session transition with the new state.
// present is false after logout. Observers run synchronously on the goroutine
// that caused the transition and must not call Login or Logout.
type Observer func(s Session, present bool)

type observerEntry struct {
	id int
	fn Observer
}

// Store is the single source of truth for who is logged in.
type Store struct {
	transition sync.Mutex // serializes Login/Logout/Restore and their notifications

	mu      sync.RWMutex
	current Session
	present bool
	loading bool

	obsMu     sync.Mutex
	observers []observerEntry
	nextObsID int

	storage storage.Storage
	logger  *zap.Logger
}

// New creates a Store backed by st. The store reports Loading() until Restore
// or Login completes.
func New(st storage.Storage, logger *zap.Logger) *Store {
	return &Store{
		storage: st,
		loading: true,
		logger:  logging.OrNop(logger).Named("session"),
	}
}

// Restore loads a persisted session. A malformed record is removed and the
// store proceeds logged out; no error reaches the caller.
func (s *Store) Restore(ctx context.Context) {
	s.transition.Lock()
	defer s.transition.Unlock()

	sess, ok := s.readPersisted(ctx)

	s.mu.Lock()
	s.current, s.present = sess, ok
	s.loading = false
	s.mu.Unlock()

	if ok {
		s.logger.Info("session restored",
			zap.String("user_id", sess.Identity.ID),
			zap.String("role", string(sess.Identity.Role)))
		s.notify(sess, true)
	} else {
		s.logger.Debug("no stored session")
	}
}

func (s *Store) readPersisted(ctx context.Context) (Session, bool) {
	rawUser, errUser := s.storage.Get(ctx, storage.KeyUser)
	token, errToken := s.storage.Get(ctx, storage.KeyToken)
	if errUser != nil || errToken != nil {
		for _, err := range []error{errUser, errToken} {
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				s.logger.Warn("read stored session", zap.Error(err))
			}
		}
		return Session{}, false
	}

	var id model.Identity
	if err := json.Unmarshal([]byte(rawUser), &id); err != nil || id.IsZero() || token == "" {
		s.logger.Warn("discarding malformed stored session", zap.Error(err))
		if err := s.storage.Delete(ctx, storage.KeyUser, storage.KeyToken); err != nil {
			s.logger.Warn("clear malformed session", zap.Error(err))
		}
		return Session{}, false
	}
	return Session{Identity: id, Credential: token}, true
}

// Login stores identity and credential together, in memory and durably. If
// persisting fails nothing changes and the error is returned.
func (s *Store) Login(ctx context.Context, identity model.Identity, credential string) error {
	if identity.IsZero() {
		return errors.New("session: login without identity id")
	}
	if credential == "" {
		return errors.New("session: login without credential")
	}

	s.transition.Lock()
	defer s.transition.Unlock()

	rawUser, err := json.Marshal(identity)
	if err != nil {
		return errors.Wrap(err, "session: encode identity")
	}
	if err := s.storage.Set(ctx, storage.KeyUser, string(rawUser)); err != nil {
		return errors.Wrap(err, "session: persist identity")
	}
	if err := s.storage.Set(ctx, storage.KeyToken, credential); err != nil {
		_ = s.storage.Delete(ctx, storage.KeyUser)
		return errors.Wrap(err, "session: persist credential")
	}

	sess := Session{Identity: identity, Credential: credential}
	s.mu.Lock()
	s.current, s.present = sess, true
	s.loading = false
	s.mu.Unlock()

	s.logger.Info("logged in",
		zap.String("user_id", identity.ID),
		zap.String("role", string(identity.Role)))
	s.notify(sess, true)
	return nil
}

// Logout clears the session. Memory is always cleared; a storage failure is
// returned after observers have been notified.
func (s *Store) Logout(ctx context.Context) error {
	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.Lock()
	was := s.present
	s.current, s.present = Session{}, false
	s.loading = false
	s.mu.Unlock()

	err := s.storage.Delete(ctx, storage.KeyUser, storage.KeyToken)
	if err != nil {
		s.logger.Warn("clear stored session", zap.Error(err))
		err = errors.Wrap(err, "session: clear storage")
	}

	if was {
		s.logger.Info("logged out")
		s.notify(Session{}, false)
	}
	return err
}

// Current returns the session and whether one is present.
func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.present
}

// Identity returns the logged-in identity, or nil.
func (s *Store) Identity() *model.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return nil
	}
	id := s.current.Identity
	return &id
}

// Credential returns the bearer token, or "" when logged out.
func (s *Store) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Credential
}

// Loading reports whether the persisted session has not been resolved yet.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// ExpiresAt reads the exp claim of the credential without verifying it. The
// store never acts on it; it is informational.
func (s *Store) ExpiresAt() (time.Time, bool) {
	token := s.Credential()
	if token == "" {
		return time.Time{}, false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Subscribe registers fn for future transitions and returns a function that
// removes it.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.obsMu.Lock()
	s.nextObsID++
	id := s.nextObsID
	s.observers = append(s.observers, observerEntry{id: id, fn: fn})
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			defer s.obsMu.Unlock()
			for i, o := range s.observers {
				if o.id == id {
					s.observers = append(s.observers[:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) notify(sess Session, present bool) {
	s.obsMu.Lock()
	obs := make([]observerEntry, len(s.observers))
	copy(obs, s.observers)
	s.obsMu.Unlock()

	for _, o := range obs {
		o.fn(sess, present)
	}
}
