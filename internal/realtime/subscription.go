package realtime

import (
	"sync"

	"github.com/rkvalley/campus/internal/model"
)

// Snapshot is a copy of the manager's shared state at one instant.
type Snapshot struct {
	State    State
	Identity string
	Presence []model.Identity
	Messages []model.Message
	Typing   map[string]bool
}

// Subscription delivers state changes. Updates coalesce: a slow reader only
// ever sees the latest snapshot, never a backlog.
type Subscription struct {
	m      *Manager
	ch     chan Snapshot
	mu     sync.Mutex
	closed bool
}

// Subscribe registers for state changes. The current state is delivered
// immediately. After manager Close the channel is closed.
func (m *Manager) Subscribe() *Subscription {
	s := &Subscription{m: m, ch: make(chan Snapshot, 1)}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		s.close()
		return s
	}
	m.subs[s] = struct{}{}
	s.offer(m.snapshotLocked())
	return s
}

// C returns the snapshot channel.
func (s *Subscription) C() <-chan Snapshot { return s.ch }

// Close stops delivery and closes the channel. Safe to call more than once.
func (s *Subscription) Close() {
	s.m.mu.Lock()
	delete(s.m.subs, s)
	s.m.mu.Unlock()
	s.close()
}

// offer replaces any undelivered snapshot with snap. Never blocks.
func (s *Subscription) offer(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
