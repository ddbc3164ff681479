package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"tariffsim/internal/selection"
)

var (
	ErrSessionNotFound = errors.New("server: session not found")
	ErrTooManySessions = errors.New("server: too many sessions")
)

// session serializes transitions on one synchronizer.
type session struct {
	mu       sync.Mutex
	id       string
	sync     *selection.Synchronizer
	lastSeen time.Time
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	max      int
	now      func() time.Time
}

func newSessionStore(ttl time.Duration, max int, now func() time.Time) *sessionStore {
	return &sessionStore{
		sessions: make(map[string]*session),
		ttl:      ttl,
		max:      max,
		now:      now,
	}
}

func (s *sessionStore) create(lookup selection.Lookuper) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()
	if s.max > 0 && len(s.sessions) >= s.max {
		return nil, ErrTooManySessions
	}
	sess := &session{
		id:       uuid.NewString(),
		sync:     selection.New(lookup),
		lastSeen: s.now(),
	}
	s.sessions[sess.id] = sess
	return sess, nil
}

func (s *sessionStore) get(id string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.lastSeen = s.now()
	return sess, nil
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *sessionStore) expireLocked() {
	if s.ttl <= 0 {
		return
	}
	now := s.now()
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) > s.ttl {
			delete(s.sessions, id)
		}
	}
}
