package memory

import (
	"context"
	"sync"
	"time"

	"hodlxxi.org/internal/identity"
)

// UserStore keeps users in two maps so pubkey uniqueness is enforced
// under the same lock that inserts the record.
type UserStore struct {
	mu       sync.RWMutex
	byID     map[string]*identity.User
	byPubkey map[string]string
}

// NewUserStore constructs an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{
		byID:     make(map[string]*identity.User),
		byPubkey: make(map[string]string),
	}
}

func (s *UserStore) Create(_ context.Context, u *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[u.ID]; ok {
		return identity.ErrAlreadyExists
	}
	if _, ok := s.byPubkey[u.Pubkey]; ok {
		return identity.ErrAlreadyExists
	}
	cp := *u
	s.byID[u.ID] = &cp
	s.byPubkey[u.Pubkey] = u.ID
	return nil
}

func (s *UserStore) Find(_ context.Context, id string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *UserStore) FindByPubkey(_ context.Context, pubkey string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPubkey[pubkey]
	if !ok {
		return nil, identity.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *UserStore) TouchLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return identity.ErrNotFound
	}
	u.LastLogin = at
	return nil
}

// SessionStore keeps authenticated sessions keyed by session id.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*identity.Session
}

// NewSessionStore constructs an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*identity.Session)}
}

func (s *SessionStore) Create(_ context.Context, sess *identity.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return identity.ErrAlreadyExists
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *SessionStore) Find(_ context.Context, id string) (*identity.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *SessionStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.ExpiresAt.Before(before) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}
