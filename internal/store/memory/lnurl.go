package memory

import (
	"context"
	"sync"
	"time"

	"hodlxxi.org/internal/lnurl"
)

// LoginChallengeStore keeps LNURL-auth challenges indexed by both the
// browser session id and the k1 challenge value.
type LoginChallengeStore struct {
	mu        sync.Mutex
	bySession map[string]*lnurl.Challenge
	byK1      map[string]string
}

// NewLoginChallengeStore constructs an empty LoginChallengeStore.
func NewLoginChallengeStore() *LoginChallengeStore {
	return &LoginChallengeStore{
		bySession: make(map[string]*lnurl.Challenge),
		byK1:      make(map[string]string),
	}
}

func (s *LoginChallengeStore) Create(_ context.Context, c *lnurl.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byK1[c.K1]; ok {
		return lnurl.ErrAlreadyExists
	}
	if _, ok := s.bySession[c.SessionID]; ok {
		return lnurl.ErrAlreadyExists
	}
	cp := *c
	s.bySession[c.SessionID] = &cp
	s.byK1[c.K1] = c.SessionID
	return nil
}

func (s *LoginChallengeStore) FindByK1(_ context.Context, k1 string) (*lnurl.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessionID, ok := s.byK1[k1]
	if !ok {
		return nil, lnurl.ErrNotFound
	}
	cp := *s.bySession[sessionID]
	return &cp, nil
}

func (s *LoginChallengeStore) FindBySession(_ context.Context, sessionID string) (*lnurl.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.bySession[sessionID]
	if !ok {
		return nil, lnurl.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *LoginChallengeStore) MarkVerified(_ context.Context, sessionID, pubkey string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.bySession[sessionID]
	if !ok {
		return false, lnurl.ErrNotFound
	}
	if c.Verified {
		return false, nil
	}
	c.Verified = true
	c.Pubkey = pubkey
	c.VerifiedAt = at
	return true, nil
}

func (s *LoginChallengeStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.bySession[sessionID]
	if !ok {
		return nil
	}
	delete(s.bySession, sessionID)
	delete(s.byK1, c.K1)
	return nil
}

func (s *LoginChallengeStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for sessionID, c := range s.bySession {
		if c.ExpiresAt.Before(before) {
			delete(s.bySession, sessionID)
			delete(s.byK1, c.K1)
			n++
		}
	}
	return n, nil
}
