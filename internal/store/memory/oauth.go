package memory

import (
	"context"
	"sync"
	"time"

	"hodlxxi.org/internal/oauth"
)

// ClientStore keeps OAuth client registrations keyed by client id.
type ClientStore struct {
	mu      sync.RWMutex
	clients map[string]*oauth.Client
}

// NewClientStore constructs an empty ClientStore.
func NewClientStore() *ClientStore {
	return &ClientStore{clients: make(map[string]*oauth.Client)}
}

func (s *ClientStore) Create(_ context.Context, c *oauth.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.ID]; ok {
		return oauth.ErrAlreadyExists
	}
	cp := *c
	cp.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	cp.GrantTypes = append([]string(nil), c.GrantTypes...)
	cp.ResponseTypes = append([]string(nil), c.ResponseTypes...)
	s.clients[c.ID] = &cp
	return nil
}

func (s *ClientStore) Find(_ context.Context, clientID string) (*oauth.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[clientID]
	if !ok {
		return nil, oauth.ErrNotFound
	}
	cp := *c
	cp.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	cp.GrantTypes = append([]string(nil), c.GrantTypes...)
	cp.ResponseTypes = append([]string(nil), c.ResponseTypes...)
	return &cp, nil
}

func (s *ClientStore) Deactivate(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok {
		return oauth.ErrNotFound
	}
	c.Active = false
	return nil
}

// CodeStore keeps authorization codes. Pop removes the record under the
// write lock, so concurrent redemptions of one code see it exactly once.
type CodeStore struct {
	mu    sync.Mutex
	codes map[string]*oauth.AuthorizationCode
}

// NewCodeStore constructs an empty CodeStore.
func NewCodeStore() *CodeStore {
	return &CodeStore{codes: make(map[string]*oauth.AuthorizationCode)}
}

func (s *CodeStore) Create(_ context.Context, code *oauth.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code.Code]; ok {
		return oauth.ErrAlreadyExists
	}
	cp := *code
	s.codes[code.Code] = &cp
	return nil
}

func (s *CodeStore) Pop(_ context.Context, code string) (*oauth.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.codes[code]
	if !ok {
		return nil, oauth.ErrNotFound
	}
	delete(s.codes, code)
	cp := *rec
	return &cp, nil
}

func (s *CodeStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for code, rec := range s.codes {
		if rec.ExpiresAt.Before(before) {
			delete(s.codes, code)
			n++
		}
	}
	return n, nil
}

// TokenStore keeps issued token pairs with secondary indexes on the
// access and refresh token strings.
type TokenStore struct {
	mu        sync.RWMutex
	byID      map[string]*oauth.TokenPair
	byAccess  map[string]string
	byRefresh map[string]string
}

// NewTokenStore constructs an empty TokenStore.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		byID:      make(map[string]*oauth.TokenPair),
		byAccess:  make(map[string]string),
		byRefresh: make(map[string]string),
	}
}

func (s *TokenStore) Create(_ context.Context, pair *oauth.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[pair.ID]; ok {
		return oauth.ErrAlreadyExists
	}
	if _, ok := s.byAccess[pair.AccessToken]; ok {
		return oauth.ErrAlreadyExists
	}
	if pair.RefreshToken != "" {
		if _, ok := s.byRefresh[pair.RefreshToken]; ok {
			return oauth.ErrAlreadyExists
		}
	}
	cp := *pair
	s.byID[pair.ID] = &cp
	s.byAccess[pair.AccessToken] = pair.ID
	if pair.RefreshToken != "" {
		s.byRefresh[pair.RefreshToken] = pair.ID
	}
	return nil
}

func (s *TokenStore) FindByAccess(_ context.Context, accessToken string) (*oauth.TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byAccess[accessToken]
	if !ok {
		return nil, oauth.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *TokenStore) FindByRefresh(_ context.Context, refreshToken string) (*oauth.TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byRefresh[refreshToken]
	if !ok {
		return nil, oauth.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *TokenStore) Revoke(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair, ok := s.byID[id]
	if !ok || pair.Revoked {
		return false, nil
	}
	pair.Revoked = true
	return true, nil
}

func (s *TokenStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, pair := range s.byID {
		// A pair is dead once both halves are past their expiry.
		refreshDead := pair.RefreshToken == "" || pair.RefreshExpiresAt.Before(before)
		if pair.AccessExpiresAt.Before(before) && refreshDead {
			delete(s.byID, id)
			delete(s.byAccess, pair.AccessToken)
			if pair.RefreshToken != "" {
				delete(s.byRefresh, pair.RefreshToken)
			}
			n++
		}
	}
	return n, nil
}
