package identity

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeUserStore struct {
	mu       sync.Mutex
	byPubkey map[string]*User
	byID     map[string]*User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byPubkey: map[string]*User{}, byID: map[string]*User{}}
}

func (s *fakeUserStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPubkey[u.Pubkey]; ok {
		return ErrAlreadyExists
	}
	cp := *u
	s.byPubkey[u.Pubkey] = &cp
	s.byID[u.ID] = &cp
	return nil
}

func (s *fakeUserStore) Find(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) FindByPubkey(_ context.Context, pubkey string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byPubkey[pubkey]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) TouchLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byID[id]; ok {
		u.LastLogin = at
	}
	return nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: map[string]*Session{}}
}

func (s *fakeSessionStore) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *fakeSessionStore) Find(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *fakeSessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *fakeSessionStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
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

const testPubkey = "02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5"

func TestResolveCreatesOncePerPubkey(t *testing.T) {
	users := newFakeUserStore()
	svc := NewService(users, newFakeSessionStore())

	first, err := svc.Resolve(context.Background(), testPubkey)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := svc.Resolve(context.Background(), testPubkey)
	if err != nil {
		t.Fatalf("Resolve again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one user per pubkey, got %s and %s", first.ID, second.ID)
	}
	if len(users.byPubkey) != 1 {
		t.Fatalf("expected 1 stored user, got %d", len(users.byPubkey))
	}
}

func TestResolveNormalizesPubkey(t *testing.T) {
	svc := NewService(newFakeUserStore(), newFakeSessionStore())

	upper := "02C6047F9441ED7D6D3045406E95C07CD85C778E4B8CEF3CA7ABAC09B95C709EE5"
	first, err := svc.Resolve(context.Background(), upper)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := svc.Resolve(context.Background(), testPubkey)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first.ID != second.ID {
		t.Fatal("case variants of the same pubkey must resolve to one user")
	}
}

func TestResolveRejectsMalformedPubkey(t *testing.T) {
	svc := NewService(newFakeUserStore(), newFakeSessionStore())
	for _, pk := range []string{
		"",
		"02abcd",
		"04c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5",
		"zzc6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5",
	} {
		if _, err := svc.Resolve(context.Background(), pk); err != ErrInvalidPubkey {
			t.Fatalf("Resolve(%q): expected ErrInvalidPubkey, got %v", pk, err)
		}
	}
}

func TestSessionExpiryIsLazy(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(newFakeUserStore(), newFakeSessionStore(),
		WithClock(func() time.Time { return current }),
		WithSessionTTL(time.Hour),
	)

	sess, err := svc.Bind(context.Background(), "", "u1", "lnurl-auth")
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if _, err := svc.Session(context.Background(), sess.ID); err != nil {
		t.Fatalf("Session before expiry: %v", err)
	}

	current = current.Add(2 * time.Hour)
	if _, err := svc.Session(context.Background(), sess.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	svc := NewService(newFakeUserStore(), newFakeSessionStore())
	sess, err := svc.Bind(context.Background(), "s1", "u1", "web")
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := svc.Logout(context.Background(), sess.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if err := svc.Logout(context.Background(), sess.ID); err != nil {
		t.Fatalf("second Logout should be a no-op, got %v", err)
	}
}
