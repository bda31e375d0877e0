package identity

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"hodlxxi.org/internal/ids"
)

const defaultSessionTTL = 24 * time.Hour

// Service resolves users by pubkey and manages session lifecycle.
type Service struct {
	users      UserStore
	sessions   SessionStore
	now        func() time.Time
	sessionTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithSessionTTL configures the lifetime of sessions created on login.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// NewService constructs the identity service.
func NewService(users UserStore, sessions SessionStore, opts ...ServiceOption) *Service {
	svc := &Service{
		users:      users,
		sessions:   sessions,
		now:        time.Now,
		sessionTTL: defaultSessionTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Resolve returns the user owning pubkey, creating it on first login.
// The operation is idempotent: a concurrent create losing the uniqueness
// race falls back to the winner's record.
func (s *Service) Resolve(ctx context.Context, pubkey string) (*User, error) {
	pubkey, err := NormalizePubkey(pubkey)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	if user, err := s.users.FindByPubkey(ctx, pubkey); err == nil {
		_ = s.users.TouchLogin(ctx, user.ID, now)
		return user, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	user := &User{
		ID:        uuid.NewString(),
		Pubkey:    pubkey,
		CreatedAt: now,
		LastLogin: now,
		Active:    true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return s.users.FindByPubkey(ctx, pubkey)
		}
		return nil, err
	}
	return user, nil
}

// UserByPubkey returns the user owning pubkey without creating one.
func (s *Service) UserByPubkey(ctx context.Context, pubkey string) (*User, error) {
	pubkey, err := NormalizePubkey(pubkey)
	if err != nil {
		return nil, err
	}
	return s.users.FindByPubkey(ctx, pubkey)
}

// User returns the user with the given id.
func (s *Service) User(ctx context.Context, id string) (*User, error) {
	return s.users.Find(ctx, id)
}

// Bind creates a session of the given kind attached to userID.
func (s *Service) Bind(ctx context.Context, sessionID, userID, kind string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		sessionID = ids.New()
	}
	now := s.now().UTC()
	session := &Session{
		ID:        sessionID,
		UserID:    userID,
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Session returns the live session with the given id. Expired sessions
// report ErrNotFound; expiry is evaluated at read time.
func (s *Service) Session(ctx context.Context, id string) (*Session, error) {
	session, err := s.sessions.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.now().After(session.ExpiresAt) {
		_ = s.sessions.Delete(ctx, id)
		return nil, ErrNotFound
	}
	return session, nil
}

// Logout removes the session. Deleting an absent session is not an error.
func (s *Service) Logout(ctx context.Context, id string) error {
	err := s.sessions.Delete(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// NormalizePubkey validates and lowercases a 33-byte compressed
// secp256k1 public key in hex form (66 characters, 02/03 prefix).
func NormalizePubkey(pubkey string) (string, error) {
	pubkey = strings.ToLower(strings.TrimSpace(pubkey))
	if len(pubkey) != 66 {
		return "", ErrInvalidPubkey
	}
	if pubkey[:2] != "02" && pubkey[:2] != "03" {
		return "", ErrInvalidPubkey
	}
	if _, err := hex.DecodeString(pubkey); err != nil {
		return "", ErrInvalidPubkey
	}
	return pubkey, nil
}
