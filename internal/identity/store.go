package identity

import (
	"context"
	"time"
)

// UserStore persists users. Create must enforce pubkey uniqueness and
// return ErrAlreadyExists when the pubkey is taken, so concurrent first
// logins for the same key cannot mint two users.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByPubkey(ctx context.Context, pubkey string) (*User, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// SessionStore persists authenticated sessions.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
