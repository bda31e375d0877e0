package oauth

import (
	"context"
	"time"
)

// ClientStore persists client registrations.
type ClientStore interface {
	Create(ctx context.Context, c *Client) error
	Find(ctx context.Context, clientID string) (*Client, error)
	Deactivate(ctx context.Context, clientID string) error
}

// CodeStore persists authorization codes. Pop must be an atomic
// fetch-and-delete: under concurrent redemption of the same code exactly
// one caller receives the record, every other caller gets ErrNotFound.
type CodeStore interface {
	Create(ctx context.Context, code *AuthorizationCode) error
	Pop(ctx context.Context, code string) (*AuthorizationCode, error)
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// TokenStore persists issued token pairs. Create must reject duplicate
// access or refresh token strings with ErrAlreadyExists. Revoke is the
// compare-and-set behind refresh rotation: it returns true only for
// the single caller that flips the revoked flag, and false when the
// pair is already revoked or absent.
type TokenStore interface {
	Create(ctx context.Context, pair *TokenPair) error
	FindByAccess(ctx context.Context, accessToken string) (*TokenPair, error)
	FindByRefresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Revoke(ctx context.Context, id string) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
