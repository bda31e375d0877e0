package lnurl

import (
	"context"
	"time"
)

// ChallengeStore persists login challenges. Create must reject a
// duplicate k1 with ErrAlreadyExists. MarkVerified is the compare-and-set
// that makes verification exactly-once: it returns true for the single
// caller that flips the flag and false for everyone after.
type ChallengeStore interface {
	Create(ctx context.Context, c *Challenge) error
	FindByK1(ctx context.Context, k1 string) (*Challenge, error)
	FindBySession(ctx context.Context, sessionID string) (*Challenge, error)
	MarkVerified(ctx context.Context, sessionID, pubkey string, at time.Time) (bool, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
