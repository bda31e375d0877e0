package pof

import (
	"context"
	"time"
)

// ChallengeStore persists proof-of-funds challenges. MarkVerified is the
// compare-and-set guarding the verified-exactly-once invariant; it
// atomically records the submitted proof and clamped result together
// with the flag flip, and returns false when the flag was already set.
type ChallengeStore interface {
	Create(ctx context.Context, c *Challenge) error
	Find(ctx context.Context, id string) (*Challenge, error)
	MarkVerified(ctx context.Context, id string, proof *Proof, result *Result, at time.Time) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
