package memory

import (
	"context"
	"sync"
	"time"

	"hodlxxi.org/internal/pof"
)

// FundsChallengeStore keeps proof-of-funds challenges keyed by id.
type FundsChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*pof.Challenge
}

// NewFundsChallengeStore constructs an empty FundsChallengeStore.
func NewFundsChallengeStore() *FundsChallengeStore {
	return &FundsChallengeStore{challenges: make(map[string]*pof.Challenge)}
}

func (s *FundsChallengeStore) Create(_ context.Context, c *pof.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[c.ID]; ok {
		return pof.ErrAlreadyExists
	}
	cp := *c
	s.challenges[c.ID] = &cp
	return nil
}

func (s *FundsChallengeStore) Find(_ context.Context, id string) (*pof.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	if !ok {
		return nil, pof.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *FundsChallengeStore) MarkVerified(_ context.Context, id string, proof *pof.Proof, result *pof.Result, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	if !ok {
		return false, pof.ErrNotFound
	}
	if c.Verified {
		return false, nil
	}
	c.Verified = true
	c.VerifiedAt = at
	if proof != nil {
		cp := *proof
		cp.Inputs = append([]pof.InputRef(nil), proof.Inputs...)
		c.Proof = &cp
	}
	if result != nil {
		cp := *result
		c.Result = &cp
	}
	return true, nil
}

func (s *FundsChallengeStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.challenges {
		if c.ExpiresAt.Before(before) {
			delete(s.challenges, id)
			n++
		}
	}
	return n, nil
}
