package pof

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hodlxxi.org/internal/identity"
)

const defaultChallengeTTL = 15 * time.Minute

// SignatureVerifier checks a wallet signature over the human-readable
// challenge message.
type SignatureVerifier interface {
	VerifyMessage(pubkey []byte, message, signature string) bool
}

// ValueSource supplies the on-chain value of a referenced output. The
// service never fetches chain data itself; it only folds the supplied
// values into a pass/fail decision.
type ValueSource interface {
	OutputValue(ctx context.Context, txid string, vout uint32) (int64, error)
}

// Service manages proof-of-funds challenge issuance and verification.
type Service struct {
	challenges ChallengeStore
	verifier   SignatureVerifier
	values     ValueSource
	now        func() time.Time
	ttl        time.Duration
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

// WithChallengeTTL configures challenge lifetime.
func WithChallengeTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewService constructs the proof-of-funds service.
func NewService(challenges ChallengeStore, verifier SignatureVerifier, values ValueSource, opts ...ServiceOption) *Service {
	svc := &Service{
		challenges: challenges,
		verifier:   verifier,
		values:     values,
		now:        time.Now,
		ttl:        defaultChallengeTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CreateChallenge issues an unverified challenge for pubkey with the
// given satoshi threshold. The challenge message is deterministic and
// human readable so a wallet can display what is being signed.
func (s *Service) CreateChallenge(ctx context.Context, pubkey string, threshold int64, privacy PrivacyLevel) (*Challenge, error) {
	if !ValidPrivacyLevel(privacy) {
		return nil, ErrInvalidPrivacyLevel
	}
	pubkey, err := identity.NormalizePubkey(pubkey)
	if err != nil {
		return nil, err
	}
	if threshold < 0 {
		return nil, fmt.Errorf("pof: threshold must not be negative")
	}

	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("pof: entropy source failed: %w", err)
	}

	now := s.now().UTC()
	challenge := &Challenge{
		Pubkey:    pubkey,
		Threshold: threshold,
		Privacy:   privacy,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	for attempt := 0; attempt < 3; attempt++ {
		challenge.ID = uuid.NewString()
		challenge.Message = ChallengeMessage(challenge.ID, threshold, hex.EncodeToString(nonce))
		err := s.challenges.Create(ctx, challenge)
		if err == nil {
			return challenge, nil
		}
		if !errors.Is(err, ErrAlreadyExists) {
			return nil, err
		}
	}
	return nil, errors.New("pof: could not generate a unique challenge id")
}

// ChallengeMessage builds the deterministic string a wallet signs or
// spends against.
func ChallengeMessage(id string, threshold int64, nonce string) string {
	return fmt.Sprintf("hodlxxi proof-of-funds %s threshold=%d nonce=%s", id, threshold, nonce)
}

// VerifyProof settles a challenge with the submitted proof. The
// challenge transitions to verified exactly once; the stored and
// returned result never carry more detail than the privacy level allows.
// A cryptographically invalid signature also settles the challenge
// (with a failed result) and reports ErrBadSignature.
func (s *Service) VerifyProof(ctx context.Context, challengeID string, proof Proof) (*Result, error) {
	challenge, err := s.challenges.Find(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if s.now().After(challenge.ExpiresAt) {
		return nil, ErrExpired
	}
	if challenge.Verified {
		return nil, ErrAlreadyVerified
	}

	var (
		passed   bool
		total    int64
		hasTotal bool
		sigErr   error
	)
	switch proof.Kind {
	case ProofKindSignature:
		if proof.Signature == "" {
			return nil, ErrInvalidProof
		}
		pubkeyBytes, err := hex.DecodeString(challenge.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("pof: stored pubkey is corrupt: %w", err)
		}
		passed = s.verifier.VerifyMessage(pubkeyBytes, challenge.Message, proof.Signature)
		if !passed {
			sigErr = ErrBadSignature
		}
	case ProofKindSpend:
		if len(proof.Inputs) == 0 {
			return nil, ErrInvalidProof
		}
		for _, input := range proof.Inputs {
			value, err := s.values.OutputValue(ctx, input.TxID, input.Vout)
			if err != nil {
				// Collaborator failures surface unchanged; the
				// challenge stays open for a retry.
				return nil, err
			}
			total += value
		}
		hasTotal = true
		passed = total >= challenge.Threshold
	default:
		return nil, ErrInvalidProof
	}

	result := clampResult(challenge.Privacy, passed, total, hasTotal)

	swapped, err := s.challenges.MarkVerified(ctx, challenge.ID, &proof, result, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, ErrAlreadyVerified
	}
	if sigErr != nil {
		return nil, sigErr
	}
	return result, nil
}

// Challenge returns a stored challenge by id.
func (s *Service) Challenge(ctx context.Context, id string) (*Challenge, error) {
	return s.challenges.Find(ctx, id)
}

// clampResult drops every detail the privacy level does not permit.
func clampResult(privacy PrivacyLevel, passed bool, total int64, hasTotal bool) *Result {
	result := &Result{Passed: passed}
	switch privacy {
	case PrivacyThreshold:
		meets := passed
		result.MeetsThreshold = &meets
	case PrivacyAggregate:
		meets := passed
		result.MeetsThreshold = &meets
		if hasTotal {
			t := total
			result.Total = &t
		}
	}
	return result
}
