package lnurl

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"hodlxxi.org/internal/identity"
	"hodlxxi.org/internal/ids"
)

const defaultChallengeTTL = 5 * time.Minute

// SignatureVerifier checks a wallet signature over the raw k1 bytes.
type SignatureVerifier interface {
	Verify(pubkey, k1, sig []byte) bool
}

// Service drives the LUD-04 challenge state machine:
// PENDING -> VERIFIED on a valid wallet signature, or PENDING -> EXPIRED
// by clock comparison at read time.
type Service struct {
	challenges ChallengeStore
	users      *identity.Service
	verifier   SignatureVerifier
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

// NewService constructs the LNURL-auth service.
func NewService(challenges ChallengeStore, users *identity.Service, verifier SignatureVerifier, opts ...ServiceOption) *Service {
	svc := &Service{
		challenges: challenges,
		users:      users,
		verifier:   verifier,
		now:        time.Now,
		ttl:        defaultChallengeTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CreateChallenge mints a fresh challenge for the browser session and
// returns it along with the LNURL-encoded callback descriptor the
// wallet will scan. callbackURL must be the absolute URL of the LUD-04
// callback endpoint; tag and k1 query parameters are appended here.
func (s *Service) CreateChallenge(ctx context.Context, sessionID, callbackURL string) (*Challenge, string, error) {
	parsed, err := url.Parse(callbackURL)
	if err != nil || !parsed.IsAbs() {
		return nil, "", fmt.Errorf("lnurl: invalid callback url %q", callbackURL)
	}
	if sessionID == "" {
		sessionID = ids.New()
	}

	now := s.now().UTC()
	challenge := &Challenge{
		SessionID: sessionID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	// Retry on the astronomically unlikely k1 collision; the store's
	// uniqueness check is what protects against identity confusion.
	for attempt := 0; attempt < 3; attempt++ {
		k1, err := randomK1()
		if err != nil {
			return nil, "", err
		}
		challenge.K1 = k1

		q := parsed.Query()
		q.Set("tag", "login")
		q.Set("k1", k1)
		parsed.RawQuery = q.Encode()
		challenge.CallbackURL = parsed.String()

		err = s.challenges.Create(ctx, challenge)
		if err == nil {
			encoded, err := Encode(challenge.CallbackURL)
			if err != nil {
				return nil, "", err
			}
			return challenge, encoded, nil
		}
		if !errors.Is(err, ErrAlreadyExists) {
			return nil, "", err
		}
	}
	return nil, "", errors.New("lnurl: could not generate a unique k1")
}

// Verify handles the wallet callback: it checks the signature over k1
// with the presented linking key, flips the challenge to verified
// exactly once, and resolves (or lazily creates) the user for that
// pubkey. Safe under concurrent calls for the same k1: at most one
// caller wins the compare-and-set, the rest observe ErrAlreadyVerified.
func (s *Service) Verify(ctx context.Context, k1, linkingPubkey, signature string) (*identity.User, error) {
	challenge, err := s.challenges.FindByK1(ctx, k1)
	if err != nil {
		return nil, err
	}
	if s.now().After(challenge.ExpiresAt) {
		return nil, ErrExpired
	}
	if challenge.Verified {
		return nil, ErrAlreadyVerified
	}

	pubkey, err := identity.NormalizePubkey(linkingPubkey)
	if err != nil {
		return nil, err
	}
	pubkeyBytes, _ := hex.DecodeString(pubkey)
	k1Bytes, err := hex.DecodeString(challenge.K1)
	if err != nil || len(k1Bytes) != 32 {
		return nil, ErrNotFound
	}
	sigBytes, err := hex.DecodeString(signature)
	if err != nil {
		return nil, ErrBadSignature
	}
	if !s.verifier.Verify(pubkeyBytes, k1Bytes, sigBytes) {
		return nil, ErrBadSignature
	}

	swapped, err := s.challenges.MarkVerified(ctx, challenge.SessionID, pubkey, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, ErrAlreadyVerified
	}

	user, err := s.users.Resolve(ctx, pubkey)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.Bind(ctx, challenge.SessionID, user.ID, "lnurl-auth"); err != nil {
		return nil, err
	}
	return user, nil
}

// Poll reports the challenge state to the waiting browser session.
func (s *Service) Poll(ctx context.Context, sessionID string) (PollResult, error) {
	challenge, err := s.challenges.FindBySession(ctx, sessionID)
	if err != nil {
		return PollResult{}, err
	}
	if challenge.Verified {
		user, err := s.users.UserByPubkey(ctx, challenge.Pubkey)
		if err != nil {
			return PollResult{}, err
		}
		return PollResult{Status: StatusVerified, UserID: user.ID}, nil
	}
	if s.now().After(challenge.ExpiresAt) {
		return PollResult{Status: StatusExpired}, nil
	}
	return PollResult{Status: StatusPending}, nil
}

// Consume removes a challenge once the waiting session has collected
// its result, so a verified challenge is handed over at most once.
// Consuming an absent challenge is not an error.
func (s *Service) Consume(ctx context.Context, sessionID string) error {
	err := s.challenges.Delete(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func randomK1() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("lnurl: entropy source failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
