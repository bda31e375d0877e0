package pof

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"hodlxxi.org/internal/btcsig"
	"hodlxxi.org/internal/identity"
)

type fakeChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
}

func newFakeChallengeStore() *fakeChallengeStore {
	return &fakeChallengeStore{challenges: make(map[string]*Challenge)}
}

func (s *fakeChallengeStore) Create(_ context.Context, c *Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[c.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *c
	s.challenges[c.ID] = &cp
	return nil
}

func (s *fakeChallengeStore) Find(_ context.Context, id string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeChallengeStore) MarkVerified(_ context.Context, id string, proof *Proof, result *Result, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	if !ok {
		return false, ErrNotFound
	}
	if c.Verified {
		return false, nil
	}
	c.Verified = true
	c.VerifiedAt = at
	c.Proof = proof
	c.Result = result
	return true, nil
}

func (s *fakeChallengeStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
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

type staticVerifier struct{ ok bool }

func (v staticVerifier) VerifyMessage(_ []byte, _, _ string) bool { return v.ok }

type erringValueSource struct{ err error }

func (v erringValueSource) OutputValue(context.Context, string, uint32) (int64, error) {
	return 0, v.err
}

const testPubkey = "02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5"

func newTestService(t *testing.T, verifier SignatureVerifier, values ValueSource, clock *time.Time) (*Service, *fakeChallengeStore) {
	t.Helper()
	store := newFakeChallengeStore()
	svc := NewService(store, verifier, values,
		WithClock(func() time.Time { return *clock }),
	)
	return svc, store
}

func TestCreateChallengeBindsIDAndThreshold(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, staticVerifier{ok: true}, ValueMap{}, &now)

	challenge, err := svc.CreateChallenge(context.Background(), testPubkey, 100_000, PrivacyBoolean)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	if challenge.ID == "" || challenge.Message == "" {
		t.Fatal("expected populated id and message")
	}
	wantPrefix := fmt.Sprintf("hodlxxi proof-of-funds %s threshold=100000 nonce=", challenge.ID)
	if len(challenge.Message) <= len(wantPrefix) || challenge.Message[:len(wantPrefix)] != wantPrefix {
		t.Fatalf("message %q does not bind id and threshold", challenge.Message)
	}
	if !challenge.ExpiresAt.Equal(now.Add(defaultChallengeTTL)) {
		t.Fatalf("ExpiresAt = %v, want %v", challenge.ExpiresAt, now.Add(defaultChallengeTTL))
	}
}

func TestCreateChallengeRejectsUnknownPrivacyLevel(t *testing.T) {
	now := time.Now()
	svc, _ := newTestService(t, staticVerifier{ok: true}, ValueMap{}, &now)

	if _, err := svc.CreateChallenge(context.Background(), testPubkey, 1, PrivacyLevel("partial")); !errors.Is(err, ErrInvalidPrivacyLevel) {
		t.Fatalf("err = %v, want ErrInvalidPrivacyLevel", err)
	}
}

func TestCreateChallengeRejectsBadPubkey(t *testing.T) {
	now := time.Now()
	svc, _ := newTestService(t, staticVerifier{ok: true}, ValueMap{}, &now)

	if _, err := svc.CreateChallenge(context.Background(), "not-a-pubkey", 1, PrivacyBoolean); !errors.Is(err, identity.ErrInvalidPubkey) {
		t.Fatalf("err = %v, want identity.ErrInvalidPubkey", err)
	}
}

func TestVerifyProofBooleanRevealsNoNumbers(t *testing.T) {
	now := time.Now()
	values := ValueMap{"aa:0": 150_000}
	svc, _ := newTestService(t, staticVerifier{ok: true}, values, &now)

	challenge, err := svc.CreateChallenge(context.Background(), testPubkey, 100_000, PrivacyBoolean)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}

	result, err := svc.VerifyProof(context.Background(), challenge.ID, Proof{
		Kind:   ProofKindSpend,
		Inputs: []InputRef{{TxID: "aa", Vout: 0}},
	})
	if err != nil {
		t.Fatalf("VerifyProof: %v", err)
	}
	if !result.Passed {
		t.Fatal("expected pass: 150000 >= 100000")
	}
	if result.MeetsThreshold != nil || result.Total != nil {
		t.Fatalf("boolean privacy leaked detail: %+v", result)
	}
}

func TestVerifyProofAggregateRevealsTotal(t *testing.T) {
	now := time.Now()
	values := ValueMap{"aa:0": 60_000, "bb:1": 50_000}
	svc, _ := newTestService(t, staticVerifier{ok: true}, values, &now)

	challenge, err := svc.CreateChallenge(context.Background(), testPubkey, 100_000, PrivacyAggregate)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}

	result, err := svc.VerifyProof(context.Background(), challenge.ID, Proof{
		Kind:   ProofKindSpend,
		Inputs: []InputRef{{TxID: "aa", Vout: 0}, {TxID: "bb", Vout: 1}},
	})
	if err != nil {
		t.Fatalf("VerifyProof: %v", err)
	}
	if !result.Passed {
		t.Fatal("expected pass: 110000 >= 100000")
	}
	if result.MeetsThreshold == nil || !*result.MeetsThreshold {
		t.Fatalf("MeetsThreshold = %v, want true", result.MeetsThreshold)
	}
	if result.Total == nil || *result.Total != 110_000 {
		t.Fatalf("Total = %v, want 110000", result.Total)
	}
}

func TestVerifyProofSpendBelowThresholdFailsWithoutError(t *testing.T) {
	now := time.Now()
	values := ValueMap{"aa:0": 10_000}
	svc, store := newTestService(t, staticVerifier{ok: true}, values, &now)

	challenge, err := svc.CreateChallenge(context.Background(), testPubkey, 100_000, PrivacyThreshold)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}

	result, err := svc.VerifyProof(context.Background(), challenge.ID, Proof{
		Kind:   ProofKindSpend,
		Inputs: []InputRef{{TxID: "aa", Vout: 0}},
	})
	if err != nil {
		t.Fatalf("VerifyProof: %v", err)
	}
	if result.Passed {
		t.Fatal("expected fail: 10000 < 100000")
	}
	if result.MeetsThreshold == nil || *result.MeetsThreshold {
		t.Fatalf("MeetsThreshold = %v, want false", result.MeetsThreshold)
	}
	if result.Total != nil {
		t.Fatal("threshold privacy must not leak the total")
	}

	stored, err := store.Find(context.Background(), challenge.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !stored.Verified {
		t.Fatal("a settled challenge must be marked verified")
	}
}

func TestVerifyProofBadSignatureConsumesChallenge(t *testing.T) {
	now := time.Now()
	svc, store := newTestService(t, staticVerifier{ok: false}, ValueMap{}, &now)

	challenge, err := svc.CreateChallenge(context.Background(), testPubkey, 1, PrivacyBoolean)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}

	if _, err := svc.VerifyProof(context.Background(), challenge.ID, Proof{
		Kind:      ProofKindSignature,
		Signature: "dGVzdA==",
	}); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}

	stored, err := store.Find(context.Background(), challenge.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !stored.Verified {
		t.Fatal("a failed signature still settles the challenge")
	}
	if stored.Result == nil || stored.Result.Passed {
		t.Fatalf("stored result = %+v, want failed", stored.Result)
	}

	if _, err := svc.VerifyProof(context.Background(), challenge.ID, Proof{
		Kind:      ProofKindSignature,
		Signature: "dGVzdA==",
	}); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("second attempt err = %v, want ErrAlreadyVerified", err)
	}
}

func TestVerifyProofMalformedProofLeavesChallengeOpen(t *testing.T) {
	now := time.Now()
	svc, store := newTestService(t, staticVerifier{ok: true}, ValueMap{}, &now)

	challenge, err := svc.CreateChallenge(context.Background(), testPubkey, 1, PrivacyBoolean)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}

	cases := []Proof{
		{Kind: ProofKind("psbt")},
		{Kind: ProofKindSignature},
		{Kind: ProofKindSpend},
	}
	for _, proof := range cases {
		if _, err := svc.VerifyProof(context.Background(), challenge.ID, proof); !errors.Is(err, ErrInvalidProof) {
			t.Fatalf("proof %+v: err = %v, want ErrInvalidProof", proof, err)
		}
	}

	stored, err := store.Find(context.Background(), challenge.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if stored.Verified {
		t.Fatal("a malformed proof must not settle the challenge")
	}
}

func TestVerifyProofExpired(t *testing.T) {
	now := time.Now()
	svc, _ := newTestService(t, staticVerifier{ok: true}, ValueMap{}, &now)

	challenge, err := svc.CreateChallenge(context.Background(), testPubkey, 1, PrivacyBoolean)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}

	now = now.Add(defaultChallengeTTL + time.Second)
	if _, err := svc.VerifyProof(context.Background(), challenge.ID, Proof{
		Kind:      ProofKindSignature,
		Signature: "dGVzdA==",
	}); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestVerifyProofValueSourceFailureLeavesChallengeOpen(t *testing.T) {
	now := time.Now()
	sourceErr := errors.New("chain backend down")
	svc, store := newTestService(t, staticVerifier{ok: true}, erringValueSource{err: sourceErr}, &now)

	challenge, err := svc.CreateChallenge(context.Background(), testPubkey, 1, PrivacyBoolean)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}

	if _, err := svc.VerifyProof(context.Background(), challenge.ID, Proof{
		Kind:   ProofKindSpend,
		Inputs: []InputRef{{TxID: "aa", Vout: 0}},
	}); !errors.Is(err, sourceErr) {
		t.Fatalf("err = %v, want the source error", err)
	}

	stored, err := store.Find(context.Background(), challenge.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if stored.Verified {
		t.Fatal("a backend failure must not settle the challenge")
	}
}

func TestVerifyProofRealSignedMessage(t *testing.T) {
	now := time.Now()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	pubkeyHex := fmt.Sprintf("%x", priv.PubKey().SerializeCompressed())

	svc, _ := newTestService(t, btcsig.MessageVerifier{}, ValueMap{}, &now)

	challenge, err := svc.CreateChallenge(context.Background(), pubkeyHex, 50_000, PrivacyBoolean)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}

	digest := btcsig.MessageDigest(challenge.Message)
	sig := ecdsa.SignCompact(priv, digest, true)
	signature := base64.StdEncoding.EncodeToString(sig)

	result, err := svc.VerifyProof(context.Background(), challenge.ID, Proof{
		Kind:      ProofKindSignature,
		Signature: signature,
	})
	if err != nil {
		t.Fatalf("VerifyProof: %v", err)
	}
	if !result.Passed {
		t.Fatal("expected a valid wallet signature to pass")
	}
}
