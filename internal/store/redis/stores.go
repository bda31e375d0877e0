package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"hodlxxi.org/internal/identity"
	"hodlxxi.org/internal/lnurl"
	"hodlxxi.org/internal/oauth"
	"hodlxxi.org/internal/pof"
)

// CodeStore keeps authorization codes with single-use redemption via
// GETDEL.
type CodeStore struct {
	client *goredis.Client
}

var _ oauth.CodeStore = (*CodeStore)(nil)

func (s *CodeStore) Create(ctx context.Context, code *oauth.AuthorizationCode) error {
	err := setJSON(ctx, s.client, keyCode+code.Code, code, code.ExpiresAt, code.CreatedAt)
	if errors.Is(err, errExists) {
		return oauth.ErrAlreadyExists
	}
	return err
}

func (s *CodeStore) Pop(ctx context.Context, code string) (*oauth.AuthorizationCode, error) {
	data, err := s.client.GetDel(ctx, keyCode+code).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, oauth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec oauth.AuthorizationCode
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode code: %w", err)
	}
	return &rec, nil
}

// DeleteExpired is a no-op: keys carry a TTL and Redis evicts them.
func (s *CodeStore) DeleteExpired(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

// SessionStore keeps authenticated sessions under their TTL.
type SessionStore struct {
	client *goredis.Client
}

var _ identity.SessionStore = (*SessionStore)(nil)

func (s *SessionStore) Create(ctx context.Context, sess *identity.Session) error {
	err := setJSON(ctx, s.client, keySession+sess.ID, sess, sess.ExpiresAt, sess.CreatedAt)
	if errors.Is(err, errExists) {
		return identity.ErrAlreadyExists
	}
	return err
}

func (s *SessionStore) Find(ctx context.Context, id string) (*identity.Session, error) {
	var sess identity.Session
	err := getJSON(ctx, s.client, keySession+id, &sess)
	if errors.Is(err, errMissing) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, keySession+id).Err()
}

// DeleteExpired is a no-op: keys carry a TTL and Redis evicts them.
func (s *SessionStore) DeleteExpired(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

// markLoginVerified flips the verified flag of a login challenge at
// most once. KEYS[1] is the challenge key, ARGV[1] the pubkey, ARGV[2]
// the verification timestamp. Returns -1 when missing, 0 when already
// verified, 1 when this call swapped.
var markLoginVerified = goredis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then return -1 end
local obj = cjson.decode(raw)
if obj.verified then return 0 end
obj.verified = true
obj.pubkey = ARGV[1]
obj.verified_at = ARGV[2]
redis.call('SET', KEYS[1], cjson.encode(obj), 'KEEPTTL')
return 1
`)

// LoginChallengeStore keeps LNURL-auth challenges with a secondary key
// from k1 to the session id.
type LoginChallengeStore struct {
	client *goredis.Client
}

var _ lnurl.ChallengeStore = (*LoginChallengeStore)(nil)

func (s *LoginChallengeStore) Create(ctx context.Context, c *lnurl.Challenge) error {
	ttl := c.ExpiresAt.Sub(c.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("challenge for %s already expired", c.SessionID)
	}
	ok, err := s.client.SetNX(ctx, keyLoginK1+c.K1, c.SessionID, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return lnurl.ErrAlreadyExists
	}
	if err := setJSON(ctx, s.client, keyLoginSession+c.SessionID, c, c.ExpiresAt, c.CreatedAt); err != nil {
		// Roll the k1 index back so a retry with a fresh k1 is clean.
		_ = s.client.Del(ctx, keyLoginK1+c.K1).Err()
		if errors.Is(err, errExists) {
			return lnurl.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *LoginChallengeStore) FindByK1(ctx context.Context, k1 string) (*lnurl.Challenge, error) {
	sessionID, err := s.client.Get(ctx, keyLoginK1+k1).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, lnurl.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.FindBySession(ctx, sessionID)
}

func (s *LoginChallengeStore) FindBySession(ctx context.Context, sessionID string) (*lnurl.Challenge, error) {
	var c lnurl.Challenge
	err := getJSON(ctx, s.client, keyLoginSession+sessionID, &c)
	if errors.Is(err, errMissing) {
		return nil, lnurl.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *LoginChallengeStore) MarkVerified(ctx context.Context, sessionID, pubkey string, at time.Time) (bool, error) {
	res, err := markLoginVerified.Run(ctx, s.client,
		[]string{keyLoginSession + sessionID},
		pubkey, at.UTC().Format(time.RFC3339Nano)).Int()
	if err != nil {
		return false, err
	}
	switch res {
	case -1:
		return false, lnurl.ErrNotFound
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

func (s *LoginChallengeStore) Delete(ctx context.Context, sessionID string) error {
	c, err := s.FindBySession(ctx, sessionID)
	if errors.Is(err, lnurl.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.client.Del(ctx, keyLoginSession+sessionID, keyLoginK1+c.K1).Err()
}

// DeleteExpired is a no-op: keys carry a TTL and Redis evicts them.
func (s *LoginChallengeStore) DeleteExpired(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

// markFundsVerified settles a proof-of-funds challenge at most once.
// ARGV[1] is the timestamp, ARGV[2] the proof document or an empty
// string, ARGV[3] the result document or an empty string.
var markFundsVerified = goredis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then return -1 end
local obj = cjson.decode(raw)
if obj.verified then return 0 end
obj.verified = true
obj.verified_at = ARGV[1]
if ARGV[2] ~= '' then obj.proof = cjson.decode(ARGV[2]) end
if ARGV[3] ~= '' then obj.result = cjson.decode(ARGV[3]) end
redis.call('SET', KEYS[1], cjson.encode(obj), 'KEEPTTL')
return 1
`)

// FundsChallengeStore keeps proof-of-funds challenges.
type FundsChallengeStore struct {
	client *goredis.Client
}

var _ pof.ChallengeStore = (*FundsChallengeStore)(nil)

func (s *FundsChallengeStore) Create(ctx context.Context, c *pof.Challenge) error {
	err := setJSON(ctx, s.client, keyFunds+c.ID, c, c.ExpiresAt, c.CreatedAt)
	if errors.Is(err, errExists) {
		return pof.ErrAlreadyExists
	}
	return err
}

func (s *FundsChallengeStore) Find(ctx context.Context, id string) (*pof.Challenge, error) {
	var c pof.Challenge
	err := getJSON(ctx, s.client, keyFunds+id, &c)
	if errors.Is(err, errMissing) {
		return nil, pof.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *FundsChallengeStore) MarkVerified(ctx context.Context, id string, proof *pof.Proof, result *pof.Result, at time.Time) (bool, error) {
	proofDoc, resultDoc := "", ""
	if proof != nil {
		data, err := json.Marshal(proof)
		if err != nil {
			return false, fmt.Errorf("marshal proof: %w", err)
		}
		proofDoc = string(data)
	}
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return false, fmt.Errorf("marshal result: %w", err)
		}
		resultDoc = string(data)
	}
	res, err := markFundsVerified.Run(ctx, s.client,
		[]string{keyFunds + id},
		at.UTC().Format(time.RFC3339Nano), proofDoc, resultDoc).Int()
	if err != nil {
		return false, err
	}
	switch res {
	case -1:
		return false, pof.ErrNotFound
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

// DeleteExpired is a no-op: keys carry a TTL and Redis evicts them.
func (s *FundsChallengeStore) DeleteExpired(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}
