// Package redis backs the short-lived records (authorization codes,
// login and proof-of-funds challenges, sessions) with Redis. Records
// are stored as JSON under prefixed keys with a TTL derived from the
// record's expiry, so Redis itself sweeps what the Postgres store needs
// a cleanup pass for. Single-use pop maps to GETDEL and verify-once to
// a cjson Lua script, keeping both atomic on the server.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	keyCode         = "oauth:code:"
	keySession      = "session:"
	keyLoginSession = "login:sess:"
	keyLoginK1      = "login:k1:"
	keyFunds        = "pof:challenge:"
)

// Store wraps a Redis client shared by the per-domain stores.
type Store struct {
	client *goredis.Client
}

// Open connects to Redis from a redis:// URL and verifies connectivity.
func Open(ctx context.Context, url string) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Store{client: client}, nil
}

// NewStore wraps an existing client.
func NewStore(client *goredis.Client) *Store { return &Store{client: client} }

func (s *Store) Close() error { return s.client.Close() }

// Codes returns the authorization code store.
func (s *Store) Codes() *CodeStore { return &CodeStore{client: s.client} }

// Sessions returns the session store.
func (s *Store) Sessions() *SessionStore { return &SessionStore{client: s.client} }

// LoginChallenges returns the LNURL-auth challenge store.
func (s *Store) LoginChallenges() *LoginChallengeStore {
	return &LoginChallengeStore{client: s.client}
}

// FundsChallenges returns the proof-of-funds challenge store.
func (s *Store) FundsChallenges() *FundsChallengeStore {
	return &FundsChallengeStore{client: s.client}
}

// setJSON writes value as JSON with NX semantics and a TTL running to
// expiresAt. Returns errExists when the key is already present.
func setJSON(ctx context.Context, client *goredis.Client, key string, value any, expiresAt time.Time, now time.Time) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("record for %s already expired", key)
	}
	ok, err := client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errExists
	}
	return nil
}

func getJSON(ctx context.Context, client *goredis.Client, key string, out any) error {
	data, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return errMissing
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

var (
	errExists  = errors.New("redis: key exists")
	errMissing = errors.New("redis: key missing")
)
