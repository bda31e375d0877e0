package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hodlxxi.org/internal/oauth"
)

// ClientStore persists OAuth client registrations. URI and grant lists
// are stored as jsonb.
type ClientStore struct {
	db *sql.DB
}

var _ oauth.ClientStore = (*ClientStore)(nil)

func (s *ClientStore) Create(ctx context.Context, c *oauth.Client) error {
	redirects, err := json.Marshal(c.RedirectURIs)
	if err != nil {
		return fmt.Errorf("marshal redirect uris: %w", err)
	}
	grants, err := json.Marshal(c.GrantTypes)
	if err != nil {
		return fmt.Errorf("marshal grant types: %w", err)
	}
	responses, err := json.Marshal(c.ResponseTypes)
	if err != nil {
		return fmt.Errorf("marshal response types: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into oauth_clients (id, secret_hash, name, redirect_uris, grant_types, response_types, scope, token_endpoint_auth_method, created_at, active)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.SecretHash, c.Name, redirects, grants, responses, c.Scope, c.TokenEndpointAuthMethod, c.CreatedAt, c.Active)
	if isUniqueViolation(err) {
		return oauth.ErrAlreadyExists
	}
	return err
}

func (s *ClientStore) Find(ctx context.Context, clientID string) (*oauth.Client, error) {
	var (
		c         oauth.Client
		redirects []byte
		grants    []byte
		responses []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select id, secret_hash, name, redirect_uris, grant_types, response_types, scope, token_endpoint_auth_method, created_at, active
		from oauth_clients where id = $1
	`, clientID).Scan(&c.ID, &c.SecretHash, &c.Name, &redirects, &grants, &responses, &c.Scope, &c.TokenEndpointAuthMethod, &c.CreatedAt, &c.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oauth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(redirects, &c.RedirectURIs); err != nil {
		return nil, fmt.Errorf("decode redirect uris: %w", err)
	}
	if err := json.Unmarshal(grants, &c.GrantTypes); err != nil {
		return nil, fmt.Errorf("decode grant types: %w", err)
	}
	if err := json.Unmarshal(responses, &c.ResponseTypes); err != nil {
		return nil, fmt.Errorf("decode response types: %w", err)
	}
	return &c, nil
}

func (s *ClientStore) Deactivate(ctx context.Context, clientID string) error {
	res, err := s.db.ExecContext(ctx, `update oauth_clients set active = false where id = $1`, clientID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return oauth.ErrNotFound
	}
	return nil
}

// CodeStore persists authorization codes. Pop runs a delete returning,
// so redemption is atomic at the database and the second caller simply
// finds no row.
type CodeStore struct {
	db *sql.DB
}

var _ oauth.CodeStore = (*CodeStore)(nil)

func (s *CodeStore) Create(ctx context.Context, code *oauth.AuthorizationCode) error {
	_, err := s.db.ExecContext(ctx, `
		insert into oauth_codes (code, client_id, user_id, redirect_uri, scope, code_challenge, code_challenge_method, created_at, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, code.Code, code.ClientID, code.UserID, code.RedirectURI, code.Scope, code.CodeChallenge, code.CodeChallengeMethod, code.CreatedAt, code.ExpiresAt)
	if isUniqueViolation(err) {
		return oauth.ErrAlreadyExists
	}
	return err
}

func (s *CodeStore) Pop(ctx context.Context, code string) (*oauth.AuthorizationCode, error) {
	var rec oauth.AuthorizationCode
	err := s.db.QueryRowContext(ctx, `
		delete from oauth_codes where code = $1
		returning code, client_id, user_id, redirect_uri, scope, code_challenge, code_challenge_method, created_at, expires_at
	`, code).Scan(&rec.Code, &rec.ClientID, &rec.UserID, &rec.RedirectURI, &rec.Scope, &rec.CodeChallenge, &rec.CodeChallengeMethod, &rec.CreatedAt, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oauth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *CodeStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	return deleteExpired(ctx, s.db, `delete from oauth_codes where expires_at < $1`, before)
}

// TokenStore persists issued token pairs; access and refresh token
// strings carry unique indexes.
type TokenStore struct {
	db *sql.DB
}

var _ oauth.TokenStore = (*TokenStore)(nil)

func (s *TokenStore) Create(ctx context.Context, pair *oauth.TokenPair) error {
	_, err := s.db.ExecContext(ctx, `
		insert into oauth_tokens (id, access_token, refresh_token, token_type, client_id, user_id, scope, created_at, access_expires_at, refresh_expires_at, revoked)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, pair.ID, pair.AccessToken, nullIfEmpty(pair.RefreshToken), pair.TokenType, pair.ClientID, pair.UserID, pair.Scope,
		pair.CreatedAt, pair.AccessExpiresAt, nullTime(pair.RefreshExpiresAt), pair.Revoked)
	if isUniqueViolation(err) {
		return oauth.ErrAlreadyExists
	}
	return err
}

func (s *TokenStore) FindByAccess(ctx context.Context, accessToken string) (*oauth.TokenPair, error) {
	return s.scanPair(s.db.QueryRowContext(ctx, `
		select id, access_token, refresh_token, token_type, client_id, user_id, scope, created_at, access_expires_at, refresh_expires_at, revoked
		from oauth_tokens where access_token = $1
	`, accessToken))
}

func (s *TokenStore) FindByRefresh(ctx context.Context, refreshToken string) (*oauth.TokenPair, error) {
	return s.scanPair(s.db.QueryRowContext(ctx, `
		select id, access_token, refresh_token, token_type, client_id, user_id, scope, created_at, access_expires_at, refresh_expires_at, revoked
		from oauth_tokens where refresh_token = $1
	`, refreshToken))
}

func (s *TokenStore) Revoke(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `update oauth_tokens set revoked = true where id = $1 and not revoked`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *TokenStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	return deleteExpired(ctx, s.db, `
		delete from oauth_tokens
		where access_expires_at < $1
		  and (refresh_token is null or refresh_expires_at < $1)
	`, before)
}

func (s *TokenStore) scanPair(row *sql.Row) (*oauth.TokenPair, error) {
	var (
		pair           oauth.TokenPair
		refreshToken   sql.NullString
		refreshExpires sql.NullTime
	)
	err := row.Scan(&pair.ID, &pair.AccessToken, &refreshToken, &pair.TokenType, &pair.ClientID, &pair.UserID,
		&pair.Scope, &pair.CreatedAt, &pair.AccessExpiresAt, &refreshExpires, &pair.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oauth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if refreshToken.Valid {
		pair.RefreshToken = refreshToken.String
	}
	if refreshExpires.Valid {
		pair.RefreshExpiresAt = refreshExpires.Time
	}
	return &pair, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
