package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"hodlxxi.org/internal/ids"
)

const (
	defaultCodeTTL    = 10 * time.Minute
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 30 * 24 * time.Hour

	// TokenTypeBearer is the only token type this service issues.
	TokenTypeBearer = "Bearer"

	// createRetries bounds regeneration attempts when a freshly minted
	// random identifier collides with a stored one.
	createRetries = 3
)

// Service implements OAuth2 client registration lookups, authorization
// code issuance and redemption, and token lifecycle management.
type Service struct {
	clients ClientStore
	codes   CodeStore
	tokens  TokenStore

	now        func() time.Time
	codeTTL    time.Duration
	accessTTL  time.Duration
	refreshTTL time.Duration
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

// WithCodeTTL configures authorization code lifetime.
func WithCodeTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.codeTTL = ttl
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// NewService constructs the OAuth service.
func NewService(clients ClientStore, codes CodeStore, tokens TokenStore, opts ...ServiceOption) *Service {
	svc := &Service{
		clients:    clients,
		codes:      codes,
		tokens:     tokens,
		now:        time.Now,
		codeTTL:    defaultCodeTTL,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// RegisterClientParams describes a client registration request.
type RegisterClientParams struct {
	Name                    string
	RedirectURIs            []string
	GrantTypes              []string
	ResponseTypes           []string
	Scope                   string
	TokenEndpointAuthMethod string
}

// RegisterClient stores a new client and returns its generated
// credentials. The plaintext secret is returned exactly once; only its
// bcrypt hash is persisted.
func (s *Service) RegisterClient(ctx context.Context, params RegisterClientParams) (*Client, string, error) {
	if strings.TrimSpace(params.Name) == "" {
		return nil, "", fmt.Errorf("%w: name is required", ErrInvalidClient)
	}
	if len(params.RedirectURIs) == 0 {
		return nil, "", fmt.Errorf("%w: at least one redirect uri is required", ErrInvalidRedirectURI)
	}
	for _, uri := range params.RedirectURIs {
		parsed, err := url.Parse(uri)
		if err != nil || !parsed.IsAbs() || parsed.Fragment != "" {
			return nil, "", fmt.Errorf("%w: %q", ErrInvalidRedirectURI, uri)
		}
	}
	if len(params.GrantTypes) == 0 {
		params.GrantTypes = []string{"authorization_code", "refresh_token"}
	}
	if len(params.ResponseTypes) == 0 {
		params.ResponseTypes = []string{"code"}
	}
	if params.TokenEndpointAuthMethod == "" {
		params.TokenEndpointAuthMethod = "client_secret_basic"
	}

	secret, err := randomToken(32)
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	client := &Client{
		ID:                      ids.New(),
		SecretHash:              string(hash),
		Name:                    params.Name,
		RedirectURIs:            params.RedirectURIs,
		GrantTypes:              params.GrantTypes,
		ResponseTypes:           params.ResponseTypes,
		Scope:                   params.Scope,
		TokenEndpointAuthMethod: params.TokenEndpointAuthMethod,
		CreatedAt:               s.now().UTC(),
		Active:                  true,
	}
	if err := s.clients.Create(ctx, client); err != nil {
		return nil, "", err
	}
	return client, secret, nil
}

// AuthenticateClient checks client credentials. Unknown id, inactive
// client and wrong secret are indistinguishable to the caller.
func (s *Service) AuthenticateClient(ctx context.Context, clientID, secret string) (*Client, error) {
	client, err := s.activeClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(secret)) != nil {
		return nil, ErrInvalidClient
	}
	return client, nil
}

// DeactivateClient retires a client. Its issued tokens stay readable but
// no new grants can be issued for it.
func (s *Service) DeactivateClient(ctx context.Context, clientID string) error {
	return s.clients.Deactivate(ctx, clientID)
}

// IssueAuthorizationCode validates the request against the client
// registration and stores a fresh single-use code.
func (s *Service) IssueAuthorizationCode(ctx context.Context, clientID, userID, redirectURI, scope string, pkce *PKCE) (string, error) {
	client, err := s.activeClient(ctx, clientID)
	if err != nil {
		return "", err
	}
	if !client.AllowsRedirect(redirectURI) {
		return "", ErrInvalidRedirectURI
	}
	if pkce != nil && !ValidPKCEMethod(pkce.Method) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPKCEMethod, pkce.Method)
	}

	now := s.now().UTC()
	record := &AuthorizationCode{
		ClientID:    clientID,
		UserID:      userID,
		RedirectURI: redirectURI,
		Scope:       scope,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.codeTTL),
	}
	if pkce != nil {
		record.CodeChallenge = pkce.Challenge
		record.CodeChallengeMethod = pkce.Method
	}

	for attempt := 0; attempt < createRetries; attempt++ {
		code, err := randomToken(32)
		if err != nil {
			return "", err
		}
		record.Code = code
		err = s.codes.Create(ctx, record)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, ErrAlreadyExists) {
			return "", err
		}
	}
	return "", errors.New("oauth: could not generate a unique authorization code")
}

// ExchangeCode redeems an authorization code for a token pair.
//
// The code is popped before any validation on purpose: a failed check
// still consumes it, so no code is ever redeemable twice even when two
// exchanges race.
func (s *Service) ExchangeCode(ctx context.Context, code, clientID, redirectURI, pkceVerifier string) (*TokenPair, error) {
	record, err := s.codes.Pop(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}
	if s.now().After(record.ExpiresAt) {
		return nil, ErrExpiredGrant
	}
	if record.ClientID != clientID {
		return nil, ErrClientMismatch
	}
	if record.RedirectURI != redirectURI {
		return nil, ErrRedirectMismatch
	}
	if record.CodeChallenge != "" {
		pkce := PKCE{Challenge: record.CodeChallenge, Method: record.CodeChallengeMethod}
		if !pkce.Match(pkceVerifier) {
			return nil, ErrPKCEMismatch
		}
	}
	return s.mintTokens(ctx, record.ClientID, record.UserID, record.Scope)
}

// RefreshToken rotates a refresh token: the presented pair is revoked
// and a new one issued for the same client, user and scope. A leaked
// refresh token is therefore good for at most one generation.
func (s *Service) RefreshToken(ctx context.Context, refreshToken, clientID string) (*TokenPair, error) {
	pair, err := s.tokens.FindByRefresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}
	if pair.Revoked {
		return nil, ErrInvalidGrant
	}
	if !pair.RefreshExpiresAt.IsZero() && s.now().After(pair.RefreshExpiresAt) {
		return nil, ErrInvalidGrant
	}
	if pair.ClientID != clientID {
		return nil, ErrInvalidGrant
	}
	// Revocation is the compare-and-set deciding a refresh race: of two
	// concurrent rotations of the same token, only the caller that flips
	// the flag may mint the next generation.
	revoked, err := s.tokens.Revoke(ctx, pair.ID)
	if err != nil {
		return nil, err
	}
	if !revoked {
		return nil, ErrInvalidGrant
	}
	return s.mintTokens(ctx, pair.ClientID, pair.UserID, pair.Scope)
}

// RevokeToken marks the pair owning the given access or refresh token as
// revoked. Revoking an unknown or already-revoked token is not an error.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	pair, err := s.tokens.FindByAccess(ctx, token)
	if errors.Is(err, ErrNotFound) {
		pair, err = s.tokens.FindByRefresh(ctx, token)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	_, err = s.tokens.Revoke(ctx, pair.ID)
	return err
}

// VerifyAccessToken is the authorization check every protected resource
// call performs: lookup miss, revocation and expiry all yield
// ErrInvalidToken.
func (s *Service) VerifyAccessToken(ctx context.Context, token string) (*TokenInfo, error) {
	pair, err := s.tokens.FindByAccess(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if pair.Revoked || s.now().After(pair.AccessExpiresAt) {
		return nil, ErrInvalidToken
	}
	return &TokenInfo{
		UserID:    pair.UserID,
		ClientID:  pair.ClientID,
		Scope:     pair.Scope,
		ExpiresAt: pair.AccessExpiresAt,
	}, nil
}

func (s *Service) mintTokens(ctx context.Context, clientID, userID, scope string) (*TokenPair, error) {
	now := s.now().UTC()
	for attempt := 0; attempt < createRetries; attempt++ {
		access, err := randomToken(32)
		if err != nil {
			return nil, err
		}
		refresh, err := randomToken(32)
		if err != nil {
			return nil, err
		}
		pair := &TokenPair{
			ID:               ids.New(),
			AccessToken:      access,
			RefreshToken:     refresh,
			TokenType:        TokenTypeBearer,
			ClientID:         clientID,
			UserID:           userID,
			Scope:            scope,
			CreatedAt:        now,
			AccessExpiresAt:  now.Add(s.accessTTL),
			RefreshExpiresAt: now.Add(s.refreshTTL),
		}
		err = s.tokens.Create(ctx, pair)
		if err == nil {
			return pair, nil
		}
		if !errors.Is(err, ErrAlreadyExists) {
			return nil, err
		}
	}
	return nil, errors.New("oauth: could not generate unique tokens")
}

func (s *Service) activeClient(ctx context.Context, clientID string) (*Client, error) {
	client, err := s.clients.Find(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}
	if !client.Active {
		return nil, ErrInvalidClient
	}
	return client, nil
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("oauth: entropy source failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
