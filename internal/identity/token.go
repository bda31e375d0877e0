package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidSessionToken indicates the session token failed validation.
var ErrInvalidSessionToken = errors.New("identity: invalid session token")

const defaultTokenIssuer = "hodlxxi"

// SessionClaims are the JWT claims carried by a web session token.
type SessionClaims struct {
	Pubkey string `json:"pubkey"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 session tokens handed to the
// browser after a successful LNURL-auth login.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer. The secret must be non-empty.
func NewTokenIssuer(secret string, ttl time.Duration, opts ...TokenIssuerOption) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("identity: session token secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("identity: session token ttl must be positive")
	}
	iss := &TokenIssuer{
		secret: []byte(secret),
		issuer: defaultTokenIssuer,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(iss)
	}
	return iss, nil
}

// TokenIssuerOption configures a TokenIssuer.
type TokenIssuerOption func(*TokenIssuer)

// WithTokenIssuerName overrides the issuer claim.
func WithTokenIssuerName(name string) TokenIssuerOption {
	return func(i *TokenIssuer) {
		if strings.TrimSpace(name) != "" {
			i.issuer = strings.TrimSpace(name)
		}
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenIssuerOption {
	return func(i *TokenIssuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// Generate signs a session token for the given user.
func (i *TokenIssuer) Generate(userID, pubkey string) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errors.New("identity: userID is required")
	}
	now := i.now().UTC()
	expiresAt := now.Add(i.ttl)
	claims := SessionClaims{
		Pubkey: pubkey,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies the token signature and required claims.
func (i *TokenIssuer) Parse(token string) (*SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidSessionToken
	}
	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidSessionToken
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return i.now().UTC() }))
	if err != nil {
		return nil, ErrInvalidSessionToken
	}
	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidSessionToken
	}
	if claims.Issuer != i.issuer || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidSessionToken
	}
	return claims, nil
}
