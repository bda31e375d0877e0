package oauth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("oauth: not found")
	ErrAlreadyExists = errors.New("oauth: already exists")

	ErrInvalidClient      = errors.New("oauth: invalid client")
	ErrInvalidRedirectURI = errors.New("oauth: invalid redirect uri")
	ErrInvalidPKCEMethod  = errors.New("oauth: invalid pkce method")

	// ErrInvalidGrant deliberately covers unknown, already-used and
	// expired grants alike so callers cannot probe which one it was.
	ErrInvalidGrant = errors.New("oauth: invalid grant")

	ErrInvalidToken = errors.New("oauth: invalid token")
)

// The specific grant failures below match ErrInvalidGrant under
// errors.Is; the extra kinds exist for logging and tests, not for the
// caller-facing contract.
var (
	ErrExpiredGrant     = fmt.Errorf("oauth: expired grant: %w", ErrInvalidGrant)
	ErrClientMismatch   = fmt.Errorf("oauth: client mismatch: %w", ErrInvalidGrant)
	ErrRedirectMismatch = fmt.Errorf("oauth: redirect mismatch: %w", ErrInvalidGrant)
	ErrPKCEMismatch     = fmt.Errorf("oauth: pkce verification failed: %w", ErrInvalidGrant)
)
