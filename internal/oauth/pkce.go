package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// PKCE code challenge methods per RFC 7636.
const (
	PKCEMethodPlain = "plain"
	PKCEMethodS256  = "S256"
)

// PKCE carries the code challenge recorded at authorization time.
type PKCE struct {
	Challenge string
	Method    string
}

// ValidPKCEMethod reports whether method is one we accept.
func ValidPKCEMethod(method string) bool {
	return method == PKCEMethodPlain || method == PKCEMethodS256
}

// Match reports whether verifier hashes (per the stored method) to the
// recorded challenge. Comparison is constant time.
func (p PKCE) Match(verifier string) bool {
	if verifier == "" {
		return false
	}
	var derived string
	switch p.Method {
	case PKCEMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		derived = base64.RawURLEncoding.EncodeToString(sum[:])
	case PKCEMethodPlain:
		derived = verifier
	default:
		return false
	}
	if len(derived) != len(p.Challenge) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(derived), []byte(p.Challenge)) == 1
}
