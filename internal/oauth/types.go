package oauth

import "time"

// Client is a registered OAuth2 application. Immutable after
// registration; lifecycle ends on deactivation, never hard deletion,
// because issued tokens keep referencing it.
type Client struct {
	ID                      string
	SecretHash              string
	Name                    string
	RedirectURIs            []string
	GrantTypes              []string
	ResponseTypes           []string
	Scope                   string
	TokenEndpointAuthMethod string
	CreatedAt               time.Time
	Active                  bool
}

// AllowsRedirect reports whether uri is in the client's allow-list.
// Matching is exact; no prefix or wildcard logic.
func (c *Client) AllowsRedirect(uri string) bool {
	for _, allowed := range c.RedirectURIs {
		if allowed == uri {
			return true
		}
	}
	return false
}

// AllowsGrantType reports whether the client may use the given grant.
func (c *Client) AllowsGrantType(grant string) bool {
	for _, allowed := range c.GrantTypes {
		if allowed == grant {
			return true
		}
	}
	return false
}

// AuthorizationCode is a short-lived single-use grant. Consumption
// happens through an atomic pop; there is no used flag to race on.
type AuthorizationCode struct {
	Code                string    `json:"code"`
	ClientID            string    `json:"client_id"`
	UserID              string    `json:"user_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               string    `json:"scope,omitempty"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// TokenPair is an issued access token with its optional refresh token.
type TokenPair struct {
	ID               string
	AccessToken      string
	RefreshToken     string
	TokenType        string
	ClientID         string
	UserID           string
	Scope            string
	CreatedAt        time.Time
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Revoked          bool
}

// TokenInfo is what a protected resource learns from a valid access token.
type TokenInfo struct {
	UserID    string
	ClientID  string
	Scope     string
	ExpiresAt time.Time
}
