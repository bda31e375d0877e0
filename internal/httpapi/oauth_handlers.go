package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"hodlxxi.org/internal/audit"
	"hodlxxi.org/internal/oauth"
	"hodlxxi.org/internal/obs"
)

type registerClientRequest struct {
	Name                    string   `json:"name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

type registerClientResponse struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Name         string   `json:"name"`
	RedirectURIs []string `json:"redirect_uris"`
	GrantTypes   []string `json:"grant_types"`
	Scope        string   `json:"scope,omitempty"`
}

func (a *API) handleRegisterClient(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerClientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	client, secret, err := a.oauth.RegisterClient(r.Context(), oauth.RegisterClientParams{
		Name:                    req.Name,
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              req.GrantTypes,
		ResponseTypes:           req.ResponseTypes,
		Scope:                   req.Scope,
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
	})
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidClient) || errors.Is(err, oauth.ErrInvalidRedirectURI) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "oauth.client.registered", map[string]any{
		"client_id": client.ID,
		"name":      client.Name,
	})
	// The plaintext secret appears in this response and nowhere else.
	writeJSON(w, http.StatusCreated, registerClientResponse{
		ClientID:     client.ID,
		ClientSecret: secret,
		Name:         client.Name,
		RedirectURIs: client.RedirectURIs,
		GrantTypes:   client.GrantTypes,
		Scope:        client.Scope,
	})
}

type authorizeRequest struct {
	ResponseType        string `json:"response_type"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope"`
	State               string `json:"state"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
}

type authorizeResponse struct {
	Code        string `json:"code"`
	State       string `json:"state,omitempty"`
	RedirectURI string `json:"redirect_uri"`
}

// handleAuthorize issues an authorization code to an authenticated
// user. The caller presents its web session token; consent UI is the
// frontend's concern.
func (a *API) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token, err := bearerToken(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	claims, err := a.sessions.Parse(token)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid session token")
		return
	}

	var req authorizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.ResponseType != "code" {
		writeOAuthError(w, http.StatusBadRequest, "unsupported_response_type", "only response_type=code is supported")
		return
	}

	var pkce *oauth.PKCE
	if req.CodeChallenge != "" {
		method := req.CodeChallengeMethod
		if method == "" {
			method = oauth.PKCEMethodPlain
		}
		if !oauth.ValidPKCEMethod(method) {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "unsupported code_challenge_method")
			return
		}
		pkce = &oauth.PKCE{Challenge: req.CodeChallenge, Method: method}
	}

	code, err := a.oauth.IssueAuthorizationCode(r.Context(), req.ClientID, claims.Subject, req.RedirectURI, req.Scope, pkce)
	if err != nil {
		obs.RecordAuthOutcome("oauth", "denied")
		switch {
		case errors.Is(err, oauth.ErrNotFound), errors.Is(err, oauth.ErrInvalidClient):
			writeOAuthError(w, http.StatusBadRequest, "invalid_client", "unknown or inactive client")
		case errors.Is(err, oauth.ErrInvalidRedirectURI):
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not registered")
		case errors.Is(err, oauth.ErrInvalidPKCEMethod):
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "unsupported code_challenge_method")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	ctx := audit.WithActor(r.Context(), claims.Subject)
	_ = audit.LogEvent(ctx, "oauth.code.issued", map[string]any{
		"client_id": req.ClientID,
		"scope":     req.Scope,
	})
	obs.RecordAuthOutcome("oauth", "code_issued")
	writeJSON(w, http.StatusOK, authorizeResponse{
		Code:        code,
		State:       req.State,
		RedirectURI: req.RedirectURI,
	})
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// handleToken is the RFC 6749 token endpoint. Requests are form
// encoded; client credentials arrive via HTTP Basic or the form body.
func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	clientID, clientSecret := clientCredentials(r)
	if clientID == "" {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "client authentication required")
		return
	}
	client, err := a.oauth.AuthenticateClient(r.Context(), clientID, clientSecret)
	if err != nil {
		obs.RecordAuthOutcome("oauth", "client_auth_failed")
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}

	grantType := r.PostFormValue("grant_type")
	if !client.AllowsGrantType(grantType) {
		writeOAuthError(w, http.StatusBadRequest, "unauthorized_client", "grant type not allowed for this client")
		return
	}

	var pair *oauth.TokenPair
	switch grantType {
	case "authorization_code":
		pair, err = a.oauth.ExchangeCode(r.Context(),
			r.PostFormValue("code"), client.ID,
			r.PostFormValue("redirect_uri"), r.PostFormValue("code_verifier"))
	case "refresh_token":
		pair, err = a.oauth.RefreshToken(r.Context(), r.PostFormValue("refresh_token"), client.ID)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "")
		return
	}
	if err != nil {
		obs.RecordAuthOutcome("oauth", "denied")
		if errors.Is(err, oauth.ErrInvalidGrant) {
			// One answer for unknown, expired, consumed and mismatched
			// grants; detail would let a caller probe the code space.
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	ctx := audit.WithActor(r.Context(), pair.UserID)
	_ = audit.LogEvent(ctx, "oauth.token.issued", map[string]any{
		"client_id":  client.ID,
		"grant_type": grantType,
		"scope":      pair.Scope,
	})
	obs.RecordAuthOutcome("oauth", "token_issued")
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int64(time.Until(pair.AccessExpiresAt) / time.Second),
		RefreshToken: pair.RefreshToken,
		Scope:        pair.Scope,
	})
}

// handleRevoke implements RFC 7009: revoking an unknown token still
// answers 200.
func (a *API) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}
	clientID, clientSecret := clientCredentials(r)
	if clientID == "" {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "client authentication required")
		return
	}
	if _, err := a.oauth.AuthenticateClient(r.Context(), clientID, clientSecret); err != nil {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}
	token := r.PostFormValue("token")
	if token == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}
	if err := a.oauth.RevokeToken(r.Context(), token); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "oauth.token.revoked", map[string]any{
		"client_id": clientID,
	})
	w.WriteHeader(http.StatusOK)
}

type meResponse struct {
	UserID    string    `json:"user_id"`
	Pubkey    string    `json:"pubkey"`
	ClientID  string    `json:"client_id"`
	Scope     string    `json:"scope,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleMe is a protected resource: it resolves the bearer access
// token and returns the identity behind it.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	token, err := bearerToken(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	info, err := a.oauth.VerifyAccessToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidToken) {
			writeError(w, r, http.StatusUnauthorized, "invalid access token")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	user, err := a.identity.User(r.Context(), info.UserID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		UserID:    user.ID,
		Pubkey:    user.Pubkey,
		ClientID:  info.ClientID,
		Scope:     info.Scope,
		ExpiresAt: info.ExpiresAt,
	})
}

func clientCredentials(r *http.Request) (string, string) {
	if id, secret, ok := r.BasicAuth(); ok {
		return strings.TrimSpace(id), secret
	}
	return strings.TrimSpace(r.PostFormValue("client_id")), r.PostFormValue("client_secret")
}
