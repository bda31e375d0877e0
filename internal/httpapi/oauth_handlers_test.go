package httpapi

import (
	"net/http"
	"net/url"
	"testing"
)

const (
	testUserPubkey   = "02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5"
	testRedirectURI  = "https://app.example/callback"
	testClientName   = "Demo App"
	testRequestScope = "profile"
)

func registerTestClient(t *testing.T, env *testEnv) (string, string) {
	t.Helper()
	resp := env.postJSON("/v1/oauth/clients", map[string]any{
		"name":          testClientName,
		"redirect_uris": []string{testRedirectURI},
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	var body struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	decodeBody(t, resp, &body)
	if body.ClientID == "" || body.ClientSecret == "" {
		t.Fatal("expected generated credentials")
	}
	return body.ClientID, body.ClientSecret
}

func authorize(t *testing.T, env *testEnv, sessionToken, clientID string, extra map[string]any) *http.Response {
	t.Helper()
	body := map[string]any{
		"response_type": "code",
		"client_id":     clientID,
		"redirect_uri":  testRedirectURI,
		"scope":         testRequestScope,
		"state":         "xyz",
	}
	for k, v := range extra {
		body[k] = v
	}
	return env.postJSON("/v1/oauth/authorize", body, map[string]string{
		"Authorization": "Bearer " + sessionToken,
	})
}

func TestAuthorizationCodeFlow(t *testing.T) {
	env := newTestEnv(t)
	clientID, clientSecret := registerTestClient(t, env)
	sessionToken, userID := env.sessionTokenFor(testUserPubkey)

	resp := authorize(t, env, sessionToken, clientID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authorize status = %d", resp.StatusCode)
	}
	var auth struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	decodeBody(t, resp, &auth)
	if auth.Code == "" {
		t.Fatal("expected an authorization code")
	}
	if auth.State != "xyz" {
		t.Fatalf("state = %q, want xyz", auth.State)
	}

	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {auth.Code},
		"redirect_uri": {testRedirectURI},
	}
	resp = env.postForm("/v1/oauth/token", form, clientID, clientSecret)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token status = %d", resp.StatusCode)
	}
	var tokens tokenResponse
	decodeBody(t, resp, &tokens)
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("incomplete token response: %+v", tokens)
	}
	if tokens.TokenType != "Bearer" {
		t.Fatalf("token_type = %q", tokens.TokenType)
	}
	if tokens.ExpiresIn <= 0 {
		t.Fatalf("expires_in = %d", tokens.ExpiresIn)
	}

	resp = env.get("/v1/me", map[string]string{"Authorization": "Bearer " + tokens.AccessToken})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", resp.StatusCode)
	}
	var me meResponse
	decodeBody(t, resp, &me)
	if me.UserID != userID || me.Pubkey != testUserPubkey {
		t.Fatalf("unexpected identity: %+v", me)
	}

	// A consumed code must not exchange twice.
	resp = env.postForm("/v1/oauth/token", form, clientID, clientSecret)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("replay status = %d", resp.StatusCode)
	}
	var oauthErr struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &oauthErr)
	if oauthErr.Error != "invalid_grant" {
		t.Fatalf("error = %q, want invalid_grant", oauthErr.Error)
	}
}

func TestTokenEndpointRejectsBadClientSecret(t *testing.T) {
	env := newTestEnv(t)
	clientID, _ := registerTestClient(t, env)

	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {"whatever"},
		"redirect_uri": {testRedirectURI},
	}
	resp := env.postForm("/v1/oauth/token", form, clientID, "wrong-secret")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}
	resp.Body.Close()
}

func TestAuthorizeRequiresSession(t *testing.T) {
	env := newTestEnv(t)
	clientID, _ := registerTestClient(t, env)

	resp := env.postJSON("/v1/oauth/authorize", map[string]any{
		"response_type": "code",
		"client_id":     clientID,
		"redirect_uri":  testRedirectURI,
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAuthorizeRejectsUnregisteredRedirect(t *testing.T) {
	env := newTestEnv(t)
	clientID, _ := registerTestClient(t, env)
	sessionToken, _ := env.sessionTokenFor(testUserPubkey)

	resp := authorize(t, env, sessionToken, clientID, map[string]any{
		"redirect_uri": "https://evil.example/cb",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var oauthErr struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &oauthErr)
	if oauthErr.Error != "invalid_request" {
		t.Fatalf("error = %q", oauthErr.Error)
	}
}

func TestPKCEFlow(t *testing.T) {
	env := newTestEnv(t)
	clientID, clientSecret := registerTestClient(t, env)
	sessionToken, _ := env.sessionTokenFor(testUserPubkey)

	verifier := "correct-horse-battery-staple-correct-horse"
	resp := authorize(t, env, sessionToken, clientID, map[string]any{
		"code_challenge":        verifier,
		"code_challenge_method": "plain",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authorize status = %d", resp.StatusCode)
	}
	var auth struct {
		Code string `json:"code"`
	}
	decodeBody(t, resp, &auth)

	// Missing verifier fails closed.
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {auth.Code},
		"redirect_uri": {testRedirectURI},
	}
	resp = env.postForm("/v1/oauth/token", form, clientID, clientSecret)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing verifier status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The code was consumed by the failed attempt; a correct verifier
	// afterwards must not succeed either.
	form.Set("code_verifier", verifier)
	resp = env.postForm("/v1/oauth/token", form, clientID, clientSecret)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("post-burn status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRefreshRotationAndRevocation(t *testing.T) {
	env := newTestEnv(t)
	clientID, clientSecret := registerTestClient(t, env)
	sessionToken, _ := env.sessionTokenFor(testUserPubkey)

	resp := authorize(t, env, sessionToken, clientID, nil)
	var auth struct {
		Code string `json:"code"`
	}
	decodeBody(t, resp, &auth)

	resp = env.postForm("/v1/oauth/token", url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {auth.Code},
		"redirect_uri": {testRedirectURI},
	}, clientID, clientSecret)
	var first tokenResponse
	decodeBody(t, resp, &first)

	resp = env.postForm("/v1/oauth/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {first.RefreshToken},
	}, clientID, clientSecret)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	var second tokenResponse
	decodeBody(t, resp, &second)
	if second.AccessToken == first.AccessToken || second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh must rotate both tokens")
	}

	// The old pair is dead after rotation.
	resp = env.get("/v1/me", map[string]string{"Authorization": "Bearer " + first.AccessToken})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old access token status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Revoke the new pair and check the access token dies with it.
	resp = env.postForm("/v1/oauth/revoke", url.Values{
		"token": {second.AccessToken},
	}, clientID, clientSecret)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.get("/v1/me", map[string]string{"Authorization": "Bearer " + second.AccessToken})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked access token status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Revoking an unknown token is still a 200.
	resp = env.postForm("/v1/oauth/revoke", url.Values{
		"token": {"no-such-token"},
	}, clientID, clientSecret)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unknown revoke status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}
