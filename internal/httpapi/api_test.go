package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"hodlxxi.org/internal/btcsig"
	"hodlxxi.org/internal/identity"
	"hodlxxi.org/internal/lnurl"
	"hodlxxi.org/internal/oauth"
	"hodlxxi.org/internal/pof"
	"hodlxxi.org/internal/store/memory"
)

// stubValueSource serves fixed output values keyed by "txid:vout".
type stubValueSource map[string]int64

func (s stubValueSource) OutputValue(_ context.Context, txid string, vout uint32) (int64, error) {
	return s[fmt.Sprintf("%s:%d", txid, vout)], nil
}

type testEnv struct {
	api      *API
	identity *identity.Service
	sessions *identity.TokenIssuer
	values   stubValueSource

	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.New()
	idSvc := identity.NewService(store.Users, store.Sessions)
	issuer, err := identity.NewTokenIssuer("test-secret-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	oauthSvc := oauth.NewService(store.Clients, store.Codes, store.Tokens)
	loginSvc := lnurl.NewService(store.LoginChallenge, idSvc, btcsig.LinkingKeyVerifier{})
	values := stubValueSource{}
	fundsSvc := pof.NewService(store.FundsChallenge, btcsig.MessageVerifier{}, values)

	env := &testEnv{
		identity: idSvc,
		sessions: issuer,
		values:   values,
		t:        t,
	}

	api := New("https://auth.example", idSvc, issuer, oauthSvc, loginSvc, fundsSvc, WithVersion("test"))
	env.api = api
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	env.baseURL = srv.URL
	env.client = srv.Client()
	return env
}

func (e *testEnv) do(req *http.Request) *http.Response {
	e.t.Helper()
	resp, err := e.client.Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	return resp
}

func (e *testEnv) postJSON(path string, body any, headers map[string]string) *http.Response {
	e.t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		e.t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, e.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return e.do(req)
}

func (e *testEnv) postForm(path string, form url.Values, clientID, clientSecret string) *http.Response {
	e.t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if clientID != "" {
		req.SetBasicAuth(clientID, clientSecret)
	}
	return e.do(req)
}

func (e *testEnv) get(path string, headers map[string]string) *http.Response {
	e.t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.baseURL+path, nil)
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return e.do(req)
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		t.Fatalf("decode body %q: %v", data, err)
	}
}

// sessionTokenFor logs a user in directly through the identity service
// and returns a signed web session token.
func (e *testEnv) sessionTokenFor(pubkey string) (string, string) {
	e.t.Helper()
	user, err := e.identity.Resolve(context.Background(), pubkey)
	if err != nil {
		e.t.Fatalf("Resolve: %v", err)
	}
	token, _, err := e.sessions.Generate(user.ID, user.Pubkey)
	if err != nil {
		e.t.Fatalf("Generate: %v", err)
	}
	return token, user.ID
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get("/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}
	decodeBody(t, resp, &body)
	if body.Status != "ok" || body.Service != "hodlxxi-api" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatal("expected a request id header")
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get("/v1/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}
