// Package httpapi is the HTTP surface of the service: OAuth2 endpoints,
// the LNURL-auth login flow, proof-of-funds challenges and the
// operational probes.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"hodlxxi.org/internal/identity"
	"hodlxxi.org/internal/lnurl"
	"hodlxxi.org/internal/oauth"
	"hodlxxi.org/internal/obs"
	"hodlxxi.org/internal/pof"
)

// ReadyProbe reports readiness, typically by pinging the database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API wires the services to the HTTP routes.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	// baseURL is the externally reachable origin used to build the
	// LNURL callback handed to wallets.
	baseURL string

	identity *identity.Service
	sessions *identity.TokenIssuer
	oauth    *oauth.Service
	login    *lnurl.Service
	funds    *pof.Service

	maxBodyBytes int64
}

// Option configures the API.
type Option func(*API)

// WithVersion sets the version string reported by the probes.
func WithVersion(version string) Option {
	return func(a *API) { a.version = version }
}

// WithReadyProbe sets the readiness probe.
func WithReadyProbe(rp ReadyProbe) Option {
	return func(a *API) { a.readyProbe = rp }
}

// WithMaxBodyBytes overrides the request body limit.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// New constructs the API around the domain services. baseURL must be
// the absolute external origin, without a trailing slash.
func New(baseURL string, idSvc *identity.Service, sessions *identity.TokenIssuer, oauthSvc *oauth.Service, loginSvc *lnurl.Service, fundsSvc *pof.Service, opts ...Option) *API {
	a := &API{
		mux:          http.NewServeMux(),
		version:      "dev",
		baseURL:      baseURL,
		identity:     idSvc,
		sessions:     sessions,
		oauth:        oauthSvc,
		login:        loginSvc,
		funds:        fundsSvc,
		maxBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/oauth/clients", a.handleRegisterClient)
	a.mux.HandleFunc("/v1/oauth/authorize", a.handleAuthorize)
	a.mux.HandleFunc("/v1/oauth/token", a.handleToken)
	a.mux.HandleFunc("/v1/oauth/revoke", a.handleRevoke)
	a.mux.HandleFunc("/v1/me", a.handleMe)

	a.mux.HandleFunc("/v1/lnurl/login", a.handleLoginStart)
	a.mux.HandleFunc("/v1/lnurl/callback", a.handleLoginCallback)
	a.mux.HandleFunc("/v1/lnurl/sessions/", a.handleLoginPoll)
	a.mux.HandleFunc("/v1/logout", a.handleLogout)

	a.mux.HandleFunc("/v1/pof/challenges", a.handleFundsChallenges)
	a.mux.HandleFunc("/v1/pof/challenges/", a.handleFundsChallenge)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = RequestID(h)
	return h
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "hodlxxi-api",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
