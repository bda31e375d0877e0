package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"hodlxxi.org/internal/audit"
	"hodlxxi.org/internal/identity"
	"hodlxxi.org/internal/lnurl"
	"hodlxxi.org/internal/obs"
)

type loginStartResponse struct {
	SessionID string    `json:"session_id"`
	LNURL     string    `json:"lnurl"`
	K1        string    `json:"k1"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleLoginStart mints a login challenge and returns the
// LNURL-encoded callback for the wallet to scan.
func (a *API) handleLoginStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	challenge, encoded, err := a.login.CreateChallenge(r.Context(), "", a.baseURL+"/v1/lnurl/callback")
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "lnurl.challenge.created", map[string]any{
		"session_id": challenge.SessionID,
	})
	writeJSON(w, http.StatusOK, loginStartResponse{
		SessionID: challenge.SessionID,
		LNURL:     encoded,
		K1:        challenge.K1,
		ExpiresAt: challenge.ExpiresAt,
	})
}

// handleLoginCallback is the LUD-04 wallet callback. The wire format is
// fixed by the spec: GET with k1, sig and key query parameters,
// answered with {"status":"OK"} or {"status":"ERROR","reason":...}.
func (a *API) handleLoginCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	q := r.URL.Query()
	k1 := q.Get("k1")
	sig := q.Get("sig")
	key := q.Get("key")
	if k1 == "" || sig == "" || key == "" {
		writeLUD04Error(w, "missing k1, sig or key")
		return
	}

	user, err := a.login.Verify(r.Context(), k1, key, sig)
	if err != nil {
		obs.RecordAuthOutcome("lnurl", "denied")
		switch {
		case errors.Is(err, lnurl.ErrNotFound):
			writeLUD04Error(w, "unknown challenge")
		case errors.Is(err, lnurl.ErrExpired):
			writeLUD04Error(w, "challenge expired")
		case errors.Is(err, lnurl.ErrAlreadyVerified):
			writeLUD04Error(w, "challenge already used")
		case errors.Is(err, lnurl.ErrBadSignature), errors.Is(err, identity.ErrInvalidPubkey):
			writeLUD04Error(w, "signature verification failed")
		default:
			writeLUD04Error(w, "internal error")
		}
		return
	}

	ctx := audit.WithActor(r.Context(), user.Pubkey)
	_ = audit.LogEvent(ctx, "lnurl.login.verified", map[string]any{
		"user_id": user.ID,
	})
	obs.RecordAuthOutcome("lnurl", "verified")
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func writeLUD04Error(w http.ResponseWriter, reason string) {
	// Wallets only inspect the body; LUD-04 errors still travel as 200.
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ERROR",
		"reason": reason,
	})
}

type loginPollResponse struct {
	Status       string    `json:"status"`
	UserID       string    `json:"user_id,omitempty"`
	SessionToken string    `json:"session_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
}

// handleLoginPoll reports challenge state to the waiting browser and,
// once the wallet has verified, hands over a signed session token.
func (a *API) handleLoginPoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sessionID := strings.TrimPrefix(r.URL.Path, "/v1/lnurl/sessions/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	result, err := a.login.Poll(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, lnurl.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "unknown session")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	resp := loginPollResponse{Status: string(result.Status), UserID: result.UserID}
	if result.Status == lnurl.StatusVerified && a.sessions != nil {
		user, err := a.identity.User(r.Context(), result.UserID)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		token, expiresAt, err := a.sessions.Generate(user.ID, user.Pubkey)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		resp.SessionToken = token
		resp.ExpiresAt = expiresAt
		// Single consumption: the challenge dies with the handover, so
		// later polls answer 404 instead of minting more tokens.
		if err := a.login.Consume(r.Context(), sessionID); err != nil {
			obs.LogRequest(map[string]any{
				"event":      "lnurl.consume_failed",
				"session_id": sessionID,
				"error":      err.Error(),
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type logoutRequest struct {
	SessionID string `json:"session_id"`
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req logoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(w, r, http.StatusBadRequest, "session_id is required")
		return
	}
	if err := a.identity.Logout(r.Context(), req.SessionID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "session.logout", map[string]any{
		"session_id": req.SessionID,
	})
	w.WriteHeader(http.StatusNoContent)
}
