package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"hodlxxi.org/internal/audit"
	"hodlxxi.org/internal/identity"
	"hodlxxi.org/internal/obs"
	"hodlxxi.org/internal/pof"
)

type createFundsChallengeRequest struct {
	Pubkey       string `json:"pubkey"`
	ThresholdSat int64  `json:"threshold_sats"`
	PrivacyLevel string `json:"privacy_level"`
}

type fundsChallengeResponse struct {
	ID           string    `json:"id"`
	Pubkey       string    `json:"pubkey"`
	Message      string    `json:"message"`
	ThresholdSat int64     `json:"threshold_sats"`
	PrivacyLevel string    `json:"privacy_level"`
	ExpiresAt    time.Time `json:"expires_at"`
	Verified     bool      `json:"verified"`
}

func (a *API) handleFundsChallenges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createFundsChallengeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	challenge, err := a.funds.CreateChallenge(r.Context(), req.Pubkey, req.ThresholdSat, pof.PrivacyLevel(req.PrivacyLevel))
	if err != nil {
		switch {
		case errors.Is(err, pof.ErrInvalidPrivacyLevel):
			writeError(w, r, http.StatusBadRequest, "privacy_level must be boolean, threshold or aggregate")
		case errors.Is(err, identity.ErrInvalidPubkey):
			writeError(w, r, http.StatusBadRequest, "invalid pubkey")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	ctx := audit.WithActor(r.Context(), challenge.Pubkey)
	_ = audit.LogEvent(ctx, "pof.challenge.created", map[string]any{
		"challenge_id":  challenge.ID,
		"privacy_level": string(challenge.Privacy),
	})
	writeJSON(w, http.StatusCreated, fundsChallengeView(challenge))
}

func (a *API) handleFundsChallenge(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/pof/challenges/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if id, ok := strings.CutSuffix(path, "/verify"); ok {
		id = strings.TrimSuffix(id, "/")
		if id == "" || strings.Contains(id, "/") {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.verifyFundsChallenge(w, r, id)
		return
	}
	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	challenge, err := a.funds.Challenge(r.Context(), path)
	if err != nil {
		if errors.Is(err, pof.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "unknown challenge")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, fundsChallengeView(challenge))
}

type verifyFundsRequest struct {
	Proof pof.Proof `json:"proof"`
}

type verifyFundsResponse struct {
	ChallengeID string      `json:"challenge_id"`
	Result      *pof.Result `json:"result"`
}

func (a *API) verifyFundsChallenge(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req verifyFundsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.funds.VerifyProof(r.Context(), id, req.Proof)
	if err != nil {
		obs.RecordAuthOutcome("pof", "denied")
		switch {
		case errors.Is(err, pof.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "unknown challenge")
		case errors.Is(err, pof.ErrExpired):
			writeError(w, r, http.StatusGone, "challenge expired")
		case errors.Is(err, pof.ErrAlreadyVerified):
			writeError(w, r, http.StatusConflict, "challenge already settled")
		case errors.Is(err, pof.ErrBadSignature):
			writeError(w, r, http.StatusUnauthorized, "signature verification failed")
		case errors.Is(err, pof.ErrInvalidProof):
			writeError(w, r, http.StatusBadRequest, "invalid proof payload")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "pof.proof.verified", map[string]any{
		"challenge_id": id,
		"passed":       result.Passed,
	})
	if result.Passed {
		obs.RecordAuthOutcome("pof", "passed")
	} else {
		obs.RecordAuthOutcome("pof", "failed")
	}
	writeJSON(w, http.StatusOK, verifyFundsResponse{ChallengeID: id, Result: result})
}

func fundsChallengeView(c *pof.Challenge) fundsChallengeResponse {
	return fundsChallengeResponse{
		ID:           c.ID,
		Pubkey:       c.Pubkey,
		Message:      c.Message,
		ThresholdSat: c.Threshold,
		PrivacyLevel: string(c.Privacy),
		ExpiresAt:    c.ExpiresAt,
		Verified:     c.Verified,
	}
}
