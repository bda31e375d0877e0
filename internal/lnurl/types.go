package lnurl

import "time"

// Challenge is a LUD-04 login challenge. It starts unverified, becomes
// verified at most once when a wallet signs k1, and is expired purely by
// comparing ExpiresAt to the clock at read time.
type Challenge struct {
	SessionID   string    `json:"session_id"`
	K1          string    `json:"k1"`               // 32 random bytes, hex
	Pubkey      string    `json:"pubkey,omitempty"` // linking key, set by verification
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	VerifiedAt  time.Time `json:"verified_at,omitzero"`
	Verified    bool      `json:"verified"`
	CallbackURL string    `json:"callback_url"`
}

// Status of a challenge as observed by the polling browser session.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusExpired  Status = "expired"
)

// PollResult is the read-only answer to a poll call.
type PollResult struct {
	Status Status
	UserID string
}
