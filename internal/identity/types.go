package identity

import "time"

// User is a Bitcoin-pubkey-based identity. The compressed public key is
// the durable anchor; one User exists per pubkey.
type User struct {
	ID        string
	Pubkey    string
	CreatedAt time.Time
	LastLogin time.Time
	Active    bool
}

// Session binds a browser or API session to a user after authentication.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"` // "web", "lnurl-auth" or "api"
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
