// Package memory provides mutex-guarded in-memory implementations of
// every store interface in the identity, oauth, lnurl and pof packages.
// It backs single-process deployments and tests; records are copied on
// the way in and out, so callers never share memory with the store.
package memory

import (
	"hodlxxi.org/internal/identity"
	"hodlxxi.org/internal/lnurl"
	"hodlxxi.org/internal/oauth"
	"hodlxxi.org/internal/pof"
)

var (
	_ identity.UserStore    = (*UserStore)(nil)
	_ identity.SessionStore = (*SessionStore)(nil)
	_ oauth.ClientStore     = (*ClientStore)(nil)
	_ oauth.CodeStore       = (*CodeStore)(nil)
	_ oauth.TokenStore      = (*TokenStore)(nil)
	_ lnurl.ChallengeStore  = (*LoginChallengeStore)(nil)
	_ pof.ChallengeStore    = (*FundsChallengeStore)(nil)
)

// Store bundles one in-memory implementation per persistence interface.
type Store struct {
	Users          *UserStore
	Sessions       *SessionStore
	Clients        *ClientStore
	Codes          *CodeStore
	Tokens         *TokenStore
	LoginChallenge *LoginChallengeStore
	FundsChallenge *FundsChallengeStore
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		Users:          NewUserStore(),
		Sessions:       NewSessionStore(),
		Clients:        NewClientStore(),
		Codes:          NewCodeStore(),
		Tokens:         NewTokenStore(),
		LoginChallenge: NewLoginChallengeStore(),
		FundsChallenge: NewFundsChallengeStore(),
	}
}
