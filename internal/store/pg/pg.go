// Package pg implements every persistence interface of the identity,
// oauth, lnurl and pof packages on PostgreSQL through database/sql and
// the pgx stdlib driver. Single-use and verify-once semantics live in
// SQL: codes are consumed with delete returning, challenge flags flip
// with a guarded update, so correctness does not depend on Go-side
// locking.
package pg

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const pgErrUniqueViolation = "23505"

// Store owns the connection pool and hands out per-domain stores.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL with pool settings sized for the API
// workload.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection, used by tests with sqlmock.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Users returns the user store.
func (s *Store) Users() *UserStore { return &UserStore{db: s.db} }

// Sessions returns the session store.
func (s *Store) Sessions() *SessionStore { return &SessionStore{db: s.db} }

// Clients returns the OAuth client store.
func (s *Store) Clients() *ClientStore { return &ClientStore{db: s.db} }

// Codes returns the authorization code store.
func (s *Store) Codes() *CodeStore { return &CodeStore{db: s.db} }

// Tokens returns the token pair store.
func (s *Store) Tokens() *TokenStore { return &TokenStore{db: s.db} }

// LoginChallenges returns the LNURL-auth challenge store.
func (s *Store) LoginChallenges() *LoginChallengeStore { return &LoginChallengeStore{db: s.db} }

// FundsChallenges returns the proof-of-funds challenge store.
func (s *Store) FundsChallenges() *FundsChallengeStore { return &FundsChallengeStore{db: s.db} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}
