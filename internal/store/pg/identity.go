package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"hodlxxi.org/internal/identity"
)

// UserStore persists users; the unique index on pubkey is what turns a
// concurrent first login into one create and one ErrAlreadyExists.
type UserStore struct {
	db *sql.DB
}

var _ identity.UserStore = (*UserStore)(nil)

func (s *UserStore) Create(ctx context.Context, u *identity.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, pubkey, created_at, last_login, active)
		values ($1, $2, $3, $4, $5)
	`, u.ID, u.Pubkey, u.CreatedAt, nullTime(u.LastLogin), u.Active)
	if isUniqueViolation(err) {
		return identity.ErrAlreadyExists
	}
	return err
}

func (s *UserStore) Find(ctx context.Context, id string) (*identity.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, pubkey, created_at, last_login, active
		from users where id = $1
	`, id))
}

func (s *UserStore) FindByPubkey(ctx context.Context, pubkey string) (*identity.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, pubkey, created_at, last_login, active
		from users where pubkey = $1
	`, pubkey))
}

func (s *UserStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `update users set last_login = $2 where id = $1`, id, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func (s *UserStore) scanUser(row *sql.Row) (*identity.User, error) {
	var (
		u         identity.User
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Pubkey, &u.CreatedAt, &lastLogin, &u.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		u.LastLogin = lastLogin.Time
	}
	return &u, nil
}

// SessionStore persists authenticated sessions.
type SessionStore struct {
	db *sql.DB
}

var _ identity.SessionStore = (*SessionStore)(nil)

func (s *SessionStore) Create(ctx context.Context, sess *identity.Session) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (id, user_id, kind, created_at, expires_at)
		values ($1, $2, $3, $4, $5)
	`, sess.ID, sess.UserID, sess.Kind, sess.CreatedAt, sess.ExpiresAt)
	if isUniqueViolation(err) {
		return identity.ErrAlreadyExists
	}
	return err
}

func (s *SessionStore) Find(ctx context.Context, id string) (*identity.Session, error) {
	var sess identity.Session
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, kind, created_at, expires_at
		from sessions where id = $1
	`, id).Scan(&sess.ID, &sess.UserID, &sess.Kind, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `delete from sessions where id = $1`, id)
	return err
}

func (s *SessionStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	return deleteExpired(ctx, s.db, `delete from sessions where expires_at < $1`, before)
}

func deleteExpired(ctx context.Context, db *sql.DB, query string, before time.Time) (int, error) {
	res, err := db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
