package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hodlxxi.org/internal/lnurl"
	"hodlxxi.org/internal/pof"
)

// LoginChallengeStore persists LNURL-auth challenges. MarkVerified is a
// guarded update on the verified flag; rows affected decides who won.
type LoginChallengeStore struct {
	db *sql.DB
}

var _ lnurl.ChallengeStore = (*LoginChallengeStore)(nil)

func (s *LoginChallengeStore) Create(ctx context.Context, c *lnurl.Challenge) error {
	_, err := s.db.ExecContext(ctx, `
		insert into login_challenges (session_id, k1, pubkey, created_at, expires_at, verified, callback_url)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, c.SessionID, c.K1, c.Pubkey, c.CreatedAt, c.ExpiresAt, c.Verified, c.CallbackURL)
	if isUniqueViolation(err) {
		return lnurl.ErrAlreadyExists
	}
	return err
}

func (s *LoginChallengeStore) FindByK1(ctx context.Context, k1 string) (*lnurl.Challenge, error) {
	return s.scanChallenge(s.db.QueryRowContext(ctx, `
		select session_id, k1, pubkey, created_at, expires_at, verified_at, verified, callback_url
		from login_challenges where k1 = $1
	`, k1))
}

func (s *LoginChallengeStore) FindBySession(ctx context.Context, sessionID string) (*lnurl.Challenge, error) {
	return s.scanChallenge(s.db.QueryRowContext(ctx, `
		select session_id, k1, pubkey, created_at, expires_at, verified_at, verified, callback_url
		from login_challenges where session_id = $1
	`, sessionID))
}

func (s *LoginChallengeStore) MarkVerified(ctx context.Context, sessionID, pubkey string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update login_challenges
		set verified = true, pubkey = $2, verified_at = $3
		where session_id = $1 and not verified
	`, sessionID, pubkey, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *LoginChallengeStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `delete from login_challenges where session_id = $1`, sessionID)
	return err
}

func (s *LoginChallengeStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	return deleteExpired(ctx, s.db, `delete from login_challenges where expires_at < $1`, before)
}

func (s *LoginChallengeStore) scanChallenge(row *sql.Row) (*lnurl.Challenge, error) {
	var (
		c          lnurl.Challenge
		verifiedAt sql.NullTime
	)
	err := row.Scan(&c.SessionID, &c.K1, &c.Pubkey, &c.CreatedAt, &c.ExpiresAt, &verifiedAt, &c.Verified, &c.CallbackURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lnurl.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		c.VerifiedAt = verifiedAt.Time
	}
	return &c, nil
}

// FundsChallengeStore persists proof-of-funds challenges; proof and
// result documents are stored as jsonb alongside the verified flag so
// the settle is one guarded update.
type FundsChallengeStore struct {
	db *sql.DB
}

var _ pof.ChallengeStore = (*FundsChallengeStore)(nil)

func (s *FundsChallengeStore) Create(ctx context.Context, c *pof.Challenge) error {
	_, err := s.db.ExecContext(ctx, `
		insert into funds_challenges (id, pubkey, message, threshold, privacy, created_at, expires_at, verified)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.ID, c.Pubkey, c.Message, c.Threshold, string(c.Privacy), c.CreatedAt, c.ExpiresAt, c.Verified)
	if isUniqueViolation(err) {
		return pof.ErrAlreadyExists
	}
	return err
}

func (s *FundsChallengeStore) Find(ctx context.Context, id string) (*pof.Challenge, error) {
	var (
		c          pof.Challenge
		privacy    string
		verifiedAt sql.NullTime
		proofDoc   []byte
		resultDoc  []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select id, pubkey, message, threshold, privacy, created_at, expires_at, verified_at, verified, proof, result
		from funds_challenges where id = $1
	`, id).Scan(&c.ID, &c.Pubkey, &c.Message, &c.Threshold, &privacy, &c.CreatedAt, &c.ExpiresAt, &verifiedAt, &c.Verified, &proofDoc, &resultDoc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pof.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Privacy = pof.PrivacyLevel(privacy)
	if verifiedAt.Valid {
		c.VerifiedAt = verifiedAt.Time
	}
	if len(proofDoc) > 0 {
		c.Proof = &pof.Proof{}
		if err := json.Unmarshal(proofDoc, c.Proof); err != nil {
			return nil, fmt.Errorf("decode proof: %w", err)
		}
	}
	if len(resultDoc) > 0 {
		c.Result = &pof.Result{}
		if err := json.Unmarshal(resultDoc, c.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	return &c, nil
}

func (s *FundsChallengeStore) MarkVerified(ctx context.Context, id string, proof *pof.Proof, result *pof.Result, at time.Time) (bool, error) {
	var proofDoc, resultDoc []byte
	var err error
	if proof != nil {
		if proofDoc, err = json.Marshal(proof); err != nil {
			return false, fmt.Errorf("marshal proof: %w", err)
		}
	}
	if result != nil {
		if resultDoc, err = json.Marshal(result); err != nil {
			return false, fmt.Errorf("marshal result: %w", err)
		}
	}
	res, err := s.db.ExecContext(ctx, `
		update funds_challenges
		set verified = true, verified_at = $2, proof = $3, result = $4
		where id = $1 and not verified
	`, id, at, proofDoc, resultDoc)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *FundsChallengeStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	return deleteExpired(ctx, s.db, `delete from funds_challenges where expires_at < $1`, before)
}
