package postgres

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/MrEthical07/goMFA"
	"github.com/MrEthical07/goMFA/internal"
	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
)

// ChallengeStore keeps pending challenges in pending_two_factor_challenges.
//
// Secrets are stored as hex SHA-256 digests. A NULL digest means the
// challenge was issued without a secret; IS NOT DISTINCT FROM keeps the
// absent and present cases from ever matching each other.
type ChallengeStore struct {
	pool   Pool
	window time.Duration
	now    func() time.Time
}

var (
	_ goMFA.ChallengeStore          = (*ChallengeStore)(nil)
	_ goMFA.ChallengeClaimer        = (*ChallengeStore)(nil)
	_ goMFA.ExpiredChallengeSweeper = (*ChallengeStore)(nil)
)

// NewChallengeStore returns a store treating rows older than window as
// absent. now defaults to time.Now.
func NewChallengeStore(pool Pool, window time.Duration, now func() time.Time) *ChallengeStore {
	if now == nil {
		now = time.Now
	}
	return &ChallengeStore{pool: pool, window: window, now: now}
}

// Store upserts the challenge and restarts its window.
func (s *ChallengeStore) Store(ctx context.Context, token string, payload []byte, secret *string) error {
	if token == "" {
		return &goMFA.Error{Kind: goMFA.KindValidation, Op: "postgres.store", Err: errors.New("empty challenge token")}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pending_two_factor_challenges (token, secret_hash, payload, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (token) DO UPDATE
		 SET secret_hash = EXCLUDED.secret_hash, payload = EXCLUDED.payload, created_at = EXCLUDED.created_at`,
		token, secretArg(secret), payload, s.now().UTC())
	if err != nil {
		return oops.Code("CHALLENGE_STORE_FAILED").With("operation", "store challenge").Wrap(err)
	}
	return nil
}

// Retrieve returns the payload of a live challenge matching token and secret.
func (s *ChallengeStore) Retrieve(ctx context.Context, token string, secret *string) ([]byte, error) {
	if token == "" {
		return nil, goMFA.ErrChallengeNotFound
	}

	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM pending_two_factor_challenges
		 WHERE token = $1 AND secret_hash IS NOT DISTINCT FROM $2 AND created_at > $3`,
		token, secretArg(secret), s.cutoff()).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, goMFA.ErrChallengeNotFound
	}
	if err != nil {
		return nil, oops.Code("CHALLENGE_RETRIEVE_FAILED").With("operation", "retrieve challenge").Wrap(err)
	}
	return payload, nil
}

// Remove deletes the row matching token and secret, live or expired.
func (s *ChallengeStore) Remove(ctx context.Context, token string, secret *string) error {
	if token == "" {
		return nil
	}

	_, err := s.pool.Exec(ctx,
		`DELETE FROM pending_two_factor_challenges
		 WHERE token = $1 AND secret_hash IS NOT DISTINCT FROM $2`,
		token, secretArg(secret))
	if err != nil {
		return oops.Code("CHALLENGE_REMOVE_FAILED").With("operation", "remove challenge").Wrap(err)
	}
	return nil
}

// Claim deletes a live matching row and reports whether this call deleted it.
func (s *ChallengeStore) Claim(ctx context.Context, token string, secret *string) (bool, error) {
	if token == "" {
		return false, nil
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM pending_two_factor_challenges
		 WHERE token = $1 AND secret_hash IS NOT DISTINCT FROM $2 AND created_at > $3`,
		token, secretArg(secret), s.cutoff())
	if err != nil {
		return false, oops.Code("CHALLENGE_CLAIM_FAILED").With("operation", "claim challenge").Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteExpired removes every row created at or before cutoff.
func (s *ChallengeStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM pending_two_factor_challenges WHERE created_at <= $1`,
		cutoff.UTC())
	if err != nil {
		return 0, oops.Code("CHALLENGE_SWEEP_FAILED").With("operation", "delete expired challenges").With("cutoff", cutoff).Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func (s *ChallengeStore) cutoff() time.Time {
	return s.now().Add(-s.window).UTC()
}

func secretArg(secret *string) any {
	if secret == nil {
		return nil
	}
	sum := internal.HashSecret(*secret)
	return hex.EncodeToString(sum[:])
}
