package postgres

import (
	"context"
	"errors"

	"github.com/MrEthical07/goMFA"
	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
)

// UserRepository reads and writes enrolled secrets in user_two_factor.
type UserRepository struct {
	pool Pool
}

var _ goMFA.UserProvider = (*UserRepository)(nil)

// NewUserRepository creates a repository over pool.
func NewUserRepository(pool Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// UpsertUser registers userID with its login identifier. An existing
// enrollment is kept.
func (r *UserRepository) UpsertUser(ctx context.Context, userID, identifier string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_two_factor (user_id, identifier)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET identifier = $2, updated_at = now()`,
		userID, identifier)
	if err != nil {
		return oops.Code("USER_UPSERT_FAILED").With("operation", "upsert user").With("user_id", userID).Wrap(err)
	}
	return nil
}

// GetUser returns goMFA.ErrUserMissing for unknown users.
func (r *UserRepository) GetUser(ctx context.Context, userID string) (*goMFA.UserRecord, error) {
	rec := &goMFA.UserRecord{}
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, identifier, COALESCE(two_factor_secret, '')
		 FROM user_two_factor WHERE user_id = $1`,
		userID).Scan(&rec.UserID, &rec.Identifier, &rec.TwoFactorSecret)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, goMFA.ErrUserMissing
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("operation", "get user").With("user_id", userID).Wrap(err)
	}
	return rec, nil
}

// SetTwoFactorSecret overwrites any existing enrollment.
func (r *UserRepository) SetTwoFactorSecret(ctx context.Context, userID, secretBase32 string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_two_factor SET two_factor_secret = $2, updated_at = now() WHERE user_id = $1`,
		userID, secretBase32)
	if err != nil {
		return oops.Code("USER_SET_SECRET_FAILED").With("operation", "set two-factor secret").With("user_id", userID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return goMFA.ErrUserMissing
	}
	return nil
}

// ClearTwoFactorSecret removes the enrollment. Clearing an unenrolled user
// succeeds.
func (r *UserRepository) ClearTwoFactorSecret(ctx context.Context, userID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_two_factor SET two_factor_secret = NULL, updated_at = now() WHERE user_id = $1`,
		userID)
	if err != nil {
		return oops.Code("USER_CLEAR_SECRET_FAILED").With("operation", "clear two-factor secret").With("user_id", userID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return goMFA.ErrUserMissing
	}
	return nil
}

// CountEnrolled reports how many users have an enrolled secret.
func (r *UserRepository) CountEnrolled(ctx context.Context) (int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT count(*) FROM user_two_factor WHERE two_factor_secret IS NOT NULL`)
	if err != nil {
		return 0, oops.Code("USER_COUNT_FAILED").With("operation", "count enrolled users").Wrap(err)
	}
	defer rows.Close()

	var n int64
	for rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, oops.Code("USER_COUNT_FAILED").With("operation", "scan enrolled count").Wrap(err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, oops.Code("USER_COUNT_FAILED").With("operation", "iterate enrolled count").Wrap(err)
	}
	return n, nil
}
