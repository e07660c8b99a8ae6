package postgres

import (
	"context"
	"errors"

	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// TokenRepo implements RefreshTokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs a refresh token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

// Save stores a token hash.
func (r *TokenRepo) Save(ctx context.Context, t *model.RefreshToken) error {
	const q = `
INSERT INTO refresh_tokens (token_hash, user_id, device_id, expires_at)
VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, t.TokenHash, t.UserID, t.DeviceID, t.ExpiresAt)
	return err
}

// Get loads a token by hash.
func (r *TokenRepo) Get(ctx context.Context, tokenHash []byte) (*model.RefreshToken, error) {
	const q = `
SELECT token_hash, user_id, device_id, expires_at, created_at
FROM refresh_tokens WHERE token_hash=$1`
	var t model.RefreshToken
	err := r.db.Pool.QueryRow(ctx, q, tokenHash).Scan(&t.TokenHash, &t.UserID, &t.DeviceID, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// DeleteForDevice removes all tokens of (userID, deviceID).
func (r *TokenRepo) DeleteForDevice(ctx context.Context, userID uuid.UUID, deviceID string) (int64, error) {
	const q = `DELETE FROM refresh_tokens WHERE user_id=$1 AND device_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, deviceID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
