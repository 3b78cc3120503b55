package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/pazpaz/backend/internal/apperr"
)

// MagicLinkRepo persists the one-time magic-link token rows
// internal/identity.MagicLinkIssuer issues and redeems.
type MagicLinkRepo struct{ db *DB }

func NewMagicLinkRepo(database *DB) *MagicLinkRepo { return &MagicLinkRepo{db: database} }

func (r *MagicLinkRepo) Create(ctx context.Context, tokenID string, secretHash []byte, email string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO magic_link_tokens (token_id, secret_hash, email, expires_at, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		tokenID, secretHash, email, expiresAt)
	return err
}

// Redeem atomically loads and deletes the token row in one
// statement, so a second concurrent Redeem call for the same
// token_id always sees zero rows — a magic link can be spent exactly
// once regardless of request race.
func (r *MagicLinkRepo) Redeem(ctx context.Context, tokenID string) ([]byte, string, time.Time, error) {
	var secretHash []byte
	var email string
	var expiresAt time.Time
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM magic_link_tokens WHERE token_id = $1
		RETURNING secret_hash, email, expires_at`, tokenID,
	).Scan(&secretHash, &email, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", time.Time{}, apperr.New(apperr.KindNotFound, "magic link token not found")
	}
	return secretHash, email, expiresAt, err
}
