package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PostgresRefreshStore keeps refresh tokens in the refresh_tokens table,
// addressed by the SHA-256 digest of the token value.
type PostgresRefreshStore struct {
	db  *sql.DB
	cfg SessionConfig
}

func NewPostgresRefreshStore(db *sql.DB, cfg SessionConfig) *PostgresRefreshStore {
	return &PostgresRefreshStore{db: db, cfg: cfg.withDefaults()}
}

func (r *PostgresRefreshStore) Create(ctx context.Context, userID string) (RefreshTokenRecord, error) {
	record, err := newRefreshRecord(r.cfg, userID)
	if err != nil {
		return RefreshTokenRecord{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return RefreshTokenRecord{}, fmt.Errorf("generate refresh token id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, is_revoked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $5)
	`, id.String(), userID, tokenDigest(record.Token), record.ExpiresAt, record.CreatedAt)
	if err != nil {
		return RefreshTokenRecord{}, fmt.Errorf("insert refresh token: %w", err)
	}

	return record, nil
}

func (r *PostgresRefreshStore) FindByToken(ctx context.Context, token string) (*RefreshTokenRecord, error) {
	record := RefreshTokenRecord{Token: token}
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, expires_at, is_revoked, created_at, updated_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenDigest(token)).Scan(&record.UserID, &record.ExpiresAt, &record.IsRevoked, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read refresh token: %w", err)
	}

	record.ExpiresAt = record.ExpiresAt.UTC()
	return &record, nil
}

func (r *PostgresRefreshStore) Revoke(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET is_revoked = TRUE, updated_at = $2
		WHERE token_hash = $1 AND is_revoked = FALSE
	`, tokenDigest(token), r.cfg.now())
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}

func (r *PostgresRefreshStore) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET is_revoked = TRUE, updated_at = $2
		WHERE user_id = $1 AND is_revoked = FALSE
	`, userID, r.cfg.now())
	if err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}

	return nil
}

// PurgeExpired deletes expired rows in batches until a batch comes back short.
func (r *PostgresRefreshStore) PurgeExpired(ctx context.Context) (int64, error) {
	var total int64
	for {
		deleted, err := r.deleteExpiredBatch(ctx)
		if err != nil {
			return total, err
		}
		total += deleted
		if deleted < int64(r.cfg.PurgeBatchSize) {
			return total, nil
		}
	}
}

func (r *PostgresRefreshStore) deleteExpiredBatch(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM refresh_tokens
			WHERE expires_at < $1
			ORDER BY expires_at ASC
			LIMIT $2
		)
		DELETE FROM refresh_tokens t
		USING stale
		WHERE t.id = stale.id
	`, r.cfg.now(), r.cfg.PurgeBatchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired refresh tokens rows affected: %w", err)
	}

	return affected, nil
}
