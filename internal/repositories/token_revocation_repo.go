package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/propertyhub/internal/database"
)

type TokenRevocationRepository struct {
	db database.Querier
}

func NewTokenRevocationRepository(db database.Querier) *TokenRevocationRepository {
	return &TokenRevocationRepository{db: db}
}

// RevokeToken adds a token to the revocation list. Revoking the same jti
// twice is not an error.
func (r *TokenRevocationRepository) RevokeToken(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error {
	query := `
		INSERT INTO revoked_tokens (id, jti, user_id, token_type, expires_at, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (jti) DO NOTHING`

	_, err := r.db.Exec(ctx, query, uuid.New().String(), jti, userID, tokenType, expiresAt, reason)
	return database.MapPostgresError(err)
}

func (r *TokenRevocationRepository) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = $1)`, jti).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return exists, nil
}

// CleanupExpiredTokens removes revocations for tokens that have expired anyway.
func (r *TokenRevocationRepository) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at < $1`, time.Now())
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
