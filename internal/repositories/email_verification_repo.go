package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/BradenHooton/propertyhub/internal/database"
	"github.com/BradenHooton/propertyhub/internal/models"
)

const tokenColumns = `id, user_id, token_hash, email, expires_at, used_at, created_at`

// EmailVerificationRepository handles email verification token data access
type EmailVerificationRepository struct {
	db database.Querier
}

func NewEmailVerificationRepository(db database.Querier) *EmailVerificationRepository {
	return &EmailVerificationRepository{db: db}
}

func scanTokenRow(row rowScanner) (*models.EmailVerificationToken, error) {
	var token models.EmailVerificationToken

	err := row.Scan(
		&token.ID, &token.UserID, &token.TokenHash, &token.Email,
		&token.ExpiresAt, &token.UsedAt, &token.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &token, nil
}

func (r *EmailVerificationRepository) Create(ctx context.Context, userID, tokenHash, email string, expiresAt time.Time) (*models.EmailVerificationToken, error) {
	query := `
		INSERT INTO email_verification_tokens (user_id, token_hash, email, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + tokenColumns

	token, err := scanTokenRow(r.db.QueryRow(ctx, query, userID, tokenHash, email, expiresAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create email verification token: %w", err)
	}

	return token, nil
}

// GetLatestForUser returns the newest token issued to the user, used or not.
func (r *EmailVerificationRepository) GetLatestForUser(ctx context.Context, userID string) (*models.EmailVerificationToken, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM email_verification_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	return scanTokenRow(r.db.QueryRow(ctx, query, userID))
}

// ConsumeAndVerify atomically spends an unused, unexpired token and marks its
// user's email verified. A token that is unknown, spent, or expired yields
// models.ErrNotFound.
func (r *EmailVerificationRepository) ConsumeAndVerify(ctx context.Context, tokenHash string, now time.Time) (*models.EmailVerificationToken, error) {
	var consumed *models.EmailVerificationToken

	err := database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		token, err := scanTokenRow(tx.QueryRow(ctx, `
			UPDATE email_verification_tokens
			SET used_at = $2
			WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
			RETURNING `+tokenColumns, tokenHash, now))
		if err != nil {
			return err
		}

		result, err := tx.Exec(ctx, `
			UPDATE users SET email_verified = TRUE, updated_at = $2
			WHERE id = $1 AND lower(email) = lower($3)`, token.UserID, now, token.Email)
		if err != nil {
			return database.MapPostgresError(err)
		}
		if result.RowsAffected() == 0 {
			// The account's email changed since the token was issued.
			return models.ErrNotFound
		}

		consumed = token
		return nil
	})
	if err != nil {
		return nil, err
	}

	return consumed, nil
}

// CleanupExpired deletes tokens that expired more than 30 days ago.
func (r *EmailVerificationRepository) CleanupExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM email_verification_tokens
		WHERE expires_at < NOW() - INTERVAL '30 days'`

	result, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired tokens: %w", err)
	}

	return result.RowsAffected(), nil
}
