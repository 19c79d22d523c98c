package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/propertyhub/internal/database"
	"github.com/BradenHooton/propertyhub/internal/models"
	"github.com/BradenHooton/propertyhub/pkg/auth"
)

const userColumns = `id, email, password_hash, name, email_verified, token_key, role, password_changed_at, created_at, updated_at`

type UserRepository struct {
	db database.Querier
}

func NewUserRepository(db database.Querier) *UserRepository {
	return &UserRepository{db: db}
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var passwordChangedAt *time.Time

	err := scanner.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name,
		&user.EmailVerified, &user.TokenKey, &user.Role,
		&passwordChangedAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	user.PasswordChangedAt = passwordChangedAt
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.db.QueryRow(ctx, query, id))
}

// GetByEmail matches case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUserRow(r.db.QueryRow(ctx, query, strings.TrimSpace(email)))
}

// Create inserts a user with a fresh id and token key. A duplicate email
// yields models.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()

	tokenKey, err := auth.GenerateTokenKey()
	if err != nil {
		return nil, err
	}
	user.TokenKey = tokenKey

	if user.Role == "" {
		user.Role = models.RoleUser
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO users (id, email, password_hash, name, email_verified, token_key, role, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $8)
		RETURNING ` + userColumns

	created, err := scanUserRow(r.db.QueryRow(ctx, query,
		user.ID, strings.ToLower(strings.TrimSpace(user.Email)), user.PasswordHash, user.Name,
		user.EmailVerified, user.TokenKey, user.Role, now,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return created, nil
}

// SetRole is reserved for the bootstrap CLI; the API never changes roles.
func (r *UserRepository) SetRole(ctx context.Context, id, role string) error {
	query := `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, role)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RotateTokenKey invalidates every token issued to the user.
func (r *UserRepository) RotateTokenKey(ctx context.Context, id string) error {
	tokenKey, err := auth.GenerateTokenKey()
	if err != nil {
		return err
	}

	result, err := r.db.Exec(ctx, `UPDATE users SET token_key = $2, updated_at = NOW() WHERE id = $1`, id, tokenKey)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *UserRepository) CountByRole(ctx context.Context, role string) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, role).Scan(&n); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return n, nil
}

// ListEmailsByRole returns the address of every user holding role.
func (r *UserRepository) ListEmailsByRole(ctx context.Context, role string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT email FROM users WHERE role = $1 ORDER BY created_at, id`, role)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	emails := make([]string, 0)
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan user email: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user emails: %w", err)
	}
	return emails, nil
}

func (r *UserRepository) CountNewSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE created_at >= $1`, since).Scan(&n); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return n, nil
}
