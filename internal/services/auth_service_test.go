package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/propertyhub/internal/models"
	pkgauth "github.com/BradenHooton/propertyhub/pkg/auth"
	pkglogger "github.com/BradenHooton/propertyhub/pkg/logger"
)

func newTestAuthService(repo *MockUserRepository, revoke *MockTokenRevocationRepository, verification *MockVerificationSender) *AuthService {
	logger := discardLogger()
	svc := NewAuthService(repo, &MockTokenIssuer{}, revoke, verification, logger, pkglogger.NewAuditLogger(logger))
	svc.hashPassword = func(p string) (string, error) { return pkgauth.HashPasswordWithCost(p, bcrypt.MinCost) }
	return svc
}

func userWithPassword(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := pkgauth.HashPasswordWithCost(password, bcrypt.MinCost)
	require.NoError(t, err)
	u := NewTestUser("user123", "user@example.com", "John Doe")
	u.PasswordHash = hash
	return u
}

// ============================================================================
// Register
// ============================================================================

func TestAuthService_Register_Success(t *testing.T) {
	var created *models.User
	repo := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			created = user
			user.ID = "user123"
			return user, nil
		},
	}
	verification := &MockVerificationSender{}
	svc := newTestAuthService(repo, &MockTokenRevocationRepository{}, verification)

	resp, err := svc.Register(context.Background(), " User@Example.com ", "SecurePassword123!", " John Doe ")

	require.NoError(t, err)
	assert.Equal(t, "user123", resp.ID)
	assert.Equal(t, "user@example.com", created.Email)
	assert.Equal(t, "John Doe", created.Name)
	assert.Equal(t, models.RoleUser, created.Role)
	assert.NoError(t, pkgauth.ComparePassword(created.PasswordHash, "SecurePassword123!"))
	require.Len(t, verification.Users, 1)
	assert.Equal(t, "user123", verification.Users[0].ID)
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	repo := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			return nil, models.ErrConflict
		},
	}
	svc := newTestAuthService(repo, &MockTokenRevocationRepository{}, &MockVerificationSender{})

	resp, err := svc.Register(context.Background(), "user@example.com", "SecurePassword123!", "John Doe")

	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Nil(t, resp)
}

func TestAuthService_Register_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		userName string
		field    string
	}{
		{"bad email", "not-an-email", "SecurePassword123!", "John", "email"},
		{"empty name", "user@example.com", "SecurePassword123!", "  ", "name"},
		{"short password", "user@example.com", "Sh0rt", "John", "password"},
		{"no uppercase", "user@example.com", "nouppercase123", "John", "password"},
		{"no digits", "user@example.com", "NoDigitsHereAtAll", "John", "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockUserRepository{
				CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
					t.Fatal("Create must not be called")
					return nil, nil
				},
			}
			svc := newTestAuthService(repo, &MockTokenRevocationRepository{}, &MockVerificationSender{})

			_, err := svc.Register(context.Background(), tt.email, tt.password, tt.userName)

			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestAuthService_Register_VerificationFailureIsNotFatal(t *testing.T) {
	repo := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			user.ID = "user123"
			return user, nil
		},
	}
	svc := newTestAuthService(repo, &MockTokenRevocationRepository{}, &MockVerificationSender{Err: errors.New("db down")})

	resp, err := svc.Register(context.Background(), "user@example.com", "SecurePassword123!", "John Doe")

	require.NoError(t, err)
	assert.False(t, resp.EmailVerified)
}

// ============================================================================
// Login
// ============================================================================

func TestAuthService_Login_Success(t *testing.T) {
	user := userWithPassword(t, "SecurePassword123!")
	user.EmailVerified = false
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			assert.Equal(t, "user@example.com", email)
			return user, nil
		},
	}
	svc := newTestAuthService(repo, &MockTokenRevocationRepository{}, &MockVerificationSender{})

	resp, err := svc.Login(context.Background(), "USER@example.com", "SecurePassword123!", LoginRequestInfo{IPAddress: "10.0.0.1"})

	require.NoError(t, err)
	assert.Equal(t, "token-for-user123", resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.False(t, resp.User.EmailVerified, "unverified users can still log in")
}

func TestAuthService_Login_InvalidCredentials(t *testing.T) {
	user := userWithPassword(t, "SecurePassword123!")

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "nobody@example.com", "SecurePassword123!"},
		{"wrong password", "user@example.com", "WrongPassword123!"},
		{"empty email", "   ", "SecurePassword123!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockUserRepository{
				GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
					if email == user.Email {
						return user, nil
					}
					return nil, models.ErrNotFound
				},
			}
			svc := newTestAuthService(repo, &MockTokenRevocationRepository{}, &MockVerificationSender{})

			resp, err := svc.Login(context.Background(), tt.email, tt.password, LoginRequestInfo{})

			assert.ErrorIs(t, err, models.ErrUnauthorized)
			assert.Nil(t, resp)
		})
	}
}

func TestAuthService_Login_StoreError(t *testing.T) {
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := newTestAuthService(repo, &MockTokenRevocationRepository{}, &MockVerificationSender{})

	_, err := svc.Login(context.Background(), "user@example.com", "SecurePassword123!", LoginRequestInfo{})

	assert.ErrorIs(t, err, models.ErrInternalServer)
}

// ============================================================================
// Logout / Me
// ============================================================================

func TestAuthService_Logout(t *testing.T) {
	exp := time.Now().Add(10 * time.Minute)
	var gotJTI, gotType string
	var gotExp time.Time
	revoke := &MockTokenRevocationRepository{
		RevokeTokenFunc: func(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error {
			gotJTI, gotType, gotExp = jti, tokenType, expiresAt
			return nil
		},
	}
	svc := newTestAuthService(&MockUserRepository{}, revoke, &MockVerificationSender{})

	require.NoError(t, svc.Logout(context.Background(), "user123", "jti-1", exp))
	assert.Equal(t, "jti-1", gotJTI)
	assert.Equal(t, models.TokenTypeAccess, gotType)
	assert.Equal(t, exp, gotExp)

	assert.ErrorIs(t, svc.Logout(context.Background(), "user123", "", exp), models.ErrUnauthorized)
}

func TestAuthService_LogoutAll(t *testing.T) {
	var rotated string
	repo := &MockUserRepository{
		RotateTokenKeyFunc: func(ctx context.Context, id string) error {
			rotated = id
			return nil
		},
	}
	svc := newTestAuthService(repo, &MockTokenRevocationRepository{}, &MockVerificationSender{})

	require.NoError(t, svc.LogoutAll(context.Background(), "user123"))
	assert.Equal(t, "user123", rotated)
}

func TestAuthService_Me(t *testing.T) {
	repo := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return NewTestUser(id, "user@example.com", "John Doe"), nil
		},
	}
	svc := newTestAuthService(repo, &MockTokenRevocationRepository{}, &MockVerificationSender{})

	me, err := svc.Me(context.Background(), "user123")

	require.NoError(t, err)
	assert.Equal(t, "user@example.com", me.Email)
	assert.True(t, me.EmailVerified)
}
