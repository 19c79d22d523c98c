package services

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/BradenHooton/propertyhub/internal/models"
	pkgauth "github.com/BradenHooton/propertyhub/pkg/auth"
	pkglogger "github.com/BradenHooton/propertyhub/pkg/logger"
)

// UserRepository defines the user store operations the services need.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	RotateTokenKey(ctx context.Context, id string) error
}

// TokenRevocationRepository defines the interface for token revocation operations
type TokenRevocationRepository interface {
	RevokeToken(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error
}

// TokenIssuer signs access tokens for a user.
type TokenIssuer interface {
	GenerateAccessToken(user *models.User) (string, time.Time, error)
}

// VerificationSender starts email verification for a new account.
type VerificationSender interface {
	SendVerificationEmail(ctx context.Context, user *models.User) error
}

// AuthService handles authentication business logic
type AuthService struct {
	repo         UserRepository
	revokeRepo   TokenRevocationRepository
	tokens       TokenIssuer
	verification VerificationSender
	logger       *slog.Logger
	auditLogger  *pkglogger.AuditLogger
	hashPassword func(string) (string, error)
}

func NewAuthService(repo UserRepository, tokens TokenIssuer, revokeRepo TokenRevocationRepository, verification VerificationSender, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AuthService {
	return &AuthService{
		repo:         repo,
		revokeRepo:   revokeRepo,
		tokens:       tokens,
		verification: verification,
		logger:       logger,
		auditLogger:  auditLogger,
		hashPassword: pkgauth.HashPassword,
	}
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"email_verified"`
	Role          string `json:"role"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// AuthResponse is returned by login.
type AuthResponse struct {
	AccessToken string        `json:"token"`
	TokenType   string        `json:"token_type"`
	ExpiresAt   time.Time     `json:"expires_at"`
	User        *UserResponse `json:"user"`
}

// LoginRequestInfo carries request metadata for the audit trail.
type LoginRequestInfo struct {
	IPAddress string
	UserAgent string
}

// Login authenticates a user and returns an access token. Unverified users
// may log in; verification gates submission, not sign-in.
func (s *AuthService) Login(ctx context.Context, email, password string, info LoginRequestInfo) (*AuthResponse, error) {
	if email = strings.ToLower(strings.TrimSpace(email)); email == "" {
		s.logger.Warn("login attempt with empty email")
		return nil, models.ErrUnauthorized
	}

	failed := func(userID, reason string) {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        userID,
			IPAddress:     info.IPAddress,
			UserAgent:     info.UserAgent,
			FailureReason: reason,
			Success:       false,
		})
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Spend the same bcrypt time as a real comparison.
			pkgauth.CompareDummy(password)
			s.logger.Info("login failed: invalid credentials")
			failed("", "invalid_credentials")
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.logger.Info("login failed: invalid credentials")
		failed(user.ID, "invalid_credentials")
		return nil, models.ErrUnauthorized
	}

	accessToken, expiresAt, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		IPAddress: info.IPAddress,
		UserAgent: info.UserAgent,
		Success:   true,
	})

	return &AuthResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		User:        userModelToResponse(user),
	}, nil
}

// Register creates a new account with the user role and starts email
// verification. A failure to queue the verification email does not fail
// registration; the user can request another.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*UserResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)

	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, models.NewValidationError("email", "a valid email address is required")
	}
	if name == "" {
		return nil, models.NewValidationError("name", "name is required")
	}
	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, models.NewValidationError("password", err.Error())
	}

	hashedPassword, err := s.hashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	createdUser, err := s.repo.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hashedPassword,
		Name:         name,
		Role:         models.RoleUser,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.logger.Info("registration failed: user already exists")
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.verification.SendVerificationEmail(ctx, createdUser); err != nil {
		s.logger.Warn("verification email not queued",
			slog.String("user_id", createdUser.ID),
			slog.Any("error", err))
	}

	s.logger.Info("user registered", slog.String("user_id", createdUser.ID))
	s.auditLogger.LogAccountAction("user_registered", createdUser.ID, "", nil)

	return userModelToResponse(createdUser), nil
}

// Logout revokes one access token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, userID, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return models.ErrUnauthorized
	}

	if err := s.revokeRepo.RevokeToken(ctx, tokenID, userID, models.TokenTypeAccess, expiresAt, "logout"); err != nil {
		s.logger.Error("failed to revoke token", slog.String("jti", tokenID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("user logged out", slog.String("user_id", userID))
	return nil
}

// LogoutAll invalidates every token issued to the user by rotating the
// per-user signing key.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	if err := s.repo.RotateTokenKey(ctx, userID); err != nil {
		s.logger.Error("failed to rotate token key", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("user logged out from all devices", slog.String("user_id", userID))
	s.auditLogger.LogAccountAction("logout_all", userID, "", nil)
	return nil
}

// Me returns the caller's own account.
func (s *AuthService) Me(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return userModelToResponse(user), nil
}

func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.Name,
		EmailVerified: user.EmailVerified,
		Role:          user.Role,
		CreatedAt:     user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     user.UpdatedAt.Format(time.RFC3339),
	}
}
