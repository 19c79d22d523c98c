package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BradenHooton/propertyhub/internal/models"
)

const defaultResendCooldown = 2 * time.Minute

// EmailVerificationRepository defines the interface for email verification token operations
type EmailVerificationRepository interface {
	Create(ctx context.Context, userID, tokenHash, email string, expiresAt time.Time) (*models.EmailVerificationToken, error)
	GetLatestForUser(ctx context.Context, userID string) (*models.EmailVerificationToken, error)
	ConsumeAndVerify(ctx context.Context, tokenHash string, now time.Time) (*models.EmailVerificationToken, error)
}

// NotificationSender queues an email for background delivery.
type NotificationSender interface {
	Dispatch(n Notification)
}

// EmailVerificationService handles email verification business logic
type EmailVerificationService struct {
	tokens         EmailVerificationRepository
	users          UserRepository
	notifications  NotificationSender
	logger         *slog.Logger
	baseURL        string
	tokenExpiry    time.Duration
	resendCooldown time.Duration
	now            func() time.Time
}

func NewEmailVerificationService(
	tokens EmailVerificationRepository,
	users UserRepository,
	notifications NotificationSender,
	logger *slog.Logger,
	baseURL string,
	tokenExpiry time.Duration,
) *EmailVerificationService {
	return &EmailVerificationService{
		tokens:         tokens,
		users:          users,
		notifications:  notifications,
		logger:         logger,
		baseURL:        baseURL,
		tokenExpiry:    tokenExpiry,
		resendCooldown: defaultResendCooldown,
		now:            time.Now,
	}
}

func hashVerificationToken(plain string) string {
	hash := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(hash[:])
}

// SendVerificationEmail stores a new token for user and queues the email
// carrying its plain form. Only the hash is persisted.
func (s *EmailVerificationService) SendVerificationEmail(ctx context.Context, user *models.User) error {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		s.logger.Error("failed to generate random token", slog.Any("error", err))
		return fmt.Errorf("failed to generate token: %w", err)
	}
	plainToken := base64.RawURLEncoding.EncodeToString(tokenBytes)

	expiresAt := s.now().Add(s.tokenExpiry)
	if _, err := s.tokens.Create(ctx, user.ID, hashVerificationToken(plainToken), user.Email, expiresAt); err != nil {
		s.logger.Error("failed to create email verification token",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return fmt.Errorf("failed to create token: %w", err)
	}

	s.notifications.Dispatch(Notification{
		Kind:      TemplateVerifyEmail,
		Recipient: user.Email,
		Data: map[string]any{
			"Name":      user.Name,
			"Link":      s.baseURL + "/verify-email?token=" + url.QueryEscape(plainToken),
			"ExpiresAt": expiresAt.UTC().Format(time.RFC1123),
		},
	})

	s.logger.Info("verification email queued", slog.String("user_id", user.ID))
	return nil
}

// RequestVerification sends a fresh verification email to an unverified
// user. Requests inside the resend cooldown succeed without sending.
func (s *EmailVerificationService) RequestVerification(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return fmt.Errorf("%w: email already verified", models.ErrConflict)
	}

	latest, err := s.tokens.GetLatestForUser(ctx, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check for existing tokens",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}
	if latest != nil {
		if since := s.now().Sub(latest.CreatedAt); since < s.resendCooldown {
			s.logger.Info("resend rate limited",
				slog.String("user_id", userID),
				slog.Duration("time_since_last_send", since))
			return nil
		}
	}

	return s.SendVerificationEmail(ctx, user)
}

// VerifyEmail consumes a plain token and marks its user verified. It
// returns the verified user's id.
func (s *EmailVerificationService) VerifyEmail(ctx context.Context, plainToken string) (string, error) {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return "", models.NewValidationError("token", "verification token is required")
	}

	token, err := s.tokens.ConsumeAndVerify(ctx, hashVerificationToken(plainToken), s.now())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("verification token invalid, used, or expired")
			return "", models.NewValidationError("token", "verification token is invalid or has expired")
		}
		s.logger.Error("failed to consume verification token", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	s.logger.Info("email verified successfully", slog.String("user_id", token.UserID))
	return token.UserID, nil
}
