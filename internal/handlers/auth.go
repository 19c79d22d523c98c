package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/propertyhub/internal/auth"
	"github.com/BradenHooton/propertyhub/internal/models"
	"github.com/BradenHooton/propertyhub/internal/services"
	pkghttp "github.com/BradenHooton/propertyhub/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string, info services.LoginRequestInfo) (*services.AuthResponse, error)
	Register(ctx context.Context, email, password, name string) (*services.UserResponse, error)
	Logout(ctx context.Context, userID, tokenID string, expiresAt time.Time) error
	LogoutAll(ctx context.Context, userID string) error
	Me(ctx context.Context, userID string) (*services.UserResponse, error)
}

// EmailVerificationServiceInterface defines the interface for email verification
type EmailVerificationServiceInterface interface {
	RequestVerification(ctx context.Context, userID string) error
	VerifyEmail(ctx context.Context, plainToken string) (string, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service                  AuthServiceInterface
	emailVerificationService EmailVerificationServiceInterface
	ipConfig                 *pkghttp.IPConfig
	logger                   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, emailVerificationService EmailVerificationServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:                  service,
		emailVerificationService: emailVerificationService,
		ipConfig:                 ipConfig,
		logger:                   logger,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,max=100"`
}

// VerifyEmailRequest represents the request body for email verification
type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

const registrationMessage = "Registration received. If the email is not already registered, you will receive a confirmation email."

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} services.AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteValidationError(w, err.Error())
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	info := services.LoginRequestInfo{
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}

	authResp, err := h.service.Login(r.Context(), req.Email, req.Password, info)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			// One message for unknown email and wrong password.
			pkghttp.WriteUnauthenticated(w, "invalid email or password")
			return
		}
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, authResp)
}

// Register handles user registration
// @Summary User registration
// @Accept json
// @Param request body RegisterRequest true "Register request"
// @Produce json
// @Success 202
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteValidationError(w, err.Error())
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	_, err := h.service.Register(r.Context(), req.Email, req.Password, req.Name)
	switch {
	case err == nil, errors.Is(err, models.ErrConflict):
		// Same response for new and existing addresses to prevent user enumeration.
		pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{"message": registrationMessage})
	default:
		writeServiceError(w, r, h.logger, err)
	}
}

// Logout revokes the access token used for this request
// @Summary User logout
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		pkghttp.WriteUnauthenticated(w, "authentication required")
		return
	}

	if err := h.service.Logout(r.Context(), p.UserID, p.TokenID, p.ExpiresAt); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll handles logout from all devices
// @Summary Logout from all devices
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Router /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		pkghttp.WriteUnauthenticated(w, "authentication required")
		return
	}

	if err := h.service.LogoutAll(r.Context(), p.UserID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user's profile
// @Summary Current user
// @Security BearerAuth
// @Produce json
// @Success 200 {object} services.UserResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		pkghttp.WriteUnauthenticated(w, "authentication required")
		return
	}

	user, err := h.service.Me(r.Context(), p.UserID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, user)
}

// RequestEmailVerification sends a fresh verification link to the caller
// @Summary Request a verification email
// @Security BearerAuth
// @Success 202
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /auth/request-email-verify [post]
func (h *AuthHandler) RequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		pkghttp.WriteUnauthenticated(w, "authentication required")
		return
	}

	if err := h.emailVerificationService.RequestVerification(r.Context(), p.UserID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "If a verification email is due, it is on its way.",
	})
}

// VerifyEmail handles email verification with a token
// @Summary Verify email address
// @Accept json
// @Param request body VerifyEmailRequest true "Verify email request"
// @Produce json
// @Success 200
// @Failure 400 {object} ErrorResponse
// @Router /auth/verify-email [post]
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteValidationError(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	userID, err := h.emailVerificationService.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Email verified successfully.",
		"user_id": userID,
	})
}
