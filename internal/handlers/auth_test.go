package handlers_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/propertyhub/internal/handlers"
	"github.com/BradenHooton/propertyhub/internal/models"
	"github.com/BradenHooton/propertyhub/internal/services"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAuthHandler(authSvc *handlers.MockAuthService, verification *handlers.MockEmailVerificationService) *handlers.AuthHandler {
	if verification == nil {
		verification = &handlers.MockEmailVerificationService{}
	}
	return handlers.NewAuthHandler(authSvc, verification, nil, discardLogger())
}

func TestLogin_Success(t *testing.T) {
	var gotEmail string
	var gotInfo services.LoginRequestInfo
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, password string, info services.LoginRequestInfo) (*services.AuthResponse, error) {
			gotEmail, gotInfo = email, info
			return &services.AuthResponse{AccessToken: "access_token_123", TokenType: "Bearer"}, nil
		},
	}

	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    " User@Example.com ",
		Password: "password123",
	})
	req.RemoteAddr = "203.0.113.7:5555"
	req.Header.Set("User-Agent", "test-agent")
	w := httptest.NewRecorder()
	newAuthHandler(mockAuth, nil).Login(w, req)

	var resp map[string]any
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "access_token_123", resp["token"])
	assert.Equal(t, "user@example.com", gotEmail)
	assert.Equal(t, "203.0.113.7", gotInfo.IPAddress)
	assert.Equal(t, "test-agent", gotInfo.UserAgent)
}

func TestLogin_AuthenticationFailed(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, password string, info services.LoginRequestInfo) (*services.AuthResponse, error) {
			return nil, models.ErrUnauthorized
		},
	}

	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "user@example.com",
		Password: "wrongpassword",
	})
	w := httptest.NewRecorder()
	newAuthHandler(mockAuth, nil).Login(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthenticated")
}

func TestLogin_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"missing email", map[string]string{"password": "x"}},
		{"bad email", map[string]string{"email": "nope", "password": "x"}},
		{"unknown field", map[string]string{"email": "a@b.co", "password": "x", "role": "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			mockAuth := &handlers.MockAuthService{
				LoginFunc: func(ctx context.Context, email, password string, info services.LoginRequestInfo) (*services.AuthResponse, error) {
					called = true
					return nil, nil
				},
			}
			w := httptest.NewRecorder()
			newAuthHandler(mockAuth, nil).Login(w, handlers.NewTestRequest(t, "POST", "/auth/login", tt.body))

			handlers.AssertErrorResponse(t, w, 400, "validation_error")
			assert.False(t, called)
		})
	}
}

func TestRegister_SameResponseForNewAndExisting(t *testing.T) {
	for _, svcErr := range []error{nil, models.ErrConflict} {
		mockAuth := &handlers.MockAuthService{
			RegisterFunc: func(ctx context.Context, email, password, name string) (*services.UserResponse, error) {
				if svcErr != nil {
					return nil, svcErr
				}
				return &services.UserResponse{ID: "u1", Email: email}, nil
			},
		}
		req := handlers.NewTestRequest(t, "POST", "/auth/register", handlers.RegisterRequest{
			Email:    "new@example.com",
			Password: "SecurePass123",
			Name:     "New User",
		})
		w := httptest.NewRecorder()
		newAuthHandler(mockAuth, nil).Register(w, req)

		var resp map[string]string
		handlers.AssertJSONResponse(t, w, 202, &resp)
		assert.Contains(t, resp["message"], "Registration received")
	}
}

func TestRegister_WeakPasswordIsReported(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		RegisterFunc: func(ctx context.Context, email, password, name string) (*services.UserResponse, error) {
			return nil, models.NewValidationError("password", "password must be at least 8 characters")
		},
	}
	req := handlers.NewTestRequest(t, "POST", "/auth/register", handlers.RegisterRequest{
		Email:    "new@example.com",
		Password: "short",
		Name:     "New User",
	})
	w := httptest.NewRecorder()
	newAuthHandler(mockAuth, nil).Register(w, req)

	handlers.AssertErrorResponse(t, w, 400, "validation_error")
}

func TestLogout_RevokesCurrentToken(t *testing.T) {
	var gotUser, gotJTI string
	var gotExpiry time.Time
	mockAuth := &handlers.MockAuthService{
		LogoutFunc: func(ctx context.Context, userID, tokenID string, expiresAt time.Time) error {
			gotUser, gotJTI, gotExpiry = userID, tokenID, expiresAt
			return nil
		},
	}

	req := handlers.WithAuthContext(httptest.NewRequest("POST", "/auth/logout", nil), "user-1", "user@example.com")
	w := httptest.NewRecorder()
	newAuthHandler(mockAuth, nil).Logout(w, req)

	assert.Equal(t, 204, w.Code)
	assert.Equal(t, "user-1", gotUser)
	assert.Equal(t, "jti-user-1", gotJTI)
	assert.False(t, gotExpiry.IsZero())
}

func TestLogout_RequiresPrincipal(t *testing.T) {
	w := httptest.NewRecorder()
	newAuthHandler(&handlers.MockAuthService{}, nil).Logout(w, httptest.NewRequest("POST", "/auth/logout", nil))

	handlers.AssertErrorResponse(t, w, 401, "unauthenticated")
}

func TestLogoutAll_ServiceError(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LogoutAllFunc: func(ctx context.Context, userID string) error { return errors.New("db down") },
	}
	req := handlers.WithAuthContext(httptest.NewRequest("POST", "/auth/logout-all", nil), "user-1", "user@example.com")
	w := httptest.NewRecorder()
	newAuthHandler(mockAuth, nil).LogoutAll(w, req)

	handlers.AssertErrorResponse(t, w, 500, "server_error")
}

func TestMe(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		MeFunc: func(ctx context.Context, userID string) (*services.UserResponse, error) {
			return &services.UserResponse{ID: userID, Email: "user@example.com", Role: models.RoleUser}, nil
		},
	}
	req := handlers.WithAuthContext(httptest.NewRequest("GET", "/auth/me", nil), "user-1", "user@example.com")
	w := httptest.NewRecorder()
	newAuthHandler(mockAuth, nil).Me(w, req)

	var resp services.UserResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "user-1", resp.ID)
}

func TestRequestEmailVerification(t *testing.T) {
	var requested string
	verification := &handlers.MockEmailVerificationService{
		RequestVerificationFunc: func(ctx context.Context, userID string) error {
			requested = userID
			return nil
		},
	}
	req := handlers.WithAuthContext(httptest.NewRequest("POST", "/auth/request-email-verify", nil), "user-1", "user@example.com")
	w := httptest.NewRecorder()
	newAuthHandler(&handlers.MockAuthService{}, verification).RequestEmailVerification(w, req)

	assert.Equal(t, 202, w.Code)
	assert.Equal(t, "user-1", requested)
}

func TestRequestEmailVerification_AlreadyVerified(t *testing.T) {
	verification := &handlers.MockEmailVerificationService{
		RequestVerificationFunc: func(ctx context.Context, userID string) error {
			return models.ErrConflict
		},
	}
	req := handlers.WithAuthContext(httptest.NewRequest("POST", "/auth/request-email-verify", nil), "user-1", "user@example.com")
	w := httptest.NewRecorder()
	newAuthHandler(&handlers.MockAuthService{}, verification).RequestEmailVerification(w, req)

	handlers.AssertErrorResponse(t, w, 409, "conflict")
}

func TestVerifyEmail(t *testing.T) {
	verification := &handlers.MockEmailVerificationService{
		VerifyEmailFunc: func(ctx context.Context, plainToken string) (string, error) {
			if plainToken != "good-token" {
				return "", models.NewValidationError("token", "invalid or expired verification token")
			}
			return "user-1", nil
		},
	}
	h := newAuthHandler(&handlers.MockAuthService{}, verification)

	w := httptest.NewRecorder()
	h.VerifyEmail(w, handlers.NewTestRequest(t, "POST", "/auth/verify-email", handlers.VerifyEmailRequest{Token: "good-token"}))
	var resp map[string]string
	handlers.AssertJSONResponse(t, w, 200, &resp)
	require.Equal(t, "user-1", resp["user_id"])

	w = httptest.NewRecorder()
	h.VerifyEmail(w, handlers.NewTestRequest(t, "POST", "/auth/verify-email", handlers.VerifyEmailRequest{Token: "bad-token"}))
	handlers.AssertErrorResponse(t, w, 400, "validation_error")
}
