package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/propertyhub/internal/models"
	"github.com/BradenHooton/propertyhub/internal/workflow"
	pkghttp "github.com/BradenHooton/propertyhub/pkg/http"
)

type contextKey string

const principalContextKey contextKey = "principal"

// Principal is the authenticated caller for one request. Role and
// EmailVerified come from the store, not from the token.
type Principal struct {
	UserID        string
	Email         string
	Role          string
	EmailVerified bool
	TokenID       string
	ExpiresAt     time.Time
}

func (p *Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

// Actor converts the principal for workflow checks.
func (p *Principal) Actor() workflow.Actor {
	if p == nil {
		return workflow.Actor{}
	}
	return workflow.Actor{ID: p.UserID, Role: p.Role, EmailVerified: p.EmailVerified}
}

// TokenRevocationChecker reports whether a jti was revoked by logout.
type TokenRevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext returns the caller, or nil for anonymous requests.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	if !ok {
		return nil
	}
	return p
}

// Authenticate rejects requests without a valid bearer token.
func Authenticate(tm *TokenManager, revocations TokenRevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return authenticate(tm, revocations, logger, true)
}

// OptionalAuthenticate lets anonymous requests through but still rejects a
// bearer token that is present and invalid.
func OptionalAuthenticate(tm *TokenManager, revocations TokenRevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return authenticate(tm, revocations, logger, false)
}

func authenticate(tm *TokenManager, revocations TokenRevocationChecker, logger *slog.Logger, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				if required {
					pkghttp.WriteUnauthenticated(w, "missing authorization header")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			tokenString, ok := bearerToken(header)
			if !ok {
				pkghttp.WriteUnauthenticated(w, "invalid authorization header format")
				return
			}

			claims, user, err := tm.Resolve(r.Context(), tokenString)
			if err != nil {
				if errors.Is(err, models.ErrUnauthorized) {
					pkghttp.WriteUnauthenticated(w, "invalid or expired token")
					return
				}
				logger.Error("failed to resolve token subject", slog.Any("error", err))
				pkghttp.WriteServerError(w, "unable to verify credentials")
				return
			}

			if revocations != nil && claims.ID != "" {
				revoked, err := revocations.IsTokenRevoked(r.Context(), claims.ID)
				if err != nil {
					logger.Error("token revocation check failed", slog.Any("error", err))
					pkghttp.WriteServerError(w, "unable to verify credentials")
					return
				}
				if revoked {
					pkghttp.WriteUnauthenticated(w, "token has been revoked")
					return
				}
			}

			p := &Principal{
				UserID:        user.ID,
				Email:         user.Email,
				Role:          user.Role,
				EmailVerified: user.EmailVerified,
				TokenID:       claims.ID,
			}
			if claims.ExpiresAt != nil {
				p.ExpiresAt = claims.ExpiresAt.Time
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireRole must run after Authenticate.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				pkghttp.WriteUnauthenticated(w, "authentication required")
				return
			}
			if p.Role != role {
				pkghttp.WriteUnauthorized(w, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireVerifiedEmail must run after Authenticate. Admins are exempt.
func RequireVerifiedEmail() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				pkghttp.WriteUnauthenticated(w, "authentication required")
				return
			}
			if !p.EmailVerified && !p.IsAdmin() {
				pkghttp.WriteEmailNotVerified(w, "verify your email address first")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
