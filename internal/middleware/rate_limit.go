package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/BradenHooton/propertyhub/internal/auth"
	pkghttp "github.com/BradenHooton/propertyhub/pkg/http"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DefaultAuthRateLimit is applied per IP to login and email verification (5 requests per minute).
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 5, Window: time.Minute}
}

// DefaultWriteRateLimit is applied per user to listing mutations (30 requests per minute).
func DefaultWriteRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 30, Window: time.Minute}
}

func limitExceeded(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "rate limit exceeded, try again later")
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// RateLimitByUser limits authenticated callers by user id and falls back to
// the client IP for anonymous requests. It must run after Authenticate.
func RateLimitByUser(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(userKey),
		httprate.WithLimitHandler(limitExceeded),
	)
}

func userKey(r *http.Request) (string, error) {
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		return "user:" + p.UserID, nil
	}
	ip, err := httprate.KeyByRealIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + ip, nil
}
