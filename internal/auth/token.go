package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/BradenHooton/propertyhub/internal/models"
)

// UserStore is the subset of the user repository the gate needs.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// TokenManager issues and verifies HS256 access tokens. Each token is signed
// with the global secret concatenated with the user's TokenKey, so rotating a
// user's key invalidates every token issued to them.
type TokenManager struct {
	secret            string
	accessTokenExpiry time.Duration
	users             UserStore
	now               func() time.Time
}

func NewTokenManager(secret string, accessExpiry time.Duration, users UserStore) *TokenManager {
	return &TokenManager{
		secret:            secret,
		accessTokenExpiry: accessExpiry,
		users:             users,
		now:               time.Now,
	}
}

func (tm *TokenManager) signingKey(user *models.User) []byte {
	return []byte(tm.secret + user.TokenKey)
}

// GenerateAccessToken creates a short-lived access token with a unique jti.
func (tm *TokenManager) GenerateAccessToken(user *models.User) (string, time.Time, error) {
	now := tm.now()
	expiresAt := now.Add(tm.accessTokenExpiry)

	claims := &models.TokenClaims{
		Type:   models.TokenTypeAccess,
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.signingKey(user))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	return signed, expiresAt, nil
}

// ValidateToken verifies a token and returns its claims.
func (tm *TokenManager) ValidateToken(ctx context.Context, tokenString string) (*models.TokenClaims, error) {
	claims, _, err := tm.Resolve(ctx, tokenString)
	return claims, err
}

// Resolve verifies a token and returns its claims together with the user as
// currently stored. Every failure wraps models.ErrUnauthorized except store
// errors other than not-found, which are returned as-is.
func (tm *TokenManager) Resolve(ctx context.Context, tokenString string) (*models.TokenClaims, *models.User, error) {
	claims := &models.TokenClaims{}
	var user *models.User
	var storeErr error

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)

	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		c, ok := token.Claims.(*models.TokenClaims)
		if !ok || c.UserID == "" {
			return nil, errors.New("token has no subject")
		}

		u, err := tm.users.GetByID(ctx, c.UserID)
		if err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				storeErr = err
			}
			return nil, fmt.Errorf("resolve token subject: %w", err)
		}
		user = u
		return tm.signingKey(u), nil
	})
	if storeErr != nil {
		return nil, nil, fmt.Errorf("failed to load token subject: %w", storeErr)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, nil, models.ErrUnauthorized
	}
	if claims.Type != models.TokenTypeAccess {
		return nil, nil, fmt.Errorf("%w: unexpected token type %q", models.ErrUnauthorized, claims.Type)
	}

	return claims, user, nil
}
