package models

import (
	"time"
)

// EmailVerificationToken is a single-use, time-limited proof of email ownership.
type EmailVerificationToken struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"`
	Email     string     `json:"email"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (t *EmailVerificationToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

func (t *EmailVerificationToken) IsUsed() bool {
	return t.UsedAt != nil
}

func (t *EmailVerificationToken) IsValid(now time.Time) bool {
	return !t.IsExpired(now) && !t.IsUsed()
}
