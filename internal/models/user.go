package models

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID                string
	Email             string
	PasswordHash      string
	Name              string
	EmailVerified     bool
	TokenKey          string // Per-user secret for composite token signing
	Role              string // "user" or "admin"
	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
