package domain

import "time"

// Credential is the session material returned after a successful login, refresh, or confirmation.
type Credential struct {
	AccountID             string
	FirstName             string
	LastName              string
	Email                 string
	PhoneNumber           string
	IsLockedOut           bool
	CreatedAt             time.Time
	LastLoginAt           *time.Time
	Token                 string
	TokenExpiresAt        time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	IsAdmin               bool
	Roles                 []string
}
