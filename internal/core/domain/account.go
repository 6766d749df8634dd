package domain

import (
	"math"
	"strings"
	"time"
)

// DefaultLockoutMultiplier is the escalation factor of an account that has never been locked out
// or has logged in successfully since its last lockout.
const DefaultLockoutMultiplier = 1

// Account mirrors the persisted representation in the accounts table.
type Account struct {
	ID                    string
	Email                 string
	PasswordHash          string
	FirstName             string
	LastName              string
	PhoneNumber           string
	EmailConfirmed        bool
	LockoutEnabled        bool
	LockoutEnd            *time.Time
	LockoutMultiplier     int
	AccessFailedCount     int
	RefreshToken          string
	RefreshTokenExpiresAt *time.Time
	CreatedAt             time.Time
	LastLoginAt           *time.Time
}

// IsLockedOut reports whether the account has an active lockout at the supplied instant.
func (a Account) IsLockedOut(now time.Time) bool {
	if !a.LockoutEnabled || a.LockoutEnd == nil {
		return false
	}
	return a.LockoutEnd.After(now)
}

// LockoutRemaining returns how long the active lockout still lasts, or zero.
func (a Account) LockoutRemaining(now time.Time) time.Duration {
	if !a.IsLockedOut(now) {
		return 0
	}
	return a.LockoutEnd.Sub(now)
}

// Multiplier returns the lockout multiplier, treating unset values as the default.
func (a Account) Multiplier() int {
	if a.LockoutMultiplier < DefaultLockoutMultiplier {
		return DefaultLockoutMultiplier
	}
	return a.LockoutMultiplier
}

// HasRefreshToken reports whether a refresh token is currently stored for the account.
func (a Account) HasRefreshToken() bool {
	return a.RefreshToken != "" && a.RefreshTokenExpiresAt != nil
}

// NormalizeEmail returns the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// WholeMinutes rounds a positive duration up to whole minutes.
func WholeMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}
