package domain

import "time"

// AccountRegisteredEvent represents the payload for promptino.account.registered messages.
type AccountRegisteredEvent struct {
	EventID                string
	AccountID              string
	Email                  string
	RegisteredAt           time.Time
	ConfirmationDispatched bool
}

// EmailConfirmedEvent represents the payload for promptino.account.email_confirmed messages.
type EmailConfirmedEvent struct {
	EventID     string
	AccountID   string
	Email       string
	ConfirmedAt time.Time
}

// AccountLockedOutEvent represents the payload for promptino.account.locked_out messages.
type AccountLockedOutEvent struct {
	EventID        string
	AccountID      string
	LockedAt       time.Time
	LockoutEnd     time.Time
	LockoutMinutes int
	NextMultiplier int
}

// PasswordResetRequestedEvent represents the payload for promptino.account.password_reset_requested messages.
type PasswordResetRequestedEvent struct {
	EventID           string
	AccountID         string
	RequestedAt       time.Time
	MaskedDestination string
	ExpiresAt         time.Time
	Delivered         bool
}

// PasswordChangedEvent represents the payload for promptino.account.password_changed messages.
type PasswordChangedEvent struct {
	EventID   string
	AccountID string
	ChangedAt time.Time
	Reason    string
}
