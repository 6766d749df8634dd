package domain

import "time"

// TokenPurpose scopes a one-time token to the flow that issued it.
type TokenPurpose string

const (
	// TokenPurposeEmailConfirmation guards the confirm-email link sent after registration.
	TokenPurposeEmailConfirmation TokenPurpose = "email_confirmation"
	// TokenPurposePasswordReset guards the reset link sent by forgot-password.
	TokenPurposePasswordReset TokenPurpose = "password_reset"
)

// OneTimeToken is the stored form of a single-use token. Only the hash is kept.
type OneTimeToken struct {
	Purpose   TokenPurpose
	AccountID string
	TokenHash string
	ExpiresAt time.Time
}
