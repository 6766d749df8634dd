package usecase

import (
	"time"

	"github.com/atymri/Promptino/internal/core/domain"
)

// LoginStatus enumerates the terminal states of a sign-in attempt.
type LoginStatus string

const (
	LoginAuthenticated    LoginStatus = "authenticated"
	LoginInvalidRequest   LoginStatus = "invalid_request"
	LoginEmailUnknown     LoginStatus = "email_unknown"
	LoginEmailUnconfirmed LoginStatus = "email_unconfirmed"
	LoginLockedOut        LoginStatus = "locked_out"
	LoginPasswordInvalid  LoginStatus = "password_invalid"
)

func (s LoginStatus) String() string { return string(s) }

// LoginResult is the outcome of Login. Credential is set only when Status is LoginAuthenticated.
type LoginResult struct {
	Status         LoginStatus
	Message        string
	LockoutMinutes int
	Credential     *domain.Credential
}

// RefreshStatus enumerates the outcomes of a refresh exchange.
type RefreshStatus string

const (
	RefreshRotated        RefreshStatus = "rotated"
	RefreshInvalidRequest RefreshStatus = "invalid_request"
)

func (s RefreshStatus) String() string { return string(s) }

// RefreshResult is the outcome of RefreshAccessToken. Reason explains a rejection for logs only.
type RefreshResult struct {
	Status     RefreshStatus
	Reason     string
	Credential *domain.Credential
}

// ProfileStatus enumerates the outcomes of a profile lookup.
type ProfileStatus string

const (
	ProfileFound    ProfileStatus = "found"
	ProfileNotFound ProfileStatus = "not_found"
)

func (s ProfileStatus) String() string { return string(s) }

// ProfileResult carries the caller's account as a token-less credential.
type ProfileResult struct {
	Status     ProfileStatus
	Credential *domain.Credential
}

// RegisterStatus enumerates the outcomes of a registration.
type RegisterStatus string

const (
	RegisterCreated       RegisterStatus = "created"
	RegisterInvalid       RegisterStatus = "invalid"
	RegisterAccountExists RegisterStatus = "account_exists"
)

func (s RegisterStatus) String() string { return string(s) }

// RegisterResult is the outcome of Register. ConfirmationToken is only populated in development.
type RegisterResult struct {
	Status            RegisterStatus
	AccountID         string
	Email             string
	Dispatched        bool
	Message           string
	Problems          []string
	ConfirmationToken string
}

// ConfirmStatus enumerates the outcomes of an email confirmation.
type ConfirmStatus string

const (
	ConfirmConfirmed             ConfirmStatus = "confirmed"
	ConfirmInvalidRequest        ConfirmStatus = "invalid_request"
	ConfirmNotFound              ConfirmStatus = "not_found"
	ConfirmInvalidOrExpiredToken ConfirmStatus = "invalid_or_expired_token"
)

func (s ConfirmStatus) String() string { return string(s) }

// ConfirmResult is the outcome of ConfirmEmail. A confirmed account is signed in immediately.
type ConfirmResult struct {
	Status     ConfirmStatus
	Message    string
	Credential *domain.Credential
}

// ForgotPasswordStatus enumerates the outcomes of a password reset request.
type ForgotPasswordStatus string

const (
	ForgotPasswordSent                ForgotPasswordStatus = "sent"
	ForgotPasswordInvalidRequest      ForgotPasswordStatus = "invalid_request"
	ForgotPasswordRateLimited         ForgotPasswordStatus = "rate_limited"
	ForgotPasswordNotificationFailure ForgotPasswordStatus = "notification_failure"
)

func (s ForgotPasswordStatus) String() string { return string(s) }

// ForgotPasswordResult is the outcome of ForgotPassword.
type ForgotPasswordResult struct {
	Status     ForgotPasswordStatus
	Message    string
	RetryAfter time.Duration
}

// ResetPasswordStatus enumerates the outcomes of a password reset.
type ResetPasswordStatus string

const (
	ResetPasswordCompleted      ResetPasswordStatus = "completed"
	ResetPasswordInvalidRequest ResetPasswordStatus = "invalid_request"
)

func (s ResetPasswordStatus) String() string { return string(s) }

// ResetPasswordResult is the outcome of ResetPassword.
type ResetPasswordResult struct {
	Status   ResetPasswordStatus
	Message  string
	Problems []string
}
