package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atymri/Promptino/internal/core/domain"
	"github.com/atymri/Promptino/internal/transport/http/middleware"
)

// ErrorResponse is the generic error body. TraceID lets support correlate the failure with logs.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse builds an ErrorResponse carrying the request trace id.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: middleware.GetTraceID(c),
	}
}

// ProblemResponse lists every validation problem found in a request.
type ProblemResponse struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
	TraceID  string   `json:"trace_id,omitempty"`
}

// LockoutResponse is returned with 423 while an account is locked out.
type LockoutResponse struct {
	Error          string `json:"error"`
	LockoutMinutes int    `json:"lockoutMinutes"`
	TraceID        string `json:"trace_id,omitempty"`
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// RegisterRequest is the sign-up form.
type RegisterRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phoneNumber"`
}

// RegisterResponse reports the created account and whether the confirmation email went out.
type RegisterResponse struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	Dispatched        bool   `json:"dispatched"`
	Message           string `json:"message"`
	ConfirmationToken string `json:"confirmationToken,omitempty"`
}

// LoginRequest is the sign-in form.
type LoginRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	RememberMe      bool   `json:"rememberMe"`
}

// RefreshRequest pairs a possibly expired access token with its refresh token.
type RefreshRequest struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// ForgotPasswordRequest names the account and the client page the reset link should open.
type ForgotPasswordRequest struct {
	Email     string `json:"email"`
	ClientURI string `json:"clientUri"`
}

// ResetPasswordRequest completes a password reset.
type ResetPasswordRequest struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

// AuthResponse is the account view returned after login, refresh and confirmation.
// Token fields are omitted on /me.
type AuthResponse struct {
	ID                    string     `json:"id"`
	FirstName             string     `json:"firstName"`
	LastName              string     `json:"lastName"`
	Email                 string     `json:"email"`
	PhoneNumber           string     `json:"phoneNumber,omitempty"`
	IsLockedOut           bool       `json:"isLockedOut"`
	IsAdmin               bool       `json:"isAdmin"`
	Roles                 []string   `json:"roles"`
	CreatedAt             time.Time  `json:"createdAt"`
	LastLoginAt           *time.Time `json:"lastLoginAt,omitempty"`
	Token                 string     `json:"token,omitempty"`
	TokenExpiresAt        *time.Time `json:"tokenExpiresAt,omitempty"`
	RefreshToken          string     `json:"refreshToken,omitempty"`
	RefreshTokenExpiresAt *time.Time `json:"refreshTokenExpiresAt,omitempty"`
}

// HealthResponse describes liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports each dependency check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func newAuthResponse(cred *domain.Credential) AuthResponse {
	roles := cred.Roles
	if roles == nil {
		roles = []string{}
	}

	resp := AuthResponse{
		ID:          cred.AccountID,
		FirstName:   cred.FirstName,
		LastName:    cred.LastName,
		Email:       cred.Email,
		PhoneNumber: cred.PhoneNumber,
		IsLockedOut: cred.IsLockedOut,
		IsAdmin:     cred.IsAdmin,
		Roles:       roles,
		CreatedAt:   cred.CreatedAt,
		LastLoginAt: cred.LastLoginAt,
	}

	if cred.Token != "" {
		resp.Token = cred.Token
		resp.TokenExpiresAt = nonZeroTime(cred.TokenExpiresAt)
	}
	if cred.RefreshToken != "" {
		resp.RefreshToken = cred.RefreshToken
		resp.RefreshTokenExpiresAt = nonZeroTime(cred.RefreshTokenExpiresAt)
	}

	return resp
}

func nonZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
