package handlers

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appLogger "github.com/atymri/Promptino/internal/infra/logger"
	"github.com/atymri/Promptino/internal/transport/http/middleware"
	"github.com/atymri/Promptino/internal/usecase"
)

// Authenticator is the sign-in surface of usecase.AuthService.
type Authenticator interface {
	Login(ctx context.Context, input usecase.LoginInput) (usecase.LoginResult, error)
	RefreshAccessToken(ctx context.Context, input usecase.RefreshInput) (usecase.RefreshResult, error)
	Logout(ctx context.Context, accountID string) error
	Profile(ctx context.Context, accountID string) (usecase.ProfileResult, error)
}

// Registrar is the sign-up surface of usecase.RegistrationService.
type Registrar interface {
	Register(ctx context.Context, input usecase.RegisterInput) (usecase.RegisterResult, error)
	ConfirmEmail(ctx context.Context, accountID, token string) (usecase.ConfirmResult, error)
}

// PasswordResetter is the recovery surface of usecase.PasswordResetService.
type PasswordResetter interface {
	ForgotPassword(ctx context.Context, input usecase.ForgotPasswordInput) (usecase.ForgotPasswordResult, error)
	ResetPassword(ctx context.Context, input usecase.ResetPasswordInput) (usecase.ResetPasswordResult, error)
}

// AuthHandler exposes the /auth endpoints.
type AuthHandler struct {
	auth         Authenticator
	registration Registrar
	passwords    PasswordResetter
	logger       *zap.Logger
}

// AuthHandlerOption configures optional AuthHandler dependencies.
type AuthHandlerOption func(*AuthHandler)

// WithRegistrationService enables /register and /confirm-email.
func WithRegistrationService(registration Registrar) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.registration = registration
	}
}

// WithPasswordResetService enables /forgot-password and /reset-password.
func WithPasswordResetService(passwords PasswordResetter) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.passwords = passwords
	}
}

// WithLogger sets the logger used for unexpected failures.
func WithLogger(log *zap.Logger) AuthHandlerOption {
	return func(h *AuthHandler) {
		if log != nil {
			h.logger = log
		}
	}
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth Authenticator, opts ...AuthHandlerOption) *AuthHandler {
	handler := &AuthHandler{
		auth:   auth,
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}

	return handler
}

// RouteMiddlewares holds the per-route middleware the router supplies.
type RouteMiddlewares struct {
	RequireAuth    gin.HandlerFunc
	Login          []gin.HandlerFunc
	ForgotPassword []gin.HandlerFunc
}

// RegisterRoutes binds the authentication routes. Routes backed by a missing service are not registered.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, mw RouteMiddlewares) {
	r.POST("/login", chain(mw.Login, h.login)...)
	r.POST("/new-access-token", h.refresh)

	if mw.RequireAuth != nil {
		r.POST("/logout", mw.RequireAuth, h.logout)
		r.GET("/me", mw.RequireAuth, h.me)
	}

	if h.registration != nil {
		r.POST("/register", h.register)
		r.GET("/confirm-email", h.confirmEmail)
	}

	if h.passwords != nil {
		r.POST("/forgot-password", chain(mw.ForgotPassword, h.forgotPassword)...)
		r.POST("/reset-password", h.resetPassword)
	}
}

func chain(middlewares []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	handlers := make([]gin.HandlerFunc, 0, len(middlewares)+1)
	for _, mw := range middlewares {
		if mw != nil {
			handlers = append(handlers, mw)
		}
	}
	return append(handlers, handler)
}

func (h *AuthHandler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	result, err := h.registration.Register(c.Request.Context(), usecase.RegisterInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		respondUnexpected(c, h.logger, "register", err)
		return
	}

	code := statusCode(registerStatusCodes, result.Status)
	switch result.Status {
	case usecase.RegisterCreated:
		c.JSON(code, RegisterResponse{
			ID:                result.AccountID,
			Email:             result.Email,
			Dispatched:        result.Dispatched,
			Message:           result.Message,
			ConfirmationToken: result.ConfirmationToken,
		})
	case usecase.RegisterInvalid:
		c.JSON(code, ProblemResponse{
			Error:    result.Message,
			Problems: result.Problems,
			TraceID:  middleware.GetTraceID(c),
		})
	default:
		c.JSON(code, NewErrorResponse(c, result.Message))
	}
}

func (h *AuthHandler) confirmEmail(c *gin.Context) {
	result, err := h.registration.ConfirmEmail(c.Request.Context(), c.Query("userId"), c.Query("token"))
	if err != nil {
		respondUnexpected(c, h.logger, "confirm_email", err)
		return
	}

	code := statusCode(confirmStatusCodes, result.Status)
	if result.Status == usecase.ConfirmConfirmed && result.Credential != nil {
		c.JSON(code, newAuthResponse(result.Credential))
		return
	}
	c.JSON(code, NewErrorResponse(c, result.Message))
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		RememberMe:      req.RememberMe,
	})
	if err != nil {
		respondUnexpected(c, h.logger, "login", err)
		return
	}

	code := statusCode(loginStatusCodes, result.Status)
	switch {
	case result.Status == usecase.LoginAuthenticated && result.Credential != nil:
		c.JSON(code, newAuthResponse(result.Credential))
	case result.Status == usecase.LoginLockedOut:
		c.Header("Retry-After", strconv.Itoa(result.LockoutMinutes*60))
		c.JSON(code, LockoutResponse{
			Error:          result.Message,
			LockoutMinutes: result.LockoutMinutes,
			TraceID:        middleware.GetTraceID(c),
		})
	default:
		c.JSON(code, NewErrorResponse(c, result.Message))
	}
}

func (h *AuthHandler) refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid refresh payload"))
		return
	}

	result, err := h.auth.RefreshAccessToken(c.Request.Context(), usecase.RefreshInput{
		AccessToken:  req.Token,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		respondUnexpected(c, h.logger, "refresh", err)
		return
	}

	code := statusCode(refreshStatusCodes, result.Status)
	if result.Status == usecase.RefreshRotated && result.Credential != nil {
		c.JSON(code, newAuthResponse(result.Credential))
		return
	}

	appLogger.WithContext(c.Request.Context(), h.logger).Info("refresh rejected", zap.String("reason", result.Reason))
	c.JSON(code, NewErrorResponse(c, "invalid access token or refresh token"))
}

func (h *AuthHandler) logout(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), accountID); err != nil {
		respondUnexpected(c, h.logger, "logout", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) me(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	result, err := h.auth.Profile(c.Request.Context(), accountID)
	if err != nil {
		respondUnexpected(c, h.logger, "profile", err)
		return
	}

	code := statusCode(profileStatusCodes, result.Status)
	if result.Status == usecase.ProfileFound && result.Credential != nil {
		c.JSON(code, newAuthResponse(result.Credential))
		return
	}
	c.JSON(code, NewErrorResponse(c, "account no longer exists"))
}

func (h *AuthHandler) forgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid forgot password payload"))
		return
	}

	result, err := h.passwords.ForgotPassword(c.Request.Context(), usecase.ForgotPasswordInput{
		Email:     req.Email,
		ClientURI: req.ClientURI,
	})
	if err != nil {
		respondUnexpected(c, h.logger, "forgot_password", err)
		return
	}

	code := statusCode(forgotPasswordStatusCodes, result.Status)
	switch result.Status {
	case usecase.ForgotPasswordSent:
		c.JSON(code, MessageResponse{Message: result.Message})
	case usecase.ForgotPasswordRateLimited:
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
		c.JSON(code, NewErrorResponse(c, result.Message))
	default:
		c.JSON(code, NewErrorResponse(c, result.Message))
	}
}

func (h *AuthHandler) resetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset password payload"))
		return
	}

	result, err := h.passwords.ResetPassword(c.Request.Context(), usecase.ResetPasswordInput{
		Email:       req.Email,
		Token:       req.Token,
		NewPassword: req.Password,
	})
	if err != nil {
		respondUnexpected(c, h.logger, "reset_password", err)
		return
	}

	code := statusCode(resetPasswordStatusCodes, result.Status)
	if result.Status == usecase.ResetPasswordCompleted {
		c.JSON(code, MessageResponse{Message: result.Message})
		return
	}
	c.JSON(code, ProblemResponse{
		Error:    result.Message,
		Problems: result.Problems,
		TraceID:  middleware.GetTraceID(c),
	})
}
