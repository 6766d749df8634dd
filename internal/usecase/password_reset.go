package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/atymri/Promptino/internal/core/domain"
	"github.com/atymri/Promptino/internal/core/port"
	"github.com/atymri/Promptino/internal/infra/logger"
	"github.com/atymri/Promptino/internal/infra/security"
	"github.com/atymri/Promptino/internal/repository"
)

const (
	defaultResetTTL = time.Hour

	passwordResetRateLimitScope = "forgot_password"
	passwordResetReason         = "password_reset"
)

// PasswordResetOptions configures reset token lifetime and the per-account request throttle.
// A non-positive MaxAttempts disables the throttle.
type PasswordResetOptions struct {
	ResetTTL    time.Duration
	MaxAttempts int
	Window      time.Duration
}

// ForgotPasswordInput names the account and the client page the reset link should open.
type ForgotPasswordInput struct {
	Email     string
	ClientURI string
}

// ResetPasswordInput carries the reset token together with the new password.
type ResetPasswordInput struct {
	Email       string
	Token       string
	NewPassword string
}

// PasswordResetService issues reset links and completes password resets.
type PasswordResetService struct {
	accounts   port.AccountRepository
	tokens     port.OneTimeTokenStore
	notifier   port.Notifier
	hasher     port.PasswordHasher
	policy     port.PasswordPolicyValidator
	rateLimits port.RateLimitStore
	events     port.EventPublisher
	opts       PasswordResetOptions
	logger     *zap.Logger
	now        func() time.Time
}

// NewPasswordResetService constructs a PasswordResetService. rateLimits may be nil.
func NewPasswordResetService(
	accounts port.AccountRepository,
	tokens port.OneTimeTokenStore,
	notifier port.Notifier,
	hasher port.PasswordHasher,
	policy port.PasswordPolicyValidator,
	rateLimits port.RateLimitStore,
	opts PasswordResetOptions,
) *PasswordResetService {
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = defaultResetTTL
	}
	if opts.Window <= 0 {
		opts.Window = 15 * time.Minute
	}
	if policy == nil {
		policy = security.DefaultPasswordPolicy(0)
	}

	return &PasswordResetService{
		accounts:   accounts,
		tokens:     tokens,
		notifier:   notifier,
		hasher:     hasher,
		policy:     policy,
		rateLimits: rateLimits,
		opts:       opts,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
}

// WithEvents configures the publisher for reset events.
func (s *PasswordResetService) WithEvents(events port.EventPublisher) *PasswordResetService {
	s.events = events
	return s
}

// WithLogger configures the logger.
func (s *PasswordResetService) WithLogger(log *zap.Logger) *PasswordResetService {
	if log != nil {
		s.logger = log
	}
	return s
}

// WithClock allows injection of a custom clock (primarily for testing).
func (s *PasswordResetService) WithClock(now func() time.Time) *PasswordResetService {
	if now != nil {
		s.now = now
	}
	return s
}

// ForgotPassword sends a single-use reset link to the account email.
func (s *PasswordResetService) ForgotPassword(ctx context.Context, input ForgotPasswordInput) (ForgotPasswordResult, error) {
	ctx, span := tracer.Start(ctx, "PasswordResetService.ForgotPassword")
	defer span.End()

	result, err := s.forgot(ctx, input)
	if err != nil {
		span.RecordError(err)
		return ForgotPasswordResult{}, err
	}

	span.SetAttributes(attribute.String("password_reset.outcome", result.Status.String()))
	return result, nil
}

func (s *PasswordResetService) forgot(ctx context.Context, input ForgotPasswordInput) (ForgotPasswordResult, error) {
	log := logger.WithContext(ctx, s.logger)

	email := domain.NormalizeEmail(input.Email)
	if email == "" {
		return forgotRejected("email is required"), nil
	}

	callback, err := parseClientURI(input.ClientURI)
	if err != nil {
		return forgotRejected("client uri must be an absolute http(s) url"), nil
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info("password reset rejected: unknown email", zap.String("email", logger.MaskEmail(email)))
			return forgotRejected("no account is registered with this email"), nil
		}
		return ForgotPasswordResult{}, fmt.Errorf("lookup account: %w", err)
	}

	now := s.now().UTC()
	if retryAfter, limited := s.throttle(ctx, account.ID, now); limited {
		return ForgotPasswordResult{
			Status:     ForgotPasswordRateLimited,
			Message:    "too many password reset requests, try again later",
			RetryAfter: retryAfter,
		}, nil
	}

	token, err := security.GenerateSecureToken(oneTimeTokenBytes)
	if err != nil {
		return ForgotPasswordResult{}, fmt.Errorf("generate reset token: %w", err)
	}
	if err := s.tokens.Issue(ctx, domain.TokenPurposePasswordReset, account.ID, security.HashToken(token), s.opts.ResetTTL); err != nil {
		return ForgotPasswordResult{}, fmt.Errorf("store reset token: %w", err)
	}

	query := callback.Query()
	query.Set("token", token)
	query.Set("email", account.Email)
	callback.RawQuery = query.Encode()

	sendErr := s.notifier.SendPasswordReset(ctx, port.PasswordResetMessage{
		To:        account.Email,
		FirstName: account.FirstName,
		Link:      callback.String(),
	})

	s.publishResetRequested(ctx, account, now, sendErr == nil)

	if sendErr != nil {
		log.Error("password reset dispatch failed", zap.String("account_id", account.ID), zap.Error(sendErr))
		return ForgotPasswordResult{
			Status:  ForgotPasswordNotificationFailure,
			Message: "the password reset email could not be sent",
		}, nil
	}

	log.Info("password reset link sent", zap.String("account_id", account.ID))
	return ForgotPasswordResult{Status: ForgotPasswordSent, Message: "password reset link sent"}, nil
}

// ResetPassword replaces the password when the reset token matches. A successful reset also
// ends the current refresh session and clears any lockout.
func (s *PasswordResetService) ResetPassword(ctx context.Context, input ResetPasswordInput) (ResetPasswordResult, error) {
	ctx, span := tracer.Start(ctx, "PasswordResetService.ResetPassword")
	defer span.End()

	result, err := s.reset(ctx, input)
	if err != nil {
		span.RecordError(err)
		return ResetPasswordResult{}, err
	}

	span.SetAttributes(attribute.String("password_reset.outcome", result.Status.String()))
	return result, nil
}

func (s *PasswordResetService) reset(ctx context.Context, input ResetPasswordInput) (ResetPasswordResult, error) {
	email := domain.NormalizeEmail(input.Email)
	token := strings.TrimSpace(input.Token)
	if email == "" || token == "" {
		return resetRejected("email and token are required"), nil
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return resetRejected("password reset request is invalid"), nil
		}
		return ResetPasswordResult{}, fmt.Errorf("lookup account: %w", err)
	}

	if problems := s.policy.Violations(input.NewPassword, account.Email, account.FirstName, account.LastName); len(problems) > 0 {
		result := resetRejected("new password does not meet the password policy")
		result.Problems = problems
		return result, nil
	}

	tokenHash := security.HashToken(token)
	consumed, err := s.tokens.Consume(ctx, domain.TokenPurposePasswordReset, account.ID, tokenHash)
	if err != nil {
		return ResetPasswordResult{}, fmt.Errorf("consume reset token: %w", err)
	}
	if !consumed {
		return resetRejected("password reset token is invalid or has expired"), nil
	}

	hash, err := s.hasher.Hash(input.NewPassword)
	if err != nil {
		restoreToken(ctx, s.tokens, domain.TokenPurposePasswordReset, account.ID, tokenHash, s.opts.ResetTTL, s.logger)
		return ResetPasswordResult{}, fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
		restoreToken(ctx, s.tokens, domain.TokenPurposePasswordReset, account.ID, tokenHash, s.opts.ResetTTL, s.logger)
		return ResetPasswordResult{}, fmt.Errorf("update password: %w", err)
	}
	if err := s.accounts.ClearRefreshToken(ctx, account.ID); err != nil {
		return ResetPasswordResult{}, fmt.Errorf("clear refresh token: %w", err)
	}
	if err := s.accounts.ResetLockout(ctx, account.ID); err != nil {
		return ResetPasswordResult{}, fmt.Errorf("reset lockout: %w", err)
	}

	now := s.now().UTC()
	if s.events != nil {
		event := domain.PasswordChangedEvent{
			EventID:   uuid.NewString(),
			AccountID: account.ID,
			ChangedAt: now,
			Reason:    passwordResetReason,
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			logger.WithContext(ctx, s.logger).Warn("publish password changed event failed", zap.String("account_id", account.ID), zap.Error(err))
		}
	}

	logger.WithContext(ctx, s.logger).Info("password reset completed", zap.String("account_id", account.ID))
	return ResetPasswordResult{Status: ResetPasswordCompleted, Message: "password has been reset"}, nil
}

// throttle applies the sliding-window limit. Store failures are logged and let the request through.
func (s *PasswordResetService) throttle(ctx context.Context, accountID string, now time.Time) (time.Duration, bool) {
	if s.rateLimits == nil || s.opts.MaxAttempts <= 0 {
		return 0, false
	}

	log := logger.WithContext(ctx, s.logger)
	key := passwordResetRateLimitScope + ":" + accountID
	window := s.opts.Window

	if err := s.rateLimits.TrimWindow(ctx, key, window, now); err != nil {
		log.Warn("password reset rate limit trim failed", zap.Error(err))
		return 0, false
	}

	count, err := s.rateLimits.CountAttempts(ctx, key, window, now)
	if err != nil {
		log.Warn("password reset rate limit count failed", zap.Error(err))
		return 0, false
	}

	if count >= s.opts.MaxAttempts {
		retryAfter := window
		if oldest, ok, err := s.rateLimits.OldestAttempt(ctx, key, window, now); err == nil && ok {
			if reset := oldest.Add(window); reset.After(now) {
				retryAfter = reset.Sub(now)
			}
		} else if err != nil {
			log.Warn("password reset rate limit oldest lookup failed", zap.Error(err))
		}
		log.Info("password reset throttled", zap.String("account_id", accountID), zap.Duration("retry_after", retryAfter))
		return retryAfter, true
	}

	if err := s.rateLimits.RecordAttempt(ctx, key, now); err != nil {
		log.Warn("password reset rate limit record failed", zap.Error(err))
	}

	return 0, false
}

func (s *PasswordResetService) publishResetRequested(ctx context.Context, account *domain.Account, at time.Time, delivered bool) {
	if s.events == nil {
		return
	}

	event := domain.PasswordResetRequestedEvent{
		EventID:           uuid.NewString(),
		AccountID:         account.ID,
		RequestedAt:       at,
		MaskedDestination: logger.MaskEmail(account.Email),
		ExpiresAt:         at.Add(s.opts.ResetTTL),
		Delivered:         delivered,
	}
	if err := s.events.PublishPasswordResetRequested(ctx, event); err != nil {
		logger.WithContext(ctx, s.logger).Warn("publish password reset requested failed", zap.String("account_id", account.ID), zap.Error(err))
	}
}

func parseClientURI(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("unsupported client uri %q", raw)
	}
	return u, nil
}

func forgotRejected(message string) ForgotPasswordResult {
	return ForgotPasswordResult{Status: ForgotPasswordInvalidRequest, Message: message}
}

func resetRejected(message string) ResetPasswordResult {
	return ResetPasswordResult{Status: ResetPasswordInvalidRequest, Message: message}
}
