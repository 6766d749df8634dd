package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/atymri/Promptino/internal/core/domain"
	"github.com/atymri/Promptino/internal/core/port"
	"github.com/atymri/Promptino/internal/infra/config"
	"github.com/atymri/Promptino/internal/infra/logger"
	"github.com/atymri/Promptino/internal/infra/security"
	"github.com/atymri/Promptino/internal/repository"
)

var tracer = otel.Tracer("promptino/usecase")

const (
	defaultMaxFailedAttempts  = 5
	defaultLockoutBaseMinutes = 5

	maxLockoutMinutes = math.MaxInt64 / int64(time.Minute)
)

// TokenSigner mints credentials and extracts the principal from access tokens.
type TokenSigner interface {
	CreateToken(ctx context.Context, account domain.Account) (domain.Credential, error)
	GetPrincipalFromToken(raw string) (*security.AccessTokenClaims, error)
}

// LockoutPolicy controls when repeated password failures lock an account and for how long.
type LockoutPolicy struct {
	MaxFailedAttempts int
	BaseMinutes       int
}

// LockoutPolicyFromConfig converts lockout settings, falling back to defaults for unset values.
func LockoutPolicyFromConfig(cfg config.LockoutSettings) LockoutPolicy {
	policy := LockoutPolicy{MaxFailedAttempts: cfg.MaxFailedAttempts, BaseMinutes: cfg.BaseMinutes}
	if policy.MaxFailedAttempts <= 0 {
		policy.MaxFailedAttempts = defaultMaxFailedAttempts
	}
	if policy.BaseMinutes <= 0 {
		policy.BaseMinutes = defaultLockoutBaseMinutes
	}
	return policy
}

// LoginInput carries the sign-in form.
type LoginInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	RememberMe      bool
}

// RefreshInput carries an access token, possibly expired, and the refresh token issued with it.
type RefreshInput struct {
	AccessToken  string
	RefreshToken string
}

// AuthService runs the login state machine, the refresh exchange and logout.
type AuthService struct {
	accounts port.AccountRepository
	roles    port.RoleLookup
	signer   TokenSigner
	hasher   port.PasswordHasher
	lockout  LockoutPolicy
	events   port.EventPublisher
	observer port.AuthObserver
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(accounts port.AccountRepository, roles port.RoleLookup, signer TokenSigner, hasher port.PasswordHasher, lockout LockoutPolicy) *AuthService {
	if lockout.MaxFailedAttempts <= 0 {
		lockout.MaxFailedAttempts = defaultMaxFailedAttempts
	}
	if lockout.BaseMinutes <= 0 {
		lockout.BaseMinutes = defaultLockoutBaseMinutes
	}

	return &AuthService{
		accounts: accounts,
		roles:    roles,
		signer:   signer,
		hasher:   hasher,
		lockout:  lockout,
		observer: noopObserver{},
		logger:   zap.NewNop(),
		now:      time.Now,
	}
}

// WithEvents configures the publisher used for lockout events.
func (s *AuthService) WithEvents(events port.EventPublisher) *AuthService {
	s.events = events
	return s
}

// WithObserver configures the metrics sink for login and refresh outcomes.
func (s *AuthService) WithObserver(observer port.AuthObserver) *AuthService {
	if observer != nil {
		s.observer = observer
	}
	return s
}

// WithLogger configures the logger.
func (s *AuthService) WithLogger(log *zap.Logger) *AuthService {
	if log != nil {
		s.logger = log
	}
	return s
}

// WithClock allows injection of a custom clock (primarily for testing).
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// Login authenticates the account and, on success, returns a fresh credential with a persisted
// refresh token. Business rejections are reported through the result status; the error is
// reserved for store and signing faults.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Login")
	defer span.End()

	result, err := s.login(ctx, input)
	if err != nil {
		span.RecordError(err)
		return LoginResult{}, err
	}

	span.SetAttributes(attribute.String("auth.outcome", result.Status.String()))
	s.observer.ObserveLogin(result.Status.String())
	return result, nil
}

func (s *AuthService) login(ctx context.Context, input LoginInput) (LoginResult, error) {
	log := logger.WithContext(ctx, s.logger)

	email := domain.NormalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return LoginResult{Status: LoginInvalidRequest, Message: "email and password are required"}, nil
	}
	if input.ConfirmPassword != "" && input.ConfirmPassword != input.Password {
		return LoginResult{Status: LoginInvalidRequest, Message: "password and confirmation do not match"}, nil
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info("login rejected: unknown email", zap.String("email", logger.MaskEmail(email)))
			return LoginResult{Status: LoginEmailUnknown, Message: "no account is registered with this email"}, nil
		}
		return LoginResult{}, fmt.Errorf("lookup account: %w", err)
	}

	if !account.EmailConfirmed {
		log.Info("login rejected: email unconfirmed", zap.String("account_id", account.ID))
		return LoginResult{Status: LoginEmailUnconfirmed, Message: "email address has not been confirmed"}, nil
	}

	now := s.now().UTC()
	if account.IsLockedOut(now) {
		return lockedOut(domain.WholeMinutes(account.LockoutRemaining(now))), nil
	}

	ok, err := s.hasher.Verify(input.Password, account.PasswordHash)
	if err != nil {
		return LoginResult{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return s.recordFailure(ctx, account, now)
	}

	if account.Multiplier() > domain.DefaultLockoutMultiplier || account.AccessFailedCount > 0 || account.LockoutEnd != nil {
		if err := s.accounts.ResetLockout(ctx, account.ID); err != nil {
			return LoginResult{}, fmt.Errorf("reset lockout: %w", err)
		}
		account.LockoutMultiplier = domain.DefaultLockoutMultiplier
		account.AccessFailedCount = 0
		account.LockoutEnd = nil
	}

	credential, err := issueCredential(ctx, s.accounts, s.signer, *account, now)
	if err != nil {
		return LoginResult{}, err
	}

	log.Info("login succeeded",
		zap.String("account_id", account.ID),
		zap.Bool("remember_me", input.RememberMe),
	)

	return LoginResult{Status: LoginAuthenticated, Credential: &credential}, nil
}

func (s *AuthService) recordFailure(ctx context.Context, account *domain.Account, now time.Time) (LoginResult, error) {
	log := logger.WithContext(ctx, s.logger)

	if !account.LockoutEnabled {
		log.Info("login rejected: wrong password", zap.String("account_id", account.ID))
		return passwordInvalid(), nil
	}

	failures, err := s.accounts.IncrementAccessFailed(ctx, account.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("record failed attempt: %w", err)
	}
	if failures < s.lockout.MaxFailedAttempts {
		log.Info("login rejected: wrong password",
			zap.String("account_id", account.ID),
			zap.Int("failed_attempts", failures),
		)
		return passwordInvalid(), nil
	}

	multiplier := account.Multiplier()
	minutes := lockoutMinutes(s.lockout.BaseMinutes, multiplier)
	lockoutEnd := now.Add(time.Duration(minutes) * time.Minute)
	next := nextMultiplier(multiplier)

	applied, err := s.accounts.ApplyLockout(ctx, account.ID, multiplier, lockoutEnd, next)
	if err != nil {
		return LoginResult{}, fmt.Errorf("apply lockout: %w", err)
	}
	if !applied {
		current, err := s.accounts.GetByID(ctx, account.ID)
		if err != nil {
			return LoginResult{}, fmt.Errorf("reload account after lockout race: %w", err)
		}
		if current.IsLockedOut(now) {
			return lockedOut(domain.WholeMinutes(current.LockoutRemaining(now))), nil
		}
		return passwordInvalid(), nil
	}

	log.Warn("account locked out",
		zap.String("account_id", account.ID),
		zap.Int("lockout_minutes", minutes),
		zap.Int("next_multiplier", next),
	)
	s.observer.ObserveLockout(minutes)

	if s.events != nil {
		event := domain.AccountLockedOutEvent{
			EventID:        uuid.NewString(),
			AccountID:      account.ID,
			LockedAt:       now,
			LockoutEnd:     lockoutEnd,
			LockoutMinutes: minutes,
			NextMultiplier: next,
		}
		if err := s.events.PublishAccountLockedOut(ctx, event); err != nil {
			log.Warn("publish account locked out event failed", zap.String("account_id", account.ID), zap.Error(err))
		}
	}

	return lockedOut(minutes), nil
}

// RefreshAccessToken exchanges an access token, which may have expired, and its refresh token
// for a new pair. The presented refresh token is consumed by a conditional write so it can be
// exchanged at most once.
func (s *AuthService) RefreshAccessToken(ctx context.Context, input RefreshInput) (RefreshResult, error) {
	ctx, span := tracer.Start(ctx, "AuthService.RefreshAccessToken")
	defer span.End()

	result, err := s.refresh(ctx, input)
	if err != nil {
		span.RecordError(err)
		return RefreshResult{}, err
	}

	if result.Status != RefreshRotated {
		logger.WithContext(ctx, s.logger).Info("refresh rejected", zap.String("reason", result.Reason))
	}

	span.SetAttributes(attribute.String("auth.outcome", result.Status.String()))
	s.observer.ObserveRefresh(result.Status.String())
	return result, nil
}

func (s *AuthService) refresh(ctx context.Context, input RefreshInput) (RefreshResult, error) {
	accessToken := strings.TrimSpace(input.AccessToken)
	refreshToken := strings.TrimSpace(input.RefreshToken)
	if accessToken == "" || refreshToken == "" {
		return refreshRejected("missing token"), nil
	}

	claims, err := s.signer.GetPrincipalFromToken(accessToken)
	if err != nil {
		return refreshRejected("invalid access token"), nil
	}

	identity := claims.Identity()
	if identity == "" {
		return refreshRejected("access token carries no identity"), nil
	}

	account, err := s.accounts.GetByEmail(ctx, identity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return refreshRejected("account not found"), nil
		}
		return RefreshResult{}, fmt.Errorf("lookup account: %w", err)
	}

	now := s.now().UTC()
	switch {
	case !account.HasRefreshToken():
		return refreshRejected("no refresh token stored"), nil
	case !security.TokensEqual(account.RefreshToken, refreshToken):
		return refreshRejected("refresh token mismatch"), nil
	case !account.RefreshTokenExpiresAt.After(now):
		return refreshRejected("refresh token expired"), nil
	}

	credential, err := s.signer.CreateToken(ctx, *account)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("create credential: %w", err)
	}

	rotated, err := s.accounts.RotateRefreshToken(ctx, account.ID, refreshToken, credential.RefreshToken, credential.RefreshTokenExpiresAt, now)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !rotated {
		return refreshRejected("refresh token already used"), nil
	}

	return RefreshResult{Status: RefreshRotated, Credential: &credential}, nil
}

// Logout clears the stored refresh token of the account so no further exchange is possible.
// Access tokens already issued remain valid until they expire.
func (s *AuthService) Logout(ctx context.Context, accountID string) error {
	ctx, span := tracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil
	}

	if err := s.accounts.ClearRefreshToken(ctx, accountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		span.RecordError(err)
		return fmt.Errorf("clear refresh token: %w", err)
	}

	logger.WithContext(ctx, s.logger).Info("logout", zap.String("account_id", accountID))
	return nil
}

// Profile returns the account of an authenticated caller without any token material.
func (s *AuthService) Profile(ctx context.Context, accountID string) (ProfileResult, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Profile")
	defer span.End()

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ProfileResult{Status: ProfileNotFound}, nil
		}
		return ProfileResult{}, fmt.Errorf("lookup account: %w", err)
	}

	var roles []string
	if s.roles != nil {
		roles, err = s.roles.RolesForAccount(ctx, account.ID)
		if err != nil {
			return ProfileResult{}, fmt.Errorf("lookup roles: %w", err)
		}
	}

	now := s.now().UTC()
	return ProfileResult{
		Status: ProfileFound,
		Credential: &domain.Credential{
			AccountID:   account.ID,
			FirstName:   account.FirstName,
			LastName:    account.LastName,
			Email:       account.Email,
			PhoneNumber: account.PhoneNumber,
			IsLockedOut: account.IsLockedOut(now),
			CreatedAt:   account.CreatedAt,
			LastLoginAt: account.LastLoginAt,
			IsAdmin:     domain.HasRole(roles, domain.RoleAdmin),
			Roles:       roles,
		},
	}, nil
}

// issueCredential mints a credential and stores its refresh token against the account.
func issueCredential(ctx context.Context, accounts port.AccountRepository, signer TokenSigner, account domain.Account, now time.Time) (domain.Credential, error) {
	credential, err := signer.CreateToken(ctx, account)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("create credential: %w", err)
	}

	if err := accounts.RecordLogin(ctx, account.ID, credential.RefreshToken, credential.RefreshTokenExpiresAt, now); err != nil {
		return domain.Credential{}, fmt.Errorf("record login: %w", err)
	}

	return credential, nil
}

func lockedOut(minutes int) LoginResult {
	return LoginResult{
		Status:         LoginLockedOut,
		Message:        fmt.Sprintf("account is locked, try again in %d minute(s)", minutes),
		LockoutMinutes: minutes,
	}
}

func passwordInvalid() LoginResult {
	return LoginResult{Status: LoginPasswordInvalid, Message: "password is incorrect"}
}

func refreshRejected(reason string) RefreshResult {
	return RefreshResult{Status: RefreshInvalidRequest, Reason: reason}
}

// lockoutMinutes returns base*multiplier, saturating so the resulting duration cannot overflow.
func lockoutMinutes(base, multiplier int) int {
	if multiplier > 0 && int64(base) > maxLockoutMinutes/int64(multiplier) {
		return int(maxLockoutMinutes)
	}
	return base * multiplier
}

func nextMultiplier(current int) int {
	if current > math.MaxInt/2 {
		return math.MaxInt
	}
	return current * 2
}

type noopObserver struct{}

func (noopObserver) ObserveLogin(string)   {}
func (noopObserver) ObserveRefresh(string) {}
func (noopObserver) ObserveLockout(int)    {}
