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
	defaultConfirmationTTL = 24 * time.Hour
	oneTimeTokenBytes      = 32
)

// RegistrationOptions configures the confirmation link and token lifetime.
type RegistrationOptions struct {
	ConfirmationURL string
	ConfirmationTTL time.Duration
	// ExposeToken returns the raw confirmation token in the result. Development only.
	ExposeToken bool
}

// RegisterInput carries the sign-up form.
type RegisterInput struct {
	FirstName   string
	LastName    string
	Email       string
	Password    string
	PhoneNumber string
}

// RegistrationService creates accounts and confirms their email addresses.
type RegistrationService struct {
	accounts port.AccountRepository
	roles    port.RoleRepository
	tokens   port.OneTimeTokenStore
	notifier port.Notifier
	hasher   port.PasswordHasher
	policy   port.PasswordPolicyValidator
	signer   TokenSigner
	events   port.EventPublisher
	opts     RegistrationOptions
	logger   *zap.Logger
	now      func() time.Time
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(
	accounts port.AccountRepository,
	roles port.RoleRepository,
	tokens port.OneTimeTokenStore,
	notifier port.Notifier,
	hasher port.PasswordHasher,
	policy port.PasswordPolicyValidator,
	signer TokenSigner,
	opts RegistrationOptions,
) *RegistrationService {
	if opts.ConfirmationTTL <= 0 {
		opts.ConfirmationTTL = defaultConfirmationTTL
	}
	if policy == nil {
		policy = security.DefaultPasswordPolicy(0)
	}

	return &RegistrationService{
		accounts: accounts,
		roles:    roles,
		tokens:   tokens,
		notifier: notifier,
		hasher:   hasher,
		policy:   policy,
		signer:   signer,
		opts:     opts,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
}

// WithEvents configures the publisher for registration and confirmation events.
func (s *RegistrationService) WithEvents(events port.EventPublisher) *RegistrationService {
	s.events = events
	return s
}

// WithLogger configures the logger.
func (s *RegistrationService) WithLogger(log *zap.Logger) *RegistrationService {
	if log != nil {
		s.logger = log
	}
	return s
}

// WithClock allows injection of a custom clock (primarily for testing).
func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	if now != nil {
		s.now = now
	}
	return s
}

// Register validates the form, creates an unconfirmed account and sends the confirmation link.
// A failed dispatch is reported in the result but does not undo the account creation.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput) (RegisterResult, error) {
	ctx, span := tracer.Start(ctx, "RegistrationService.Register")
	defer span.End()

	result, err := s.register(ctx, input)
	if err != nil {
		span.RecordError(err)
		return RegisterResult{}, err
	}

	span.SetAttributes(attribute.String("registration.outcome", result.Status.String()))
	return result, nil
}

func (s *RegistrationService) register(ctx context.Context, input RegisterInput) (RegisterResult, error) {
	log := logger.WithContext(ctx, s.logger)

	email := strings.TrimSpace(input.Email)
	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)
	phone := strings.TrimSpace(input.PhoneNumber)

	var problems []string
	problems = appendProblem(problems, validateName("first name", firstName))
	problems = appendProblem(problems, validateName("last name", lastName))
	problems = appendProblem(problems, validateEmail(email))
	problems = appendProblem(problems, validatePhone(phone))
	problems = append(problems, s.policy.Violations(input.Password, email, firstName, lastName)...)
	if len(problems) > 0 {
		return RegisterResult{Status: RegisterInvalid, Email: email, Message: "registration form is invalid", Problems: problems}, nil
	}

	normalized := domain.NormalizeEmail(email)
	if _, err := s.accounts.GetByEmail(ctx, normalized); err == nil {
		return accountExists(normalized), nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return RegisterResult{}, fmt.Errorf("lookup account: %w", err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	account := domain.Account{
		ID:                uuid.NewString(),
		Email:             normalized,
		PasswordHash:      hash,
		FirstName:         firstName,
		LastName:          lastName,
		PhoneNumber:       phone,
		LockoutEnabled:    true,
		LockoutMultiplier: domain.DefaultLockoutMultiplier,
		CreatedAt:         now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return accountExists(normalized), nil
		}
		return RegisterResult{}, fmt.Errorf("create account: %w", err)
	}

	if s.roles != nil {
		if err := s.roles.AssignRole(ctx, account.ID, domain.RoleUser); err != nil {
			log.Warn("assign default role failed", zap.String("account_id", account.ID), zap.Error(err))
		}
	}

	token, err := s.issueConfirmationToken(ctx, account.ID)
	if err != nil {
		return RegisterResult{}, err
	}

	dispatched := true
	message := "account created, check your inbox to confirm your email"
	link, err := buildConfirmationLink(s.opts.ConfirmationURL, account.ID, token)
	if err == nil {
		err = s.notifier.SendEmailConfirmation(ctx, port.ConfirmationMessage{
			To:        account.Email,
			FirstName: account.FirstName,
			Link:      link,
		})
	}
	if err != nil {
		dispatched = false
		message = "account created, but the confirmation email could not be sent"
		log.Warn("confirmation dispatch failed",
			zap.String("account_id", account.ID),
			zap.String("email", logger.MaskEmail(account.Email)),
			zap.String("phone", logger.MaskPhone(account.PhoneNumber)),
			zap.Error(err),
		)
	}

	s.publishRegistered(ctx, account, dispatched, now)

	log.Info("account registered", zap.String("account_id", account.ID), zap.Bool("confirmation_dispatched", dispatched))

	result := RegisterResult{
		Status:     RegisterCreated,
		AccountID:  account.ID,
		Email:      account.Email,
		Dispatched: dispatched,
		Message:    message,
	}
	if s.opts.ExposeToken {
		result.ConfirmationToken = token
	}

	return result, nil
}

// ConfirmEmail consumes the confirmation token, marks the account confirmed and signs it in.
func (s *RegistrationService) ConfirmEmail(ctx context.Context, accountID, token string) (ConfirmResult, error) {
	ctx, span := tracer.Start(ctx, "RegistrationService.ConfirmEmail")
	defer span.End()

	result, err := s.confirm(ctx, strings.TrimSpace(accountID), strings.TrimSpace(token))
	if err != nil {
		span.RecordError(err)
		return ConfirmResult{}, err
	}

	span.SetAttributes(attribute.String("confirmation.outcome", result.Status.String()))
	return result, nil
}

func (s *RegistrationService) confirm(ctx context.Context, accountID, token string) (ConfirmResult, error) {
	if accountID == "" || token == "" {
		return ConfirmResult{Status: ConfirmInvalidRequest, Message: "user id and token are required"}, nil
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ConfirmResult{Status: ConfirmNotFound, Message: "account not found"}, nil
		}
		return ConfirmResult{}, fmt.Errorf("lookup account: %w", err)
	}

	consumed, err := s.tokens.Consume(ctx, domain.TokenPurposeEmailConfirmation, account.ID, security.HashToken(token))
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("consume confirmation token: %w", err)
	}
	if !consumed {
		return ConfirmResult{Status: ConfirmInvalidOrExpiredToken, Message: "confirmation link is invalid or has expired"}, nil
	}

	if err := s.accounts.MarkEmailConfirmed(ctx, account.ID); err != nil {
		restoreToken(ctx, s.tokens, domain.TokenPurposeEmailConfirmation, account.ID, security.HashToken(token), s.opts.ConfirmationTTL, s.logger)
		return ConfirmResult{}, fmt.Errorf("mark email confirmed: %w", err)
	}
	account.EmailConfirmed = true

	now := s.now().UTC()
	if s.events != nil {
		event := domain.EmailConfirmedEvent{
			EventID:     uuid.NewString(),
			AccountID:   account.ID,
			Email:       account.Email,
			ConfirmedAt: now,
		}
		if err := s.events.PublishEmailConfirmed(ctx, event); err != nil {
			logger.WithContext(ctx, s.logger).Warn("publish email confirmed event failed", zap.String("account_id", account.ID), zap.Error(err))
		}
	}

	credential, err := issueCredential(ctx, s.accounts, s.signer, *account, now)
	if err != nil {
		return ConfirmResult{}, err
	}

	return ConfirmResult{Status: ConfirmConfirmed, Message: "email confirmed", Credential: &credential}, nil
}

func (s *RegistrationService) issueConfirmationToken(ctx context.Context, accountID string) (string, error) {
	token, err := security.GenerateSecureToken(oneTimeTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate confirmation token: %w", err)
	}

	if err := s.tokens.Issue(ctx, domain.TokenPurposeEmailConfirmation, accountID, security.HashToken(token), s.opts.ConfirmationTTL); err != nil {
		return "", fmt.Errorf("store confirmation token: %w", err)
	}

	return token, nil
}

func (s *RegistrationService) publishRegistered(ctx context.Context, account domain.Account, dispatched bool, at time.Time) {
	if s.events == nil {
		return
	}

	event := domain.AccountRegisteredEvent{
		EventID:                uuid.NewString(),
		AccountID:              account.ID,
		Email:                  account.Email,
		RegisteredAt:           at,
		ConfirmationDispatched: dispatched,
	}
	if err := s.events.PublishAccountRegistered(ctx, event); err != nil {
		logger.WithContext(ctx, s.logger).Warn("publish account registered event failed", zap.String("account_id", account.ID), zap.Error(err))
	}
}

func buildConfirmationLink(base, accountID, token string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid confirmation url %q", base)
	}

	query := u.Query()
	query.Set("userId", accountID)
	query.Set("token", token)
	u.RawQuery = query.Encode()

	return u.String(), nil
}

func accountExists(email string) RegisterResult {
	return RegisterResult{Status: RegisterAccountExists, Email: email, Message: "an account with this email already exists"}
}

// restoreToken reissues a consumed one-time token when the write it guarded failed, so the link
// already in the user's inbox can be retried. The token gets a fresh ttl.
func restoreToken(ctx context.Context, tokens port.OneTimeTokenStore, purpose domain.TokenPurpose, accountID, tokenHash string, ttl time.Duration, log *zap.Logger) {
	if err := tokens.Issue(ctx, purpose, accountID, tokenHash, ttl); err != nil {
		logger.WithContext(ctx, log).Warn("restore one-time token failed, a new link is required",
			zap.String("purpose", string(purpose)),
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}
}
