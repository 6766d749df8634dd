package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atymri/Promptino/internal/core/domain"
	"github.com/atymri/Promptino/internal/core/port"
	"github.com/atymri/Promptino/internal/repository"
)

var defaultRoles = []struct {
	name    string
	details string
}{
	{name: domain.RoleAdmin, details: "System administrator with full access to every section"},
	{name: domain.RoleUser, details: "Regular member with access to the basic features"},
}

// AdminAccount describes the administrator created on first start. Empty Email or Password skips it.
type AdminAccount struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// Seeder creates the default roles and the bootstrap administrator.
type Seeder struct {
	roles  port.RoleRepository
	hasher port.PasswordHasher
	tx     port.AccountTransactor
	admin  AdminAccount
	logger *zap.Logger
	now    func() time.Time
}

// NewSeeder constructs a Seeder.
func NewSeeder(accounts port.AccountRepository, roles port.RoleRepository, hasher port.PasswordHasher, admin AdminAccount, log *zap.Logger) *Seeder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Seeder{
		roles:  roles,
		hasher: hasher,
		tx:     directTx{accounts: accounts, roles: roles},
		admin:  admin,
		logger: log,
		now:    time.Now,
	}
}

// WithTransactor makes the admin account and its role grant commit together.
func (s *Seeder) WithTransactor(tx port.AccountTransactor) *Seeder {
	if tx != nil {
		s.tx = tx
	}
	return s
}

// EnsureDefaults is idempotent and safe to run on every start.
func (s *Seeder) EnsureDefaults(ctx context.Context) error {
	for _, role := range defaultRoles {
		details := role.details
		created, err := s.roles.EnsureRole(ctx, domain.Role{ID: uuid.NewString(), Name: role.name, Details: &details})
		if err != nil {
			return fmt.Errorf("ensure role %s: %w", role.name, err)
		}
		if created {
			s.logger.Info("role created", zap.String("role", role.name))
		}
	}

	return s.ensureAdmin(ctx)
}

func (s *Seeder) ensureAdmin(ctx context.Context) error {
	email := domain.NormalizeEmail(s.admin.Email)
	if email == "" || s.admin.Password == "" {
		s.logger.Info("bootstrap admin not configured, skipping")
		return nil
	}

	seed := func(ctx context.Context, accounts port.AccountRepository, roles port.RoleRepository) error {
		return s.seedAdmin(ctx, accounts, roles, email)
	}

	err := s.tx.WithinTx(ctx, seed)
	if errors.Is(err, repository.ErrConflict) {
		// another instance inserted the admin first; its row is visible to a fresh transaction
		err = s.tx.WithinTx(ctx, seed)
	}
	return err
}

func (s *Seeder) seedAdmin(ctx context.Context, accounts port.AccountRepository, roles port.RoleRepository, email string) error {
	account, err := accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		account, err = s.createAdmin(ctx, accounts, email)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("lookup admin account: %w", err)
	}

	if err := roles.AssignRole(ctx, account.ID, domain.RoleAdmin); err != nil {
		return fmt.Errorf("assign admin role: %w", err)
	}

	return nil
}

func (s *Seeder) createAdmin(ctx context.Context, accounts port.AccountRepository, email string) (*domain.Account, error) {
	hash, err := s.hasher.Hash(s.admin.Password)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}

	account := domain.Account{
		ID:                uuid.NewString(),
		Email:             email,
		PasswordHash:      hash,
		FirstName:         strings.TrimSpace(s.admin.FirstName),
		LastName:          strings.TrimSpace(s.admin.LastName),
		PhoneNumber:       strings.TrimSpace(s.admin.Phone),
		EmailConfirmed:    true,
		LockoutEnabled:    false,
		LockoutMultiplier: domain.DefaultLockoutMultiplier,
		CreatedAt:         s.now().UTC(),
	}

	if err := accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("create admin account: %w", err)
	}

	s.logger.Info("bootstrap admin created", zap.String("account_id", account.ID))
	return &account, nil
}

// directTx runs fn against the plain repositories when no transactor is configured.
type directTx struct {
	accounts port.AccountRepository
	roles    port.RoleRepository
}

func (d directTx) WithinTx(ctx context.Context, fn port.AccountTxFunc) error {
	return fn(ctx, d.accounts, d.roles)
}
