package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/atymri/Promptino/internal/core/domain"
	"github.com/atymri/Promptino/internal/core/port"
	"github.com/atymri/Promptino/internal/repository"
)

const accountsTable = "promptino.accounts"

var accountColumns = []string{
	"id",
	"email",
	"password_hash",
	"first_name",
	"last_name",
	"phone_number",
	"email_confirmed",
	"lockout_enabled",
	"lockout_end",
	"lockout_multiplier",
	"access_failed_count",
	"refresh_token",
	"refresh_token_expires_at",
	"created_at",
	"last_login_at",
}

// AccountRepository implements port.AccountRepository using PostgreSQL.
type AccountRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAccountRepository wires a PostgreSQL-backed account repository.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	return &AccountRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
	if tx == nil {
		return r
	}
	return &AccountRepository{
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new account row. A duplicate email yields repository.ErrConflict.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	var refreshToken any
	if account.RefreshToken != "" {
		refreshToken = account.RefreshToken
	}

	stmt, args, err := r.builder.Insert(accountsTable).
		Columns(accountColumns...).
		Values(
			account.ID,
			domain.NormalizeEmail(account.Email),
			account.PasswordHash,
			account.FirstName,
			account.LastName,
			account.PhoneNumber,
			account.EmailConfirmed,
			account.LockoutEnabled,
			optionalTime(account.LockoutEnd),
			account.Multiplier(),
			account.AccessFailedCount,
			refreshToken,
			optionalTime(account.RefreshTokenExpiresAt),
			account.CreatedAt,
			optionalTime(account.LastLoginAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id}, "by id")
}

// GetByEmail retrieves an account by its normalized email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getOne(ctx, squirrel.Eq{"email": domain.NormalizeEmail(email)}, "by email")
}

func (r *AccountRepository) getOne(ctx context.Context, where squirrel.Eq, label string) (*domain.Account, error) {
	stmt, args, err := r.builder.Select(accountColumns...).
		From(accountsTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account %s sql: %w", label, err)
	}

	var (
		account               domain.Account
		lockoutEnd            sql.NullTime
		refreshToken          sql.NullString
		refreshTokenExpiresAt sql.NullTime
		lastLoginAt           sql.NullTime
	)

	row := r.exec.QueryRow(ctx, stmt, args...)
	if err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.FirstName,
		&account.LastName,
		&account.PhoneNumber,
		&account.EmailConfirmed,
		&account.LockoutEnabled,
		&lockoutEnd,
		&account.LockoutMultiplier,
		&account.AccessFailedCount,
		&refreshToken,
		&refreshTokenExpiresAt,
		&account.CreatedAt,
		&lastLoginAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account %s: %w", label, err)
	}

	account.LockoutEnd = nullableTimePtr(lockoutEnd)
	account.RefreshToken = refreshToken.String
	account.RefreshTokenExpiresAt = nullableTimePtr(refreshTokenExpiresAt)
	account.LastLoginAt = nullableTimePtr(lastLoginAt)

	return &account, nil
}

// IncrementAccessFailed bumps the failure counter in a single statement and returns the new value.
func (r *AccountRepository) IncrementAccessFailed(ctx context.Context, id string) (int, error) {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("access_failed_count", squirrel.Expr("access_failed_count + 1")).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING access_failed_count").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build increment access failed sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("increment access failed: %w", err)
	}

	return count, nil
}

// ApplyLockout locks the account until lockoutEnd and escalates the multiplier, but only while the
// stored multiplier still equals expectedMultiplier. It reports whether the write happened.
func (r *AccountRepository) ApplyLockout(ctx context.Context, id string, expectedMultiplier int, lockoutEnd time.Time, nextMultiplier int) (bool, error) {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("lockout_end", lockoutEnd).
		Set("lockout_multiplier", nextMultiplier).
		Set("access_failed_count", 0).
		Where(squirrel.Eq{"id": id, "lockout_multiplier": expectedMultiplier}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build apply lockout sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("apply lockout: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ResetLockout restores the default lockout state after a successful sign-in or password change.
func (r *AccountRepository) ResetLockout(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("access_failed_count", 0).
		Set("lockout_multiplier", domain.DefaultLockoutMultiplier).
		Set("lockout_end", nil).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reset lockout sql: %w", err)
	}

	return r.execOne(ctx, stmt, args, "reset lockout")
}

// RecordLogin stores the issued refresh token and stamps the login time.
func (r *AccountRepository) RecordLogin(ctx context.Context, id string, refreshToken string, refreshExpiresAt time.Time, at time.Time) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("refresh_token", refreshToken).
		Set("refresh_token_expires_at", refreshExpiresAt).
		Set("last_login_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record login sql: %w", err)
	}

	return r.execOne(ctx, stmt, args, "record login")
}

// RotateRefreshToken replaces the stored refresh token only if it still equals expected and has not
// expired at now. A false result means another exchange consumed the token first.
func (r *AccountRepository) RotateRefreshToken(ctx context.Context, id string, expected string, next string, nextExpiresAt time.Time, now time.Time) (bool, error) {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("refresh_token", next).
		Set("refresh_token_expires_at", nextExpiresAt).
		Where(squirrel.Eq{"id": id, "refresh_token": expected}).
		Where(squirrel.Gt{"refresh_token_expires_at": now}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build rotate refresh token sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("rotate refresh token: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ClearRefreshToken drops the stored refresh token so it can no longer be exchanged.
func (r *AccountRepository) ClearRefreshToken(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("refresh_token", nil).
		Set("refresh_token_expires_at", nil).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear refresh token sql: %w", err)
	}

	return r.execOne(ctx, stmt, args, "clear refresh token")
}

// MarkEmailConfirmed flags the account email as confirmed.
func (r *AccountRepository) MarkEmailConfirmed(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("email_confirmed", true).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark email confirmed sql: %w", err)
	}

	return r.execOne(ctx, stmt, args, "mark email confirmed")
}

// UpdatePassword replaces the stored password hash.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("password_hash", passwordHash).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	return r.execOne(ctx, stmt, args, "update password")
}

func (r *AccountRepository) execOne(ctx context.Context, stmt string, args []any, label string) error {
	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ port.AccountRepository = (*AccountRepository)(nil)
