package port

import (
	"context"
	"time"

	"github.com/atymri/Promptino/internal/core/domain"
)

// AccountRepository exposes persistence behavior for accounts.
//
// Lockout escalation and refresh rotation are conditional writes: the boolean result reports
// whether the row still matched the expected state when the update ran.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)

	IncrementAccessFailed(ctx context.Context, id string) (int, error)
	ApplyLockout(ctx context.Context, id string, expectedMultiplier int, lockoutEnd time.Time, nextMultiplier int) (bool, error)
	ResetLockout(ctx context.Context, id string) error

	RecordLogin(ctx context.Context, id string, refreshToken string, refreshExpiresAt time.Time, at time.Time) error
	RotateRefreshToken(ctx context.Context, id string, expected string, next string, nextExpiresAt time.Time, now time.Time) (bool, error)
	ClearRefreshToken(ctx context.Context, id string) error

	MarkEmailConfirmed(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
}
