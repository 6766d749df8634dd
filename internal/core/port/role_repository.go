package port

import (
	"context"

	"github.com/atymri/Promptino/internal/core/domain"
)

// RoleLookup resolves the role names held by an account, ordered by name.
type RoleLookup interface {
	RolesForAccount(ctx context.Context, accountID string) ([]string, error)
}

// RoleRepository handles role seeding and membership.
type RoleRepository interface {
	RoleLookup
	EnsureRole(ctx context.Context, role domain.Role) (bool, error)
	AssignRole(ctx context.Context, accountID string, roleName string) error
}
