package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/atymri/Promptino/internal/core/domain"
	"github.com/atymri/Promptino/internal/core/port"
	"github.com/atymri/Promptino/internal/repository"
)

const (
	rolesTable        = "promptino.roles"
	accountRolesTable = "promptino.account_roles"
)

// RoleRepository implements role persistence operations.
type RoleRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRoleRepository constructs a PostgreSQL-backed role repository.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	return &RoleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *RoleRepository) WithTx(tx pgx.Tx) *RoleRepository {
	if tx == nil {
		return r
	}
	return &RoleRepository{
		exec:    tx,
		builder: r.builder,
	}
}

// EnsureRole inserts the role unless one with the same name exists and reports whether it was created.
func (r *RoleRepository) EnsureRole(ctx context.Context, role domain.Role) (bool, error) {
	stmt, args, err := r.builder.Insert(rolesTable).
		Columns("id", "name", "details").
		Values(role.ID, role.Name, optionalString(role.Details)).
		Suffix("ON CONFLICT (name) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build ensure role sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("ensure role: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// AssignRole links the account to the named role. Assigning an already held role is a no-op.
func (r *RoleRepository) AssignRole(ctx context.Context, accountID string, roleName string) error {
	roleID, err := r.roleIDByName(ctx, roleName)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert(accountRolesTable).
		Columns("account_id", "role_id").
		Values(accountID, roleID).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build assign role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}

	return nil
}

func (r *RoleRepository) roleIDByName(ctx context.Context, name string) (string, error) {
	stmt, args, err := r.builder.Select("id").
		From(rolesTable).
		Where(squirrel.Eq{"name": name}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build select role by name sql: %w", err)
	}

	var id string
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("scan role by name: %w", err)
	}

	return id, nil
}

// RolesForAccount returns the role names held by the account ordered by name.
func (r *RoleRepository) RolesForAccount(ctx context.Context, accountID string) ([]string, error) {
	stmt, args, err := r.builder.Select("r.name").
		From(rolesTable + " r").
		Join(accountRolesTable + " ar ON ar.role_id = r.id").
		Where(squirrel.Eq{"ar.account_id": accountID}).
		OrderBy("r.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build roles by account sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles by account: %w", err)
	}
	defer rows.Close()

	roles := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan role by account: %w", err)
		}
		roles = append(roles, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles by account: %w", err)
	}

	return roles, nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
