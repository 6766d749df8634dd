package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Accounts *AccountRepository
	Roles    *RoleRepository
	Tx       *Transactor
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	accounts := NewAccountRepository(pool)
	roles := NewRoleRepository(pool)
	return &Repositories{
		Accounts: accounts,
		Roles:    roles,
		Tx:       NewTransactor(pool, accounts, roles),
	}
}
