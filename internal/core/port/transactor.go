package port

import "context"

// AccountTxFunc receives repositories bound to a single transaction.
type AccountTxFunc func(ctx context.Context, accounts AccountRepository, roles RoleRepository) error

// AccountTransactor commits every write made by fn together, or none of them when fn fails.
type AccountTransactor interface {
	WithinTx(ctx context.Context, fn AccountTxFunc) error
}
