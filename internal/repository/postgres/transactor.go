package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/atymri/Promptino/internal/core/port"
)

// txBeginner is satisfied by *pgxpool.Pool and pgxmock pools.
type txBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Transactor runs account and role writes inside one PostgreSQL transaction.
type Transactor struct {
	db       txBeginner
	accounts *AccountRepository
	roles    *RoleRepository
}

// NewTransactor binds the repositories to transactions opened on db.
func NewTransactor(db txBeginner, accounts *AccountRepository, roles *RoleRepository) *Transactor {
	return &Transactor{db: db, accounts: accounts, roles: roles}
}

// WithinTx commits when fn succeeds and rolls back when it fails or panics.
func (t *Transactor) WithinTx(ctx context.Context, fn port.AccountTxFunc) (err error) {
	tx, err := t.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback transaction: %w", rbErr))
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("commit transaction: %w", commitErr)
		}
	}()

	return fn(ctx, t.accounts.WithTx(tx), t.roles.WithTx(tx))
}
