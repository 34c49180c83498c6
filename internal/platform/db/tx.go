package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const txKey contextKey = "db_tx"

// WithTx runs fn inside a single transaction. The transaction is stashed in
// the context handed to fn, so any repository call made through that context
// joins it (see TxFromContext and the repos' conn helpers). Rolls back on
// error or panic, commits otherwise.
//
// Multi-step read-modify-write sequences (QR token regeneration, allergy
// add-or-update with its emergency-info mirror) must run through here so a
// partial failure cannot leave the invariant broken.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		// Already inside a transaction: join it.
		return fn(ctx)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// TxFromContext returns the transaction started by WithTx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// TxRunner is the transactional boundary handed to services. Production code
// wires NewTxRunner(pool); tests substitute a passthrough.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

func NewTxRunner(pool *pgxpool.Pool) TxRunner {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		return WithTx(ctx, pool, fn)
	}
}

// Passthrough runs fn directly with no transaction. Test helper.
func Passthrough(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
