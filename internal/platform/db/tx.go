package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

// DBTxKey carries an open transaction through a context. Repositories route
// their statements through it when present, so multi-step operations commit
// or roll back as one.
const DBTxKey contextKey = "db_tx"

// TxFromContext returns the transaction carried by ctx, or nil when the
// caller is not inside one.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction on the pool and returns a child context that
// routes repository calls through it. The caller owns Commit and Rollback.
func WithTx(ctx context.Context, pool *pgxpool.Pool) (context.Context, pgx.Tx, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return ctx, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return context.WithValue(ctx, DBTxKey, tx), tx, nil
}
