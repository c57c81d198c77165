package database

import (
	"context"

	"github.com/uptrace/bun"
)

type txKey struct{}

// RunInTx runs fn inside one writer transaction. Repositories that resolve
// their executor with Conn join it through the ctx handed to fn. A nested
// call reuses the outer transaction.
func (c *Connections) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return fn(ctx)
	}
	return c.Writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn returns the transaction bound to ctx, or db outside one.
func Conn(ctx context.Context, db *bun.DB) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return tx
	}
	return db
}
