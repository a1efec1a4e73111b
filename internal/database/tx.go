package database

import (
	"context"
	"database/sql"
)

// ReadTransaction is any transaction the queue can read through. Both
// *ReadTx and *WriteTx satisfy it.
type ReadTransaction interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Encryptor() *Encryptor
}

// ReadTx is a read-only transaction handle. It has no way to execute writes.
type ReadTx struct {
	tx        *sql.Tx
	encryptor *Encryptor
}

func (t *ReadTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *ReadTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t *ReadTx) Encryptor() *Encryptor {
	return t.encryptor
}

// WriteTx is a read-write transaction handle.
type WriteTx struct {
	ReadTx
}

func (t *WriteTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}
