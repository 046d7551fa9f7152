package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Tx is a database transaction. Statements run on a Tx are not retried and
// bypass the statement cache.
type Tx struct {
	tx *sql.Tx
	db *DB
}

// Begin starts a transaction with default options.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	return db.BeginTx(ctx, nil)
}

// BeginTx starts a transaction with specified options.
// Options can specify isolation level and read-only mode.
func (db *DB) BeginTx(ctx context.Context, opts *TxOptions) (*Tx, error) {
	var sqlOpts *sql.TxOptions
	if opts != nil {
		sqlOpts = &sql.TxOptions{
			Isolation: opts.Isolation,
			ReadOnly:  opts.ReadOnly,
		}
	}

	tx, err := db.sqlDB.BeginTx(ctx, sqlOpts)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, db: db}, nil
}

// Query runs a rendered statement inside the transaction. It implements
// Executor.
func (tx *Tx) Query(ctx context.Context, query string, params []any, operation string) (*Result, error) {
	return tx.db.run(ctx, tx.tx, query, params, operation)
}

// ReportRejected records a query that failed validation before it was sent.
func (tx *Tx) ReportRejected(ctx context.Context, err error) {
	tx.db.ReportRejected(ctx, err)
}

// Builder returns a query builder whose queries run in this transaction.
func (tx *Tx) Builder() *Builder {
	return &Builder{exec: tx, schemas: tx.db.schemas.schemas}
}

// Commit commits the transaction.
func (tx *Tx) Commit() error {
	return tx.tx.Commit()
}

// Rollback rolls back the transaction.
func (tx *Tx) Rollback() error {
	return tx.tx.Rollback()
}

// Transactional runs fn in a transaction. The transaction is committed when
// fn returns nil and rolled back when it returns an error or panics; a panic
// is re-raised after the rollback.
func (db *DB) Transactional(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return WrapError(err, "begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return WrapError(tx.Commit(), "commit transaction")
}
