package core

import (
	"context"
	"time"
)

// QueryEvent describes one executed statement. It is passed to QueryHook
// callbacks for logging, metrics or debugging.
type QueryEvent struct {
	// SQL is the rendered statement.
	SQL string
	// Args are the bound parameters, unmasked.
	Args []any
	// Duration covers every attempt, including retry backoff.
	Duration time.Duration
	// Rows is the number of rows returned, or affected for writes.
	Rows int64
	// Attempts is the number of times the statement was sent.
	Attempts int
	// Error is nil on success.
	Error error
	// Operation is the terminal call that ran the statement: "execute",
	// "first", "count", "insert", ...
	Operation string
}

// QueryHook is called after each statement.
//
// Example:
//
//	db, _ := pgquery.Open("pgx", dsn,
//	    pgquery.WithQueryHook(func(ctx context.Context, e pgquery.QueryEvent) {
//	        slog.Info("query", "sql", e.SQL, "duration", e.Duration, "err", e.Error)
//	    }))
type QueryHook func(ctx context.Context, event QueryEvent)

func (db *DB) invokeHook(ctx context.Context, event QueryEvent) {
	if db.queryHook != nil {
		db.queryHook(ctx, event)
	}
}
