package core

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"time"

	"github.com/coregx/pgquery/internal/security"
	"github.com/coregx/pgquery/internal/tracer"
)

// Query runs a rendered statement on the pool. It implements Executor.
//
// Statements are prepared through the statement cache. Reads and statements
// with a RETURNING clause are run with QueryContext and their rows collected;
// other statements report RowsAffected.
func (db *DB) Query(ctx context.Context, query string, params []any, operation string) (*Result, error) {
	return db.run(ctx, nil, query, params, operation)
}

// run executes query on tx, or on the pool when tx is nil.
func (db *DB) run(ctx context.Context, tx *sql.Tx, query string, params []any, operation string) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if db.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.timeout)
		defer cancel()
	}

	stmtOp := tracer.DetectOperation(query)
	ctx, span := db.tracer.StartSpan(ctx, tracer.SpanName(stmtOp))
	defer span.End()

	args := db.driverArgs(params)
	policy := db.retry
	if tx != nil {
		policy = NoRetry()
	}

	start := time.Now()
	var res *Result
	attempts, err := policy.do(ctx, func() error {
		r, err := db.attempt(ctx, tx, query, args, stmtOp)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	elapsed := time.Since(start)

	var rows int64
	if res != nil {
		rows = res.RowsAffected
	}

	db.logResult(query, params, operation, rows, attempts, elapsed, err)
	tracer.AddQueryAttributes(span, &tracer.QueryMetadata{
		SQL:        query,
		ParamCount: len(params),
		Duration:   elapsed,
		Rows:       rows,
		Attempts:   attempts,
		Error:      err,
		Operation:  stmtOp,
		Table:      security.TableName(query),
	})
	db.invokeHook(ctx, QueryEvent{
		SQL:       query,
		Args:      params,
		Duration:  elapsed,
		Rows:      rows,
		Attempts:  attempts,
		Error:     err,
		Operation: operation,
	})
	db.auditor.LogOperation(ctx, stmtOp, query, params, rows, err, elapsed)

	if err != nil {
		return nil, err
	}
	return res, nil
}

var returningClause = regexp.MustCompile(`(?i)\bRETURNING\b`)

func returnsRows(query, stmtOp string) bool {
	switch stmtOp {
	case "SELECT", "EXPLAIN":
		return true
	}
	return returningClause.MatchString(query)
}

// attempt prepares and runs the statement once.
func (db *DB) attempt(ctx context.Context, tx *sql.Tx, query string, args []any, stmtOp string) (*Result, error) {
	stmt, release, err := db.prepare(ctx, tx, query)
	if err != nil {
		return nil, err
	}
	defer release()

	if !returnsRows(query, stmtOp) {
		sr, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return nil, err
		}
		n, err := sr.RowsAffected()
		if err != nil {
			return nil, err
		}
		return &Result{RowsAffected: n}, nil
	}

	rs, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rs.Close() }()

	rows, err := collectRows(rs)
	if err != nil {
		return nil, err
	}
	return &Result{Rows: rows, RowsAffected: int64(len(rows))}, nil
}

// prepare returns a prepared statement and the function that releases it.
// Transactions bypass the statement cache.
func (db *DB) prepare(ctx context.Context, tx *sql.Tx, query string) (*sql.Stmt, func(), error) {
	if tx != nil {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return nil, nil, err
		}
		return stmt, func() { _ = stmt.Close() }, nil
	}

	stmt, err := db.stmtCache.GetOrPrepare(ctx, db.sqlDB, query)
	if err != nil {
		return nil, nil, err
	}
	return stmt, func() {}, nil
}

// collectRows reads every row into a Row keyed by column name. Text values
// returned as bytes are converted to strings; bytea columns stay []byte.
func collectRows(rs *sql.Rows) ([]Row, error) {
	types, err := rs.ColumnTypes()
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0)
	for rs.Next() {
		values := make([]any, len(types))
		dest := make([]any, len(types))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rs.Scan(dest...); err != nil {
			return nil, err
		}

		row := make(Row, len(types))
		for i, ct := range types {
			v := values[i]
			if b, ok := v.([]byte); ok && !strings.EqualFold(ct.DatabaseTypeName(), "BYTEA") {
				v = string(b)
			}
			row[ct.Name()] = v
		}
		rows = append(rows, row)
	}
	return rows, rs.Err()
}

func (db *DB) logResult(query string, params []any, operation string, rows int64, attempts int, elapsed time.Duration, err error) {
	maskedParams := db.sanitizer.FormatParams(db.sanitizer.MaskParams(query, params))

	if err != nil {
		db.logger.Error("query execution failed",
			"sql", query,
			"params", maskedParams,
			"operation", operation,
			"attempts", attempts,
			"duration_ms", elapsed.Milliseconds(),
			"database", db.driverName,
			"error", err,
		)
		return
	}

	db.logger.Info("query executed",
		"sql", query,
		"params", maskedParams,
		"operation", operation,
		"attempts", attempts,
		"duration_ms", elapsed.Milliseconds(),
		"rows", rows,
		"database", db.driverName,
	)
}
