package core

import (
	"context"

	"github.com/coregx/pgquery/internal/analyzer"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Result is what an Executor returns for one statement. RowsAffected is set
// for statements that return no rows; otherwise it equals len(Rows).
type Result struct {
	Rows         []Row
	RowsAffected int64
}

// Executor runs a rendered statement. Operation names the terminal call
// ("execute", "first", "count", "insert", ...). Errors are returned to the
// caller unchanged.
type Executor interface {
	Query(ctx context.Context, sql string, params []any, operation string) (*Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, sql string, params []any, operation string) (*Result, error)

// Query calls f.
func (f ExecutorFunc) Query(ctx context.Context, sql string, params []any, operation string) (*Result, error) {
	return f(ctx, sql, params, operation)
}

// Explainer is implemented by executors that can run EXPLAIN.
type Explainer interface {
	Explain(ctx context.Context, sql string, params []any) (*analyzer.QueryPlan, error)
}

// rejectionReporter is implemented by executors that audit queries rejected
// before they were sent.
type rejectionReporter interface {
	ReportRejected(ctx context.Context, err error)
}
