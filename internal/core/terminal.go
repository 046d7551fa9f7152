package core

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/coregx/pgquery/internal/analyzer"
)

// Operation names passed to the Executor by the terminal methods.
const (
	OpExecute = "execute"
	OpFirst   = "first"
	OpCount   = "count"
	OpInsert  = "insert"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpUpsert  = "upsert"
)

// runStatement reports a rejected statement to the executor or runs it.
func runStatement(ctx context.Context, exec Executor, operation, sql string, args []any, err error) (*Result, error) {
	if err != nil {
		if r, ok := exec.(rejectionReporter); ok {
			r.ReportRejected(ctx, err)
		}
		return nil, err
	}
	if exec == nil {
		return nil, ErrNoExecutor
	}
	return exec.Query(ctx, sql, args, operation)
}

func (q *SelectQuery) run(ctx context.Context, operation string, wrap func(string) string) (*Result, error) {
	sql, args, err := q.ToSQL()
	if err == nil && wrap != nil {
		sql = wrap(sql)
	}
	return runStatement(ctx, q.exec, operation, sql, args, err)
}

// Execute runs the query and returns all rows.
func (q *SelectQuery) Execute(ctx context.Context) ([]Row, error) {
	res, err := q.run(ctx, OpExecute, nil)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// First runs the query with LIMIT 1 and returns the row, or ErrNoRows.
// Queries with set operations are wrapped, so the limit applies to the
// combined result.
func (q *SelectQuery) First(ctx context.Context) (Row, error) {
	var res *Result
	var err error
	if len(q.setOps) > 0 {
		res, err = q.run(ctx, OpFirst, func(sql string) string {
			return "SELECT * FROM (" + sql + ") AS first_subquery LIMIT 1"
		})
	} else {
		one := q
		if q.err == nil && (!q.hasLimit || q.limit > 1) {
			one = q.clone()
			one.limit, one.hasLimit = 1, true
		}
		res, err = one.run(ctx, OpFirst, nil)
	}
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, ErrNoRows
	}
	return res.Rows[0], nil
}

// Count returns the number of rows the query would return. The query is
// wrapped as a subquery, so DISTINCT, GROUP BY and set operations are
// counted correctly.
func (q *SelectQuery) Count(ctx context.Context) (int64, error) {
	res, err := q.run(ctx, OpCount, func(sql string) string {
		return "SELECT COUNT(*) AS count FROM (" + sql + ") AS count_subquery"
	})
	if err != nil {
		return 0, err
	}
	if len(res.Rows) == 0 {
		return 0, ErrNoRows
	}
	return toInt64(res.Rows[0]["count"])
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("unexpected count value %v (%T)", v, v)
}

// Into runs the query and decodes the rows into dest, a pointer to a slice
// of structs or to a single struct. Fields are matched by their db tag.
//
//	var users []struct {
//	    ID   int64  `db:"id"`
//	    Name string `db:"name"`
//	}
//	err := q.Into(ctx, &users)
func (q *SelectQuery) Into(ctx context.Context, dest any) error {
	rows, err := q.Execute(ctx)
	if err != nil {
		return err
	}
	return decodeRows(rows, dest)
}

func decodeRows(rows []Row, dest any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "db",
		Result:           dest,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
	})
	if err != nil {
		return WrapError(err, "into")
	}

	var input any = rows
	if !isSlicePointer(dest) {
		if len(rows) == 0 {
			return ErrNoRows
		}
		input = rows[0]
	}
	if err := decoder.Decode(input); err != nil {
		return WrapError(err, "into")
	}
	return nil
}

func isSlicePointer(dest any) bool {
	t := reflect.TypeOf(dest)
	return t != nil && t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Slice
}

// Explain returns the planner's plan for the query without running it.
func (q *SelectQuery) Explain(ctx context.Context) (*analyzer.QueryPlan, error) {
	sql, args, err := q.ToSQL()
	if err != nil {
		return nil, err
	}
	ex, ok := q.exec.(Explainer)
	if !ok {
		return nil, ErrExplainUnsupported
	}
	return ex.Explain(ctx, sql, args)
}
