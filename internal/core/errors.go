package core

import (
	"errors"

	"github.com/coregx/pgquery/internal/security"
)

// Errors raised by the clause builders and the execution adapter. Validation
// failures are reported as *security.Error values whose Kind is one of these
// sentinels, so errors.Is works for both packages' kinds.
var (
	// ErrNoRows is returned by First when the query matched nothing.
	ErrNoRows = errors.New("no rows in result set")
	// ErrNoExecutor is returned by terminal methods of a builder created without an executor.
	ErrNoExecutor = errors.New("query builder has no executor")
	// ErrExplainUnsupported is returned by Explain when the executor cannot run EXPLAIN.
	ErrExplainUnsupported = errors.New("executor does not support EXPLAIN")
	// ErrUnsupportedDriver is returned by Open for drivers other than postgres and pgx.
	ErrUnsupportedDriver = errors.New("unsupported database driver")

	ErrTooManyWhereConditions  = errors.New("too many WHERE conditions")
	ErrTooManyOrderBy          = errors.New("too many ORDER BY entries")
	ErrTooManyPartitionColumns = errors.New("too many PARTITION BY columns")
	ErrTooManySetOperations    = errors.New("too many set operations")
	ErrTooManyCTEs             = errors.New("too many common table expressions")

	ErrInvalidHavingReference = errors.New("invalid HAVING reference")
	ErrEmptyGroupBy           = errors.New("GROUP BY requires at least one column")
	ErrEmptySetClause         = errors.New("empty SET clause")
	ErrEmptyWhereOnMutation   = errors.New("mutation without WHERE clause")
	ErrInvalidJoin            = errors.New("invalid join")
	ErrInvalidLimit           = errors.New("invalid LIMIT")
	ErrInvalidOffset          = errors.New("invalid OFFSET")
	ErrInvalidWindow          = errors.New("invalid window function")
	ErrInvalidValue           = errors.New("invalid value")
)

// Limits enforced while a query is being built.
const (
	MaxWhereConditions  = 500
	MaxOrderBy          = 100
	MaxPartitionColumns = 50
	MaxWindowOrderBy    = 50
	MaxSetOperations    = 100
	MaxCTEs             = 50
	MaxLimit            = 10_000_000
	MaxOffset           = 100_000_000
	// MaxParameterSize bounds every bound string or byte slice, checked
	// recursively through slices.
	MaxParameterSize = 10 * 1024 * 1024
)

// invalid builds a validation error of the given kind.
func invalid(kind error, value, rule string) error {
	return security.NewError(kind, value, rule)
}

func invalidf(kind error, value, format string, args ...any) error {
	return security.Errorf(kind, value, format, args...)
}

// WrapError wraps an error with additional context message.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
