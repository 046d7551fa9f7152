package core

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// RetryPolicy controls how statements that fail with a transient error are
// retried. Statements inside a transaction are never retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts. Values below 2 disable
	// retries.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy makes three attempts with exponential backoff starting
// at 50ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

// NoRetry disables retries.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)
}

// do runs op, retrying transient failures per the policy. It returns the
// number of attempts made.
func (p RetryPolicy) do(ctx context.Context, op func() error) (int, error) {
	if p.MaxAttempts < 2 {
		return 1, op()
	}

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := op()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx))
	return attempts, err
}

// transientStates are the SQLSTATE codes worth retrying: serialization
// failures, deadlocks, administrator shutdowns and connection exhaustion.
var transientStates = map[string]bool{
	"40001": true,
	"40P01": true,
	"53300": true,
	"57P01": true,
	"57P02": true,
	"57P03": true,
}

// IsTransient reports whether err is a failure that may succeed on retry:
// a broken connection or a SQLSTATE in class 08 or transientStates.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	if code := sqlState(err); code != "" {
		return strings.HasPrefix(code, "08") || transientStates[code]
	}
	return false
}

// sqlState extracts the SQLSTATE from a lib/pq or pgx error.
func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
