// Package core implements the query builder, its clause builders and the
// PostgreSQL execution adapter.
package core

import (
	"context"
	"database/sql"
	"strings"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/coregx/pgquery/internal/analyzer"
	"github.com/coregx/pgquery/internal/cache"
	"github.com/coregx/pgquery/internal/logger"
	"github.com/coregx/pgquery/internal/security"
	"github.com/coregx/pgquery/internal/tracer"
)

// Supported database/sql driver names.
const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

// DB executes rendered statements over a database/sql pool, with a prepared
// statement cache, per-call timeouts, retries of transient failures, logging,
// tracing, auditing and an optional health check loop.
type DB struct {
	sqlDB      *sql.DB
	driverName string
	stmtCache  *cache.StmtCache
	schemas    *Builder

	logger    logger.Logger
	sanitizer *logger.Sanitizer
	tracer    tracer.Tracer
	auditor   *security.Auditor
	queryHook QueryHook

	timeout time.Duration
	retry   RetryPolicy

	healthInterval time.Duration
	health         *healthChecker
}

// TxOptions represents transaction options including isolation level.
type TxOptions struct {
	// Isolation level for the transaction (e.g., sql.LevelReadCommitted)
	Isolation sql.IsolationLevel
	// ReadOnly indicates whether the transaction is read-only
	ReadOnly bool
}

// Option is a functional option for configuring DB.
type Option func(*DB)

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(n int) Option {
	return func(db *DB) {
		db.sqlDB.SetMaxOpenConns(n)
	}
}

// WithMaxIdleConns sets the maximum number of idle connections.
func WithMaxIdleConns(n int) Option {
	return func(db *DB) {
		db.sqlDB.SetMaxIdleConns(n)
	}
}

// WithConnMaxLifetime sets the maximum time a connection may be reused.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(db *DB) {
		db.sqlDB.SetConnMaxLifetime(d)
	}
}

// WithConnMaxIdleTime sets the maximum time a connection may sit idle.
func WithConnMaxIdleTime(d time.Duration) Option {
	return func(db *DB) {
		db.sqlDB.SetConnMaxIdleTime(d)
	}
}

// WithStmtCacheCapacity sets the prepared statement cache capacity.
func WithStmtCacheCapacity(capacity int) Option {
	return func(db *DB) {
		db.stmtCache = cache.NewStmtCacheWithCapacity(capacity)
	}
}

// WithLogger logs every statement with its masked parameters.
func WithLogger(l logger.Logger) Option {
	return func(db *DB) {
		if l == nil {
			l = &logger.NoopLogger{}
		}
		db.logger = l
	}
}

// WithSensitiveFields replaces the column names whose bound values are
// masked in logs.
func WithSensitiveFields(fields ...string) Option {
	return func(db *DB) {
		db.sanitizer = logger.NewSanitizer(fields)
	}
}

// WithTracer starts a span for every statement.
func WithTracer(t tracer.Tracer) Option {
	return func(db *DB) {
		if t == nil {
			t = &tracer.NoopTracer{}
		}
		db.tracer = t
	}
}

// WithAuditor records statements and rejected queries.
func WithAuditor(a *security.Auditor) Option {
	return func(db *DB) {
		db.auditor = a
	}
}

// WithQueryHook calls hook after every statement.
func WithQueryHook(hook QueryHook) Option {
	return func(db *DB) {
		db.queryHook = hook
	}
}

// WithStatementTimeout bounds each call, retries included. Zero disables it.
func WithStatementTimeout(d time.Duration) Option {
	return func(db *DB) {
		db.timeout = d
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(policy RetryPolicy) Option {
	return func(db *DB) {
		db.retry = policy
	}
}

// WithHealthCheck pings the pool every interval in the background.
func WithHealthCheck(interval time.Duration) Option {
	return func(db *DB) {
		db.healthInterval = interval
	}
}

// WithSchema registers the columns of a table for GROUP BY and ORDER BY
// checks on builders created by this DB.
func WithSchema(table string, columns ...string) Option {
	return func(db *DB) {
		db.schemas = db.schemas.WithSchema(table, columns...)
	}
}

// Open opens a pool for the postgres (lib/pq) or pgx driver.
func Open(driverName, dsn string, opts ...Option) (*DB, error) {
	name, err := normalizeDriver(driverName)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(name, dsn)
	if err != nil {
		return nil, err
	}
	return WrapDB(sqlDB, name, opts...), nil
}

func normalizeDriver(driverName string) (string, error) {
	switch strings.ToLower(driverName) {
	case "", "postgres", "postgresql", "pq":
		return DriverPQ, nil
	case "pgx", "pgx/v5":
		return DriverPGX, nil
	}
	return "", invalid(ErrUnsupportedDriver, driverName, "use postgres or pgx")
}

// WrapDB wraps an existing pool. The caller keeps ownership of sqlDB's
// configuration; Close closes it.
func WrapDB(sqlDB *sql.DB, driverName string, opts ...Option) *DB {
	db := &DB{
		sqlDB:      sqlDB,
		driverName: driverName,
		stmtCache:  cache.NewStmtCache(),
		schemas:    NewBuilder(nil),
		logger:     &logger.NoopLogger{},
		sanitizer:  logger.NewSanitizer(nil),
		tracer:     &tracer.NoopTracer{},
		retry:      DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.healthInterval > 0 {
		db.health = newHealthChecker(sqlDB, driverName, db.logger, db.healthInterval)
		db.health.start()
	}
	return db
}

// Close stops the health checker and releases all database resources.
func (db *DB) Close() error {
	if db.health != nil {
		db.health.shutdown()
	}
	db.stmtCache.Clear()
	return db.sqlDB.Close()
}

// SQLDB returns the underlying pool.
func (db *DB) SQLDB() *sql.DB {
	return db.sqlDB
}

// Builder returns a query builder executing on this database.
func (db *DB) Builder() *Builder {
	return &Builder{exec: db, schemas: db.schemas.schemas}
}

// Ping verifies a connection to the database is still alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.sqlDB.PingContext(ctx)
}

// IsHealthy reports the result of the last background health check. It is
// always true when health checks are disabled.
func (db *DB) IsHealthy() bool {
	if db.health == nil {
		return true
	}
	return db.health.isHealthy()
}

// LastHealthCheck returns when the last background health check ran.
func (db *DB) LastHealthCheck() time.Time {
	if db.health == nil {
		return time.Time{}
	}
	return db.health.lastCheck()
}

// HealthError returns the error from the last background health check.
func (db *DB) HealthError() error {
	if db.health == nil {
		return nil
	}
	return db.health.lastError()
}

// CacheStats returns prepared statement cache metrics.
func (db *DB) CacheStats() cache.Stats {
	return db.stmtCache.Stats()
}

// Explain runs EXPLAIN (FORMAT JSON) for a read statement.
func (db *DB) Explain(ctx context.Context, query string, params []any) (*analyzer.QueryPlan, error) {
	return analyzer.New(db.sqlDB).Explain(ctx, query, db.driverArgs(params))
}

// ReportRejected records a query that failed validation before it was sent.
func (db *DB) ReportRejected(ctx context.Context, err error) {
	db.logger.Warn("query rejected", "error", err)
	db.auditor.LogSecurityEvent(ctx, "query_rejected", "", err)
}

// driverArgs adapts parameters for the driver. lib/pq cannot bind Go slices
// directly, so they are wrapped with pq.Array; pgx binds them natively.
func (db *DB) driverArgs(params []any) []any {
	if db.driverName != DriverPQ {
		return params
	}
	var out []any
	for i, p := range params {
		if _, isSlice := expandSlice(p); !isSlice {
			continue
		}
		if out == nil {
			out = cloneArgs(params)
		}
		out[i] = pq.Array(p)
	}
	if out == nil {
		return params
	}
	return out
}
