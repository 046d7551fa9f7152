// Package pgquery builds PostgreSQL statements with an immutable fluent API
// and runs them over database/sql. Identifiers, operators and free-text
// fragments are validated before they reach the statement text; values are
// always bound as $N parameters.
//
//	db, err := pgquery.Open("pgx", dsn, pgquery.WithStatementTimeout(5*time.Second))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	rows, err := db.Builder().
//	    Table("users").
//	    Select("id", "email").
//	    Where("status", "=", "active").
//	    OrderBy("created_at", "DESC").
//	    Limit(20).
//	    Execute(ctx)
package pgquery

import (
	"github.com/coregx/pgquery/internal/analyzer"
	"github.com/coregx/pgquery/internal/core"
	"github.com/coregx/pgquery/internal/logger"
	"github.com/coregx/pgquery/internal/security"
	"github.com/coregx/pgquery/internal/tracer"
)

type (
	// DB runs statements over a database/sql pool.
	DB = core.DB
	// Tx is a database transaction.
	Tx = core.Tx
	// TxOptions represents transaction options including isolation level.
	TxOptions = core.TxOptions
	// Option is a functional option for configuring DB.
	Option = core.Option
	// RetryPolicy controls retries of transient failures.
	RetryPolicy = core.RetryPolicy

	// Builder creates queries bound to one executor.
	Builder = core.Builder
	// SelectQuery is an immutable SELECT under construction.
	SelectQuery = core.SelectQuery
	// InsertQuery is an immutable INSERT under construction.
	InsertQuery = core.InsertQuery
	// UpsertQuery is an INSERT ... ON CONFLICT under construction.
	UpsertQuery = core.UpsertQuery
	// UpdateQuery is an immutable UPDATE under construction.
	UpdateQuery = core.UpdateQuery
	// DeleteQuery is an immutable DELETE under construction.
	DeleteQuery = core.DeleteQuery

	// SelectItem is one entry of a select list.
	SelectItem = core.SelectItem
	// JoinCondition is one equality of a join's ON clause.
	JoinCondition = core.JoinCondition
	// OrderTerm is a window ORDER BY entry.
	OrderTerm = core.OrderTerm
	// SubqueryClause is a validated subquery predicate.
	SubqueryClause = core.SubqueryClause

	// Executor runs rendered statements.
	Executor = core.Executor
	// ExecutorFunc adapts a function to Executor.
	ExecutorFunc = core.ExecutorFunc
	// Row is one result row keyed by column name.
	Row = core.Row
	// Result is what an Executor returns for one statement.
	Result = core.Result
	// QueryEvent describes one executed statement.
	QueryEvent = core.QueryEvent
	// QueryHook is called after each statement.
	QueryHook = core.QueryHook
	// Explainer is implemented by executors that can run EXPLAIN.
	Explainer = core.Explainer
	// QueryPlan summarizes an EXPLAIN result.
	QueryPlan = analyzer.QueryPlan

	// ValidationError describes rejected input.
	ValidationError = security.Error
	// Auditor writes audit events for executed and rejected statements.
	Auditor = security.Auditor
	// AuditLevel selects which operations are audited.
	AuditLevel = security.AuditLevel

	// Logger receives structured key/value log records.
	Logger = logger.Logger
	// Tracer starts spans.
	Tracer = tracer.Tracer
)

// Supported driver names.
const (
	DriverPQ  = core.DriverPQ
	DriverPGX = core.DriverPGX
)

// Audit levels.
const (
	AuditNone   = security.AuditNone
	AuditWrites = security.AuditWrites
	AuditReads  = security.AuditReads
	AuditAll    = security.AuditAll
)

// Limits enforced while statements are built.
const (
	MaxWhereConditions = core.MaxWhereConditions
	MaxOrderBy         = core.MaxOrderBy
	MaxSetOperations   = core.MaxSetOperations
	MaxCTEs            = core.MaxCTEs
	MaxLimit           = core.MaxLimit
	MaxOffset          = core.MaxOffset
	MaxParameterSize   = core.MaxParameterSize
	MaxBindParameters  = core.MaxBindParameters
	MaxSubqueryLength  = security.MaxSubqueryLength
	MaxJSONPathDepth   = security.MaxJSONPathDepth
)

// Re-export core functions.
var (
	Open       = core.Open
	WrapDB     = core.WrapDB
	NewBuilder = core.NewBuilder

	WithMaxOpenConns      = core.WithMaxOpenConns
	WithMaxIdleConns      = core.WithMaxIdleConns
	WithConnMaxLifetime   = core.WithConnMaxLifetime
	WithConnMaxIdleTime   = core.WithConnMaxIdleTime
	WithStmtCacheCapacity = core.WithStmtCacheCapacity
	WithLogger            = core.WithLogger
	WithSensitiveFields   = core.WithSensitiveFields
	WithTracer            = core.WithTracer
	WithAuditor           = core.WithAuditor
	WithQueryHook         = core.WithQueryHook
	WithStatementTimeout  = core.WithStatementTimeout
	WithRetry             = core.WithRetry
	WithHealthCheck       = core.WithHealthCheck
	WithSchema            = core.WithSchema
	DefaultRetryPolicy    = core.DefaultRetryPolicy
	NoRetry               = core.NoRetry
	IsTransient           = core.IsTransient
	NewAuditor            = security.NewAuditor
	ParseAuditLevel       = security.ParseAuditLevel
	NewSlogLogger         = logger.NewSlogAdapter
	NewHCLogLogger        = logger.NewHCLogAdapter
	NewOtelTracer         = tracer.NewOtelTracer
	NewProviderTracer     = tracer.NewProviderTracer
	ContextWithUser       = security.WithUser
	ContextWithClientIP   = security.WithClientIP
	ContextWithRequestID  = security.WithRequestID

	// Select items and ordering
	Col   = core.Col
	ColAs = core.ColAs
	Expr  = core.Expr
	Asc   = core.Asc
	Desc  = core.Desc
	On    = core.On

	// Subqueries
	SubqueryIn        = core.SubqueryIn
	SubqueryNotIn     = core.SubqueryNotIn
	SubqueryExists    = core.SubqueryExists
	SubqueryNotExists = core.SubqueryNotExists
	SubqueryCompare   = core.SubqueryCompare
	SubqueryAny       = core.SubqueryAny
	SubqueryAll       = core.SubqueryAll

	// JSON expressions
	JSONField        = core.JSONField
	JSONFieldAsText  = core.JSONFieldAsText
	JSONPath         = core.JSONPath
	JSONPathAsText   = core.JSONPathAsText
	JSONBSet         = core.JSONBSet
	JSONBInsert      = core.JSONBInsert
	JSONBDeleteKey   = core.JSONBDeleteKey
	JSONBDeletePath  = core.JSONBDeletePath
	JSONBConcat      = core.JSONBConcat
	JSONBBuildObject = core.JSONBBuildObject
	JSONBBuildArray  = core.JSONBBuildArray
	JSONBObjectKeys  = core.JSONBObjectKeys
	JSONBTypeof      = core.JSONBTypeof
	JSONBArrayLength = core.JSONBArrayLength
)

// Errors. Validation failures are *ValidationError values whose kind is one
// of these; match them with errors.Is.
var (
	ErrNoRows             = core.ErrNoRows
	ErrNoExecutor         = core.ErrNoExecutor
	ErrExplainUnsupported = core.ErrExplainUnsupported
	ErrUnsupportedDriver  = core.ErrUnsupportedDriver

	ErrTooManyWhereConditions  = core.ErrTooManyWhereConditions
	ErrTooManyOrderBy          = core.ErrTooManyOrderBy
	ErrTooManyPartitionColumns = core.ErrTooManyPartitionColumns
	ErrTooManySetOperations    = core.ErrTooManySetOperations
	ErrTooManyCTEs             = core.ErrTooManyCTEs
	ErrInvalidHavingReference  = core.ErrInvalidHavingReference
	ErrEmptyGroupBy            = core.ErrEmptyGroupBy
	ErrEmptySetClause          = core.ErrEmptySetClause
	ErrEmptyWhereOnMutation    = core.ErrEmptyWhereOnMutation
	ErrInvalidJoin             = core.ErrInvalidJoin
	ErrInvalidLimit            = core.ErrInvalidLimit
	ErrInvalidOffset           = core.ErrInvalidOffset
	ErrInvalidWindow           = core.ErrInvalidWindow
	ErrInvalidValue            = core.ErrInvalidValue

	ErrInvalidIdentifier     = security.ErrInvalidIdentifier
	ErrInvalidOperator       = security.ErrInvalidOperator
	ErrInvalidDirection      = security.ErrInvalidDirection
	ErrInvalidExpression     = security.ErrInvalidExpression
	ErrInvalidJSONIdentifier = security.ErrInvalidJSONIdentifier
	ErrSQLInjectionAttempt   = security.ErrSQLInjectionAttempt
	ErrParameterTooLarge     = security.ErrParameterTooLarge
	ErrPathTooDeep           = security.ErrPathTooDeep
	ErrInvalidSubquery       = security.ErrInvalidSubquery
)
