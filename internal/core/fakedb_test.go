package core

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeResult is what a fakeHandler returns for one statement. Statements
// answered with columns produce rows; the rest report affected.
type fakeResult struct {
	columns  []string
	types    []string
	rows     [][]driver.Value
	affected int64
}

type fakeHandler func(ctx context.Context, query string, args []any) (fakeResult, error)

type fakeCall struct {
	query string
	args  []any
}

// fakeDriver answers every statement through handler and records what it saw.
type fakeDriver struct {
	handler fakeHandler

	mu    sync.Mutex
	calls []fakeCall

	prepared   atomic.Int64
	begun      atomic.Int64
	committed  atomic.Int64
	rolledBack atomic.Int64
	readOnly   atomic.Bool

	pingErr atomic.Pointer[error]
}

func (d *fakeDriver) Open(_ string) (driver.Conn, error) {
	return &fakeConn{d: d}, nil
}

func (d *fakeDriver) record(query string, named []driver.NamedValue) []any {
	args := make([]any, len(named))
	for i, nv := range named {
		args[i] = nv.Value
	}
	d.mu.Lock()
	d.calls = append(d.calls, fakeCall{query: query, args: args})
	d.mu.Unlock()
	return args
}

func (d *fakeDriver) Calls() []fakeCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]fakeCall(nil), d.calls...)
}

func (d *fakeDriver) setPingErr(err error) {
	if err == nil {
		d.pingErr.Store(nil)
		return
	}
	d.pingErr.Store(&err)
}

type fakeConn struct {
	d *fakeDriver
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	c.d.prepared.Add(1)
	return &fakeStmt{d: c.d, query: query}, nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *fakeConn) BeginTx(_ context.Context, opts driver.TxOptions) (driver.Tx, error) {
	c.d.begun.Add(1)
	c.d.readOnly.Store(opts.ReadOnly)
	return &fakeTx{d: c.d}, nil
}

func (c *fakeConn) Ping(_ context.Context) error {
	if p := c.d.pingErr.Load(); p != nil {
		return *p
	}
	return nil
}

type fakeTx struct {
	d *fakeDriver
}

func (t *fakeTx) Commit() error {
	t.d.committed.Add(1)
	return nil
}

func (t *fakeTx) Rollback() error {
	t.d.rolledBack.Add(1)
	return nil
}

type fakeStmt struct {
	d     *fakeDriver
	query string
}

func (s *fakeStmt) Close() error  { return nil }
func (s *fakeStmt) NumInput() int { return -1 }

func (s *fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), named(args))
}

func (s *fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), named(args))
}

func (s *fakeStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	res, err := s.d.handler(ctx, s.query, s.d.record(s.query, args))
	if err != nil {
		return nil, err
	}
	return driver.RowsAffected(res.affected), nil
}

func (s *fakeStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	res, err := s.d.handler(ctx, s.query, s.d.record(s.query, args))
	if err != nil {
		return nil, err
	}
	return &fakeRows{res: res}, nil
}

func named(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, v := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}

type fakeRows struct {
	res fakeResult
	pos int
}

func (r *fakeRows) Columns() []string { return r.res.columns }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.res.rows) {
		return io.EOF
	}
	copy(dest, r.res.rows[r.pos])
	r.pos++
	return nil
}

func (r *fakeRows) ColumnTypeDatabaseTypeName(index int) string {
	if index < len(r.res.types) {
		return r.res.types[index]
	}
	return "TEXT"
}

var fakeDriverCounter atomic.Uint64

// newFakeDB registers a fresh driver answering through handler and wraps it
// as a lib/pq pool, so slices are bound through pq.Array.
func newFakeDB(t *testing.T, handler fakeHandler, opts ...Option) (*DB, *fakeDriver) {
	t.Helper()

	d := &fakeDriver{handler: handler}
	name := fmt.Sprintf("pgquery-core-driver-%d", fakeDriverCounter.Add(1))
	sql.Register(name, d)

	sqlDB, err := sql.Open(name, "")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	db := WrapDB(sqlDB, DriverPQ, opts...)
	t.Cleanup(func() { _ = db.Close() })
	return db, d
}

// rowsOf answers every statement with the given rows.
func rowsOf(columns []string, rows ...[]driver.Value) fakeHandler {
	return func(context.Context, string, []any) (fakeResult, error) {
		return fakeResult{columns: columns, rows: rows}, nil
	}
}

// affecting answers every statement with n affected rows.
func affecting(n int64) fakeHandler {
	return func(context.Context, string, []any) (fakeResult, error) {
		return fakeResult{affected: n}, nil
	}
}

// logEntry is one record captured by recordingLogger.
type logEntry struct {
	level  string
	msg    string
	fields map[string]any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) log(level, msg string, args []any) {
	fields := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		fields[fmt.Sprint(args[i])] = args[i+1]
	}
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.log("DEBUG", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.log("INFO", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.log("WARN", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.log("ERROR", msg, args) }

// find returns the last entry with msg.
func (l *recordingLogger) find(msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].msg == msg {
			return l.entries[i], true
		}
	}
	return logEntry{}, false
}

// count returns the number of entries with msg.
func (l *recordingLogger) count(msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.msg == msg {
			n++
		}
	}
	return n
}
