package cache

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync/atomic"
)

// countingDriver prepares no-op statements and counts how many were closed.
type countingDriver struct {
	prepared atomic.Int64
	closed   atomic.Int64
}

type countingConn struct {
	d *countingDriver
}

type countingStmt struct {
	d *countingDriver
}

func (d *countingDriver) Open(_ string) (driver.Conn, error) {
	return &countingConn{d: d}, nil
}

func (c *countingConn) Prepare(_ string) (driver.Stmt, error) {
	c.d.prepared.Add(1)
	return &countingStmt{d: c.d}, nil
}

func (c *countingConn) Close() error { return nil }

func (c *countingConn) Begin() (driver.Tx, error) { return nil, driver.ErrSkip }

func (s *countingStmt) Close() error {
	s.d.closed.Add(1)
	return nil
}

func (s *countingStmt) NumInput() int { return -1 }

func (s *countingStmt) Exec(_ []driver.Value) (driver.Result, error) { return driver.RowsAffected(0), nil }

func (s *countingStmt) Query(_ []driver.Value) (driver.Rows, error) { return nil, driver.ErrSkip }

var driverCounter atomic.Uint64

// openCountingDB registers a fresh driver so counters are per test.
func openCountingDB() (*sql.DB, *countingDriver, error) {
	d := &countingDriver{}
	name := fmt.Sprintf("pgquery-cache-driver-%d", driverCounter.Add(1))
	sql.Register(name, d)
	db, err := sql.Open(name, "")
	if err != nil {
		return nil, nil, err
	}
	// One connection keeps statement closing synchronous with Stmt.Close.
	db.SetMaxOpenConns(1)
	return db, d, nil
}
