//go:build integration

// Package test holds integration tests that run pgquery against a real
// PostgreSQL server started with testcontainers.
package test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coregx/pgquery"
)

// Drivers exercised by every integration test.
var drivers = []string{pgquery.DriverPQ, pgquery.DriverPGX}

// StartPostgres returns a DSN for a scratch database. POSTGRES_TEST_DSN
// skips the container.
func StartPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	if dsn := os.Getenv("POSTGRES_TEST_DSN"); dsn != "" {
		return dsn
	}

	pgContainer, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skip("Docker not available for PostgreSQL integration tests: " + err.Error())
	}
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

// ForEachDriver starts one server and runs fn once per driver against it.
func ForEachDriver(t *testing.T, fn func(t *testing.T, db *pgquery.DB), opts ...pgquery.Option) {
	dsn := StartPostgres(t)

	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			db, err := pgquery.Open(driver, dsn, opts...)
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })

			require.NoError(t, db.Ping(context.Background()))
			fn(t, db)
		})
	}
}

// Exec runs DDL or fixture statements outside the builder.
func Exec(t *testing.T, db *pgquery.DB, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		_, err := db.SQLDB().ExecContext(context.Background(), stmt)
		require.NoError(t, err, stmt)
	}
}

// CreateShopSchema creates users, orders and documents, dropping any
// previous copies.
func CreateShopSchema(t *testing.T, db *pgquery.DB) {
	Exec(t, db,
		`DROP TABLE IF EXISTS orders, users, documents`,
		`CREATE TABLE users (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			country TEXT,
			visits INTEGER NOT NULL DEFAULT 0,
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE TABLE orders (
			id SERIAL PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id),
			status TEXT NOT NULL,
			total NUMERIC(10,2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE documents (
			id SERIAL PRIMARY KEY,
			data JSONB NOT NULL
		)`,
	)
}

// SeedShop inserts three users and five orders through the builder.
func SeedShop(t *testing.T, db *pgquery.DB) {
	t.Helper()
	ctx := context.Background()
	b := db.Builder()

	users := b.BatchInsert("users", "name", "email", "country").
		Values("ann", "ann@example.com", "de").
		Values("bob", "bob@example.com", "fr").
		Values("cid", "cid@example.com", "de").
		Returning("id")
	res, err := users.Execute(ctx)
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)

	orders := b.BatchInsert("orders", "user_id", "status", "total").
		Values(res.Rows[0]["id"], "paid", 120).
		Values(res.Rows[0]["id"], "paid", 80).
		Values(res.Rows[1]["id"], "paid", 300).
		Values(res.Rows[1]["id"], "refunded", 50).
		Values(res.Rows[2]["id"], "pending", 10)
	_, err = orders.Execute(ctx)
	require.NoError(t, err)
}
