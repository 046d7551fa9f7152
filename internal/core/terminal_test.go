package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/pgquery/internal/security"
)

// capture records the statements it is asked to run and answers with rows.
type capture struct {
	sql       string
	params    []any
	operation string
	rows      []Row
	rejected  []error
}

func (c *capture) Query(_ context.Context, sql string, params []any, operation string) (*Result, error) {
	c.sql, c.params, c.operation = sql, params, operation
	return &Result{Rows: c.rows, RowsAffected: int64(len(c.rows))}, nil
}

func (c *capture) ReportRejected(_ context.Context, err error) {
	c.rejected = append(c.rejected, err)
}

func TestExecute_PassesStatement(t *testing.T) {
	exec := &capture{rows: []Row{{"id": int64(1)}}}

	rows, err := NewBuilder(exec).Table("users").Where("id", "=", 1).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, exec.rows, rows)
	assert.Equal(t, "SELECT * FROM users WHERE id = $1", exec.sql)
	assert.Equal(t, []any{1}, exec.params)
	assert.Equal(t, OpExecute, exec.operation)
}

func TestExecutorFunc(t *testing.T) {
	var seen string
	exec := ExecutorFunc(func(_ context.Context, sql string, _ []any, _ string) (*Result, error) {
		seen = sql
		return &Result{}, nil
	})

	_, err := NewBuilder(exec).Table("t").Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t", seen)
}

func TestFirst(t *testing.T) {
	exec := &capture{rows: []Row{{"id": int64(9)}}}
	b := NewBuilder(exec)

	row, err := b.Table("users").OrderBy("id", "DESC").First(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Row{"id": int64(9)}, row)
	assert.Equal(t, "SELECT * FROM users ORDER BY id DESC LIMIT 1", exec.sql)
	assert.Equal(t, OpFirst, exec.operation)

	q := b.Table("users").Limit(50)
	_, err = q.First(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users LIMIT 1", exec.sql)

	sql, _, err := q.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users LIMIT 50", sql, "First does not modify the receiver")
}

func TestFirst_WithSetOperation(t *testing.T) {
	exec := &capture{rows: []Row{{"id": int64(3)}}}
	q := NewBuilder(exec).Table("users").Select("id").Where("active", "=", true).UnionRaw("SELECT id FROM admins")

	_, err := q.First(context.Background())
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT * FROM (SELECT id FROM users WHERE active = $1 UNION SELECT id FROM admins) AS first_subquery LIMIT 1",
		exec.sql)
	assert.Equal(t, []any{true}, exec.params)

	_, err = q.OrderBy("id").Limit(5).First(context.Background())
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT * FROM ((SELECT id FROM users WHERE active = $1 ORDER BY id ASC LIMIT 5) UNION SELECT id FROM admins) AS first_subquery LIMIT 1",
		exec.sql)
}

func TestFirst_NoRows(t *testing.T) {
	_, err := NewBuilder(&capture{}).Table("users").First(context.Background())
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestCount(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int64
	}{
		{"int64", int64(12), 12},
		{"int32", int32(7), 7},
		{"text", "42", 42},
		{"bytes", []byte("5"), 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &capture{rows: []Row{{"count": tt.value}}}
			n, err := NewBuilder(exec).Table("orders").Where("status", "=", "paid").Distinct().Count(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
			assert.Equal(t,
				"SELECT COUNT(*) AS count FROM (SELECT DISTINCT * FROM orders WHERE status = $1) AS count_subquery",
				exec.sql)
			assert.Equal(t, OpCount, exec.operation)
		})
	}

	exec := &capture{rows: []Row{{"count": true}}}
	_, err := NewBuilder(exec).Table("orders").Count(context.Background())
	assert.Error(t, err)
}

func TestInto(t *testing.T) {
	type user struct {
		ID        int64     `db:"id"`
		Name      string    `db:"name"`
		Active    bool      `db:"active"`
		CreatedAt time.Time `db:"created_at"`
	}

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	exec := &capture{rows: []Row{
		{"id": int64(1), "name": "ann", "active": true, "created_at": created},
		{"id": int64(2), "name": "bob", "active": "false", "created_at": "2024-05-02T08:30:00Z"},
	}}
	q := NewBuilder(exec).Table("users")

	var users []user
	require.NoError(t, q.Into(context.Background(), &users))
	require.Len(t, users, 2)
	assert.Equal(t, user{ID: 1, Name: "ann", Active: true, CreatedAt: created}, users[0])
	assert.Equal(t, "bob", users[1].Name)
	assert.False(t, users[1].Active)
	assert.Equal(t, time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC), users[1].CreatedAt)

	var one user
	require.NoError(t, q.Into(context.Background(), &one))
	assert.Equal(t, int64(1), one.ID)

	exec.rows = nil
	assert.ErrorIs(t, q.Into(context.Background(), &one), ErrNoRows)

	users = nil
	require.NoError(t, q.Into(context.Background(), &users))
	assert.Empty(t, users)
}

func TestTerminal_NoExecutor(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder()

	_, err := b.Table("users").Execute(ctx)
	assert.ErrorIs(t, err, ErrNoExecutor)

	_, err = b.Insert("users", map[string]any{"a": 1}).Execute(ctx)
	assert.ErrorIs(t, err, ErrNoExecutor)

	_, err = b.Delete("users").Where("id", "=", 1).Execute(ctx)
	assert.ErrorIs(t, err, ErrNoExecutor)
}

func TestTerminal_ValidationErrorIsReported(t *testing.T) {
	exec := &capture{}
	b := NewBuilder(exec)
	ctx := context.Background()

	_, err := b.Table("users; DROP TABLE users").Execute(ctx)
	require.ErrorIs(t, err, security.ErrInvalidIdentifier)

	_, err = b.Update("users").Set(map[string]any{"a": 1}).Execute(ctx)
	require.ErrorIs(t, err, ErrEmptyWhereOnMutation)

	_, err = b.Upsert("users", map[string]any{"a": 1}).OnConflict("a--").Execute(ctx)
	require.ErrorIs(t, err, security.ErrInvalidIdentifier)

	assert.Empty(t, exec.sql, "nothing reaches the executor")
	require.Len(t, exec.rejected, 3)

	var secErr *security.Error
	assert.True(t, errors.As(exec.rejected[0], &secErr))
}

func TestTerminal_MutationOperations(t *testing.T) {
	exec := &capture{}
	b := NewBuilder(exec)
	ctx := context.Background()

	_, err := b.Upsert("tags", map[string]any{"name": "go"}).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, OpUpsert, exec.operation)

	_, err = b.Update("tags").Set(map[string]any{"name": "golang"}).Where("name", "=", "go").Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, OpUpdate, exec.operation)

	_, err = b.Delete("tags").Where("name", "=", "golang").Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, OpDelete, exec.operation)

	_, err = b.BatchInsert("tags", "name").Values("a").Values("b").Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, OpInsert, exec.operation)
	assert.Equal(t, []any{"a", "b"}, exec.params)
}

func TestExplain_Unsupported(t *testing.T) {
	_, err := NewBuilder(&capture{}).Table("users").Explain(context.Background())
	assert.ErrorIs(t, err, ErrExplainUnsupported)
}
