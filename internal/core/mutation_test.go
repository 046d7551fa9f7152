package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/pgquery/internal/security"
)

// ============================================================================
// INSERT
// ============================================================================

func TestInsert_SortedColumns(t *testing.T) {
	sql, args, err := newTestBuilder().
		Insert("users", map[string]any{"name": "ann", "email": "ann@example.com", "age": 30}).
		ToSQL()

	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO users (age, email, name) VALUES ($1, $2, $3)", sql)
	assert.Equal(t, []any{30, "ann@example.com", "ann"}, args)
}

func TestInsert_Returning(t *testing.T) {
	sql, _, err := newTestBuilder().
		Insert("users", map[string]any{"name": "ann"}).
		Returning("id", "created_at").
		ToSQL()

	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO users (name) VALUES ($1) RETURNING id, created_at", sql)

	sql, _, err = newTestBuilder().Insert("users", map[string]any{"name": "ann"}).Returning("*").ToSQL()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sql, " RETURNING *"), sql)
}

func TestBatchInsert(t *testing.T) {
	sql, args, err := newTestBuilder().
		BatchInsert("events", "kind", "payload").
		Values("click", "{}").
		Values("view", nil).
		ValuesMap(map[string]any{"kind": "scroll"}).
		ToSQL()

	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO events (kind, payload) VALUES ($1, $2), ($3, $4), ($5, $6)", sql)
	assert.Equal(t, []any{"click", "{}", "view", nil, "scroll", nil}, args)
}

func TestBatchInsert_QuotedColumnLookup(t *testing.T) {
	sql, args, err := newTestBuilder().
		BatchInsert("items", "Unit Price").
		ValuesMap(map[string]any{"Unit Price": 9.5}).
		ToSQL()

	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO items ("Unit Price") VALUES ($1)`, sql)
	assert.Equal(t, []any{9.5}, args)
}

func TestBatchInsert_Immutable(t *testing.T) {
	base := newTestBuilder().BatchInsert("t", "a").Values(1)
	two := base.Values(2)

	sql, args, err := base.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO t (a) VALUES ($1)", sql)
	assert.Equal(t, []any{1}, args)

	_, args, err = two.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, args)
}

func TestInsert_Errors(t *testing.T) {
	tests := []struct {
		name string
		q    func() *InsertQuery
		kind error
	}{
		{"empty map", func() *InsertQuery { return newTestBuilder().Insert("t", map[string]any{}) }, ErrInvalidValue},
		{"bad table", func() *InsertQuery {
			return newTestBuilder().Insert("t; DROP TABLE t", map[string]any{"a": 1})
		}, security.ErrInvalidIdentifier},
		{"qualified column", func() *InsertQuery {
			return newTestBuilder().Insert("t", map[string]any{"t.a": 1})
		}, security.ErrInvalidIdentifier},
		{"value count", func() *InsertQuery {
			return newTestBuilder().BatchInsert("t", "a", "b").Values(1)
		}, ErrInvalidValue},
		{"no rows", func() *InsertQuery { return newTestBuilder().BatchInsert("t", "a") }, ErrInvalidValue},
		{"oversized value", func() *InsertQuery {
			return newTestBuilder().BatchInsert("t", "a").Values(strings.Repeat("x", MaxParameterSize+1))
		}, security.ErrParameterTooLarge},
		{"bad returning", func() *InsertQuery {
			return newTestBuilder().Insert("t", map[string]any{"a": 1}).Returning("id--")
		}, security.ErrInvalidIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.q().ToSQL()
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestBatchInsert_ParameterLimit(t *testing.T) {
	cols := make([]string, 1000)
	row := make([]any, len(cols))
	for i := range cols {
		cols[i] = "c" + strings.Repeat("x", i%10) + string(rune('a'+i%26))
		row[i] = i
	}

	q := newTestBuilder().BatchInsert("wide", cols...)
	for i := 0; i < MaxBindParameters/len(cols); i++ {
		q = q.Values(row...)
	}
	require.NoError(t, q.Err())

	assert.ErrorIs(t, q.Values(row...).Err(), ErrInvalidValue)
}

// ============================================================================
// UPSERT
// ============================================================================

func TestUpsert_Forms(t *testing.T) {
	values := map[string]any{"email": "ann@example.com", "name": "ann", "visits": 1}

	tests := []struct {
		name string
		q    func(*UpsertQuery) *UpsertQuery
		tail string
	}{
		{"no target", func(q *UpsertQuery) *UpsertQuery { return q },
			" ON CONFLICT DO NOTHING"},
		{"default update", func(q *UpsertQuery) *UpsertQuery { return q.OnConflict("email") },
			" ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, visits = EXCLUDED.visits"},
		{"explicit update", func(q *UpsertQuery) *UpsertQuery { return q.OnConflict("email").DoUpdate("visits") },
			" ON CONFLICT (email) DO UPDATE SET visits = EXCLUDED.visits"},
		{"do nothing", func(q *UpsertQuery) *UpsertQuery { return q.OnConflict("email").DoNothing() },
			" ON CONFLICT (email) DO NOTHING"},
		{"returning last", func(q *UpsertQuery) *UpsertQuery { return q.OnConflict("email").DoUpdate("name").Returning("id") },
			" ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name RETURNING id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := tt.q(newTestBuilder().Upsert("users", values)).ToSQL()
			require.NoError(t, err)
			assert.Equal(t, "INSERT INTO users (email, name, visits) VALUES ($1, $2, $3)"+tt.tail, sql)
			assert.Equal(t, []any{"ann@example.com", "ann", 1}, args)
		})
	}
}

func TestUpsert_AllColumnsInTarget(t *testing.T) {
	sql, _, err := newTestBuilder().Upsert("tags", map[string]any{"name": "go"}).OnConflict("name").ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO tags (name) VALUES ($1) ON CONFLICT (name) DO NOTHING", sql)
}

func TestUpsert_Errors(t *testing.T) {
	_, _, err := newTestBuilder().Upsert("t", map[string]any{"a": 1}).DoUpdate("a").ToSQL()
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, _, err = newTestBuilder().Upsert("t", map[string]any{"a": 1}).OnConflict("a; DROP").ToSQL()
	assert.ErrorIs(t, err, security.ErrInvalidIdentifier)

	_, _, err = newTestBuilder().Upsert("t", nil).OnConflict("a").ToSQL()
	assert.ErrorIs(t, err, ErrInvalidValue)
}

// ============================================================================
// UPDATE
// ============================================================================

func TestUpdate_SetAndWhere(t *testing.T) {
	sql, args, err := newTestBuilder().
		Update("users").
		Set(map[string]any{"status": "inactive", "name": "ann"}).
		Where("id", "=", 7).
		OrWhere("email", "=", "ann@example.com").
		Returning("id").
		ToSQL()

	require.NoError(t, err)
	assert.Equal(t, "UPDATE users SET name = $1, status = $2 WHERE id = $3 OR email = $4 RETURNING id", sql)
	assert.Equal(t, []any{"ann", "inactive", 7, "ann@example.com"}, args)
}

func TestUpdate_SetExprRenumbered(t *testing.T) {
	sql, args, err := newTestBuilder().
		Update("posts").
		Set(map[string]any{"title": "t"}).
		SetExpr("views", "views + $1", 1).
		Where("id", "=", 7).
		ToSQL()

	require.NoError(t, err)
	assert.Equal(t, "UPDATE posts SET title = $1, views = views + $2 WHERE id = $3", sql)
	assert.Equal(t, []any{"t", 1, 7}, args)
}

func TestUpdate_SetTwiceKeepsLast(t *testing.T) {
	sql, args, err := newTestBuilder().
		Update("t").
		Set(map[string]any{"a": 1}).
		SetExpr("a", "a * $1", 2).
		Where("id", "=", 1).
		ToSQL()

	require.NoError(t, err)
	assert.Equal(t, "UPDATE t SET a = a * $1 WHERE id = $2", sql)
	assert.Equal(t, []any{2, 1}, args)
}

func TestUpdate_JSONBSetExpression(t *testing.T) {
	expr, err := JSONBSet("data", []string{"profile", "name"}, "ann", true)
	require.NoError(t, err)

	sql, args, err := newTestBuilder().Update("users").SetExpr("data", expr).Where("id", "=", 1).ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `UPDATE users SET data = jsonb_set(data, '{profile,name}', '"ann"'::jsonb, TRUE) WHERE id = $1`, sql)
	assert.Equal(t, []any{1}, args)
}

func TestUpdate_Errors(t *testing.T) {
	tests := []struct {
		name string
		q    func() *UpdateQuery
		kind error
	}{
		{"no set", func() *UpdateQuery { return newTestBuilder().Update("t").Where("id", "=", 1) }, ErrEmptySetClause},
		{"no where", func() *UpdateQuery { return newTestBuilder().Update("t").Set(map[string]any{"a": 1}) }, ErrEmptyWhereOnMutation},
		{"expr placeholder mismatch", func() *UpdateQuery {
			return newTestBuilder().Update("t").SetExpr("a", "a + $2", 1).Where("id", "=", 1)
		}, ErrInvalidValue},
		{"expr injection", func() *UpdateQuery {
			return newTestBuilder().Update("t").SetExpr("a", "1; DROP TABLE t").Where("id", "=", 1)
		}, security.ErrInvalidExpression},
		{"bad operator", func() *UpdateQuery {
			return newTestBuilder().Update("t").Set(map[string]any{"a": 1}).Where("id", "==", 1)
		}, security.ErrInvalidOperator},
		{"bad table", func() *UpdateQuery { return newTestBuilder().Update("") }, security.ErrInvalidIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.q().ToSQL()
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestUpdate_StickyError(t *testing.T) {
	failed := newTestBuilder().Update("t").Where("id", "bogus", 1)
	require.Error(t, failed.Err())
	assert.Same(t, failed, failed.Set(map[string]any{"a": 1}))
}

// ============================================================================
// DELETE
// ============================================================================

func TestDelete(t *testing.T) {
	sql, args, err := newTestBuilder().
		Delete("sessions").
		Where("expires_at", "<", "2024-01-01").
		OrWhere("revoked", "=", true).
		Returning("id").
		ToSQL()

	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM sessions WHERE expires_at < $1 OR revoked = $2 RETURNING id", sql)
	assert.Equal(t, []any{"2024-01-01", true}, args)
}

func TestDelete_InList(t *testing.T) {
	sql, args, err := newTestBuilder().Delete("t").Where("id", "IN", []int{1, 2, 3}).ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM t WHERE id IN ($1, $2, $3)", sql)
	assert.Equal(t, []any{1, 2, 3}, args)
}

func TestDelete_RequiresWhere(t *testing.T) {
	_, _, err := newTestBuilder().Delete("users").ToSQL()
	assert.ErrorIs(t, err, ErrEmptyWhereOnMutation)
}
