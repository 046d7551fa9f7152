package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/pgquery/internal/security"
)

func TestSubquery_RenumberedAfterWhere(t *testing.T) {
	inner, innerArgs, err := newTestBuilder().
		Table("orders").
		Select("user_id").
		Where("total", ">", 100).
		Where("status", "=", "paid").
		ToSQL()
	require.NoError(t, err)

	clause, err := SubqueryIn("id", inner, innerArgs...)
	require.NoError(t, err)
	assert.Equal(t, "id IN (SELECT user_id FROM orders WHERE total > $1 AND status = $2)", clause.SQL())

	sql, args, err := newTestBuilder().
		Table("users").
		Where("active", "=", true).
		WhereSubquery(clause).
		Where("age", ">", 18).
		ToSQL()

	require.NoError(t, err)
	assert.Equal(t,
		"SELECT * FROM users WHERE active = $1 AND id IN (SELECT user_id FROM orders WHERE total > $2 AND status = $3) AND age > $4",
		sql)
	assert.Equal(t, []any{true, 100, "paid", 18}, args)
}

func TestSubquery_Helpers(t *testing.T) {
	const inner = "SELECT amount FROM bids WHERE lot_id = $1"

	tests := []struct {
		name  string
		build func() (SubqueryClause, error)
		want  string
	}{
		{"not in", func() (SubqueryClause, error) { return SubqueryNotIn("id", inner, 1) },
			"id NOT IN (SELECT amount FROM bids WHERE lot_id = $1)"},
		{"exists", func() (SubqueryClause, error) { return SubqueryExists(inner, 1) },
			"EXISTS (SELECT amount FROM bids WHERE lot_id = $1)"},
		{"not exists", func() (SubqueryClause, error) { return SubqueryNotExists(inner, 1) },
			"NOT EXISTS (SELECT amount FROM bids WHERE lot_id = $1)"},
		{"compare", func() (SubqueryClause, error) { return SubqueryCompare("price", ">=", inner, 1) },
			"price >= (SELECT amount FROM bids WHERE lot_id = $1)"},
		{"any", func() (SubqueryClause, error) { return SubqueryAny("price", "=", inner, 1) },
			"price = ANY (SELECT amount FROM bids WHERE lot_id = $1)"},
		{"all", func() (SubqueryClause, error) { return SubqueryAll("price", ">", inner, 1) },
			"price > ALL (SELECT amount FROM bids WHERE lot_id = $1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, err := tt.build()
			require.NoError(t, err)
			assert.Equal(t, tt.want, clause.SQL())
			assert.Equal(t, []any{1}, clause.Args())

			sql, args, err := newTestBuilder().Table("lots").Where("open", "=", true).WhereSubquery(clause).ToSQL()
			require.NoError(t, err)
			assert.Contains(t, sql, "lot_id = $2)")
			assert.Equal(t, []any{true, 1}, args)
		})
	}
}

func TestSubquery_OrGlue(t *testing.T) {
	clause, err := SubqueryExists("SELECT 1 FROM bans WHERE bans.user_id = users.id")
	require.NoError(t, err)

	sql, _, err := newTestBuilder().Table("users").Where("role", "=", "admin").OrWhereSubquery(clause).ToSQL()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT * FROM users WHERE role = $1 OR EXISTS (SELECT 1 FROM bans WHERE bans.user_id = users.id)",
		sql)
}

func TestSubquery_Errors(t *testing.T) {
	tests := []struct {
		name  string
		build func() (SubqueryClause, error)
		kind  error
	}{
		{"param count mismatch", func() (SubqueryClause, error) {
			return SubqueryIn("id", "SELECT id FROM t WHERE a = $1 AND b = $2", 1)
		}, security.ErrInvalidSubquery},
		{"extra params", func() (SubqueryClause, error) {
			return SubqueryExists("SELECT 1", 1)
		}, security.ErrInvalidSubquery},
		{"not a select", func() (SubqueryClause, error) {
			return SubqueryIn("id", "DELETE FROM t")
		}, security.ErrInvalidSubquery},
		{"stacked", func() (SubqueryClause, error) {
			return SubqueryExists("SELECT 1; DROP TABLE users")
		}, security.ErrInvalidSubquery},
		{"bad operator", func() (SubqueryClause, error) {
			return SubqueryAny("price", "LIKE", "SELECT 1")
		}, security.ErrInvalidOperator},
		{"bad column", func() (SubqueryClause, error) {
			return SubqueryIn("id; DROP TABLE t", "SELECT 1")
		}, security.ErrInvalidIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestSubquery_RejectsZeroClause(t *testing.T) {
	q := newTestBuilder().Table("users").WhereSubquery(SubqueryClause{})
	assert.ErrorIs(t, q.Err(), security.ErrInvalidSubquery)
}

func TestSubquery_BodyCheckedWhenAdded(t *testing.T) {
	clause, err := SubqueryExists("SELECT 1")
	require.NoError(t, err)

	tampered := clause
	tampered.body = "SELECT 1); DROP TABLE users; --"
	sql, _, err := newTestBuilder().Table("users").WhereSubquery(tampered).ToSQL()
	assert.ErrorIs(t, err, security.ErrInvalidSubquery)
	assert.Empty(t, sql)

	tampered = clause
	tampered.params = []any{1}
	assert.ErrorIs(t, newTestBuilder().Table("users").WhereSubquery(tampered).Err(), security.ErrInvalidSubquery)
}

func TestSubquery_ArgsIsACopy(t *testing.T) {
	clause, err := SubqueryIn("id", "SELECT user_id FROM orders WHERE total > $1", 100)
	require.NoError(t, err)

	args := clause.Args()
	args[0] = "1 OR 1=1"

	_, got, err := newTestBuilder().Table("users").WhereSubquery(clause).ToSQL()
	require.NoError(t, err)
	assert.Equal(t, []any{100}, got)
}

func TestSubquery_CannotCloseWrapper(t *testing.T) {
	_, err := SubqueryIn("id", "SELECT user_id FROM orders) OR (1=1 --")
	assert.ErrorIs(t, err, security.ErrInvalidSubquery)

	_, err = SubqueryExists("SELECT 1) OR (1=1")
	assert.ErrorIs(t, err, security.ErrInvalidSubquery)
}
