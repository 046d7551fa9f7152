package core

import (
	"strings"

	"github.com/coregx/pgquery/internal/security"
)

type cte struct {
	name      string
	columns   []string
	body      fragment
	raw       bool
	recursive bool
}

// With adds a common table expression built with the query builder. Its
// placeholders are numbered in sequence with the rest of the statement.
func (q *SelectQuery) With(name string, query *SelectQuery, columns ...string) *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		if query == nil {
			return invalid(security.ErrInvalidSubquery, name, "CTE requires a query")
		}
		sql, args, err := query.ToSQL()
		if err != nil {
			return err
		}
		return n.addCTE(cte{name: name, columns: columns, body: fragment{sql: sql, args: args}})
	})
}

// WithRaw adds a common table expression from statement text. The body is
// kept verbatim: its placeholders are not renumbered, and its params are
// placed ahead of the main query's. A raw body must therefore use the
// placeholder numbers its params will occupy in the final statement.
func (q *SelectQuery) WithRaw(name, sql string, params []any, columns ...string) *SelectQuery {
	return q.withRaw(name, sql, params, columns, false)
}

// WithRecursive adds a raw common table expression and renders WITH
// RECURSIVE. The body may reference name.
func (q *SelectQuery) WithRecursive(name, sql string, params []any, columns ...string) *SelectQuery {
	return q.withRaw(name, sql, params, columns, true)
}

func (q *SelectQuery) withRaw(name, sql string, params []any, columns []string, recursive bool) *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		if err := checkCTEBody(sql, params); err != nil {
			return err
		}
		return n.addCTE(cte{
			name:      name,
			columns:   columns,
			body:      fragment{sql: sql, args: cloneArgs(params)},
			raw:       true,
			recursive: recursive,
		})
	})
}

// checkCTEBody is checkStatement without the placeholder count check: a raw
// body keeps its own numbering.
func checkCTEBody(sql string, params []any) error {
	if err := security.ValidateSubquery(sql); err != nil {
		return err
	}
	for _, p := range params {
		if err := checkParamSize(p); err != nil {
			return err
		}
	}
	return nil
}

func (q *SelectQuery) addCTE(c cte) error {
	if len(q.ctes) >= MaxCTEs {
		return invalidf(ErrTooManyCTEs, c.name, "at most %d CTEs are allowed", MaxCTEs)
	}
	name, err := security.SanitizeName(c.name)
	if err != nil {
		return err
	}
	for _, existing := range q.ctes {
		if existing.name == name {
			return invalid(security.ErrInvalidIdentifier, c.name, "CTE name is already defined")
		}
	}
	c.name = name

	cols := make([]string, len(c.columns))
	for i, col := range c.columns {
		s, err := security.SanitizeName(col)
		if err != nil {
			return err
		}
		cols[i] = s
	}
	c.columns = cols

	q.ctes = append(q.ctes, c)
	return nil
}

// renderWith renders the WITH prefix, including its trailing space.
func (q *SelectQuery) renderWith(next int) (string, []any, int) {
	if len(q.ctes) == 0 {
		return "", nil, next
	}
	var (
		b         strings.Builder
		args      []any
		recursive bool
	)
	for i, c := range q.ctes {
		recursive = recursive || c.recursive
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.name)
		if len(c.columns) > 0 {
			b.WriteString("(" + strings.Join(c.columns, ", ") + ")")
		}
		b.WriteString(" AS (")
		if c.raw {
			b.WriteString(c.body.sql)
			args = append(args, c.body.args...)
			next += len(c.body.args)
		} else {
			sql, a, nx := c.body.render(next)
			b.WriteString(sql)
			args = append(args, a...)
			next = nx
		}
		b.WriteString(")")
	}

	prefix := "WITH "
	if recursive {
		prefix = "WITH RECURSIVE "
	}
	return prefix + b.String() + " ", args, next
}
