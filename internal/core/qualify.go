package core

import (
	"strings"

	"github.com/coregx/pgquery/internal/security"
)

// columnRef is a sanitized column reference. Bare references name a column
// of the base table and are qualified with the base table's alias or name
// once the query has joins, so single-table SQL stays unqualified.
type columnRef struct {
	name string
	raw  string
	bare bool
}

// column sanitizes a column for use in a predicate, grouping or ordering.
// Complex expressions (JSON operator chains, jsonb_* calls, aggregates) are
// scanned and kept as is; names with a dot are kept qualified; anything else
// is a bare base-table column.
func (q *SelectQuery) column(name string) (columnRef, error) {
	return sanitizeColumn(name)
}

func sanitizeColumn(name string) (columnRef, error) {
	if security.IsComplexExpression(name) {
		s, err := security.Sanitize(name, true)
		if err != nil {
			return columnRef{}, err
		}
		return columnRef{name: s, raw: name}, nil
	}
	s, err := security.Sanitize(name, false)
	if err != nil {
		return columnRef{}, err
	}
	return columnRef{name: s, raw: name, bare: !strings.Contains(name, ".")}, nil
}

// ref renders c for the current join state.
func (q *SelectQuery) ref(c columnRef) string {
	if c.bare && len(q.joins) > 0 {
		return q.baseRef() + "." + c.name
	}
	return c.name
}

func (q *SelectQuery) baseRef() string {
	if q.alias != "" {
		return q.alias
	}
	return q.table
}

// inSchema reports whether a bare column is registered for the base table.
// Qualified columns, expressions and tables without a registered schema are
// not checked.
func (q *SelectQuery) inSchema(c columnRef) bool {
	if q.schema == nil || !c.bare {
		return true
	}
	return q.schema[strings.ToLower(c.raw)]
}

func (q *SelectQuery) inGroupBy(c columnRef) bool {
	for _, g := range q.groupBy {
		if g.name == c.name || q.ref(g) == c.name {
			return true
		}
	}
	return false
}
