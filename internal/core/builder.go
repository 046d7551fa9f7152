package core

import (
	"maps"
	"strings"

	"github.com/coregx/pgquery/internal/security"
)

// Builder creates queries bound to one executor. A Builder is immutable and
// safe to share between goroutines.
type Builder struct {
	exec    Executor
	schemas map[string]map[string]bool
}

// NewBuilder returns a Builder whose terminal methods run through exec. A nil
// executor gives a builder that can only render SQL.
func NewBuilder(exec Executor) *Builder {
	return &Builder{exec: exec}
}

// WithSchema registers the columns of table. GROUP BY and ORDER BY reject
// unqualified base-table columns that are not registered. Tables without a
// registered schema are not checked.
func (b *Builder) WithSchema(table string, columns ...string) *Builder {
	nb := &Builder{exec: b.exec, schemas: maps.Clone(b.schemas)}
	if nb.schemas == nil {
		nb.schemas = make(map[string]map[string]bool)
	}
	set := make(map[string]bool, len(columns))
	for _, c := range columns {
		set[strings.ToLower(c)] = true
	}
	nb.schemas[strings.ToLower(table)] = set
	return nb
}

// Table starts a SELECT on table.
func (b *Builder) Table(name string) *SelectQuery {
	return b.TableAs(name, "")
}

// TableAs starts a SELECT on table under alias.
func (b *Builder) TableAs(name, alias string) *SelectQuery {
	q := &SelectQuery{
		exec:   b.exec,
		schema: b.schemas[strings.ToLower(name)],
		joined: make(map[string]bool),
	}

	table, err := security.SanitizeName(name)
	if err != nil {
		q.err = err
		return q
	}
	q.table = table
	q.joined[table] = true

	if alias != "" {
		a, err := security.SanitizeName(alias)
		if err != nil {
			q.err = err
			return q
		}
		q.alias = a
		q.joined[a] = true
	}
	return q
}
