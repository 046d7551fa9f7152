package core

import (
	"maps"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/coregx/pgquery/internal/security"
)

// SelectQuery is an immutable SELECT under construction. Every chain method
// returns a new query; the receiver is never modified, so a query can be
// branched and each branch executed independently.
//
// Chain methods validate their arguments immediately. On failure the returned
// query carries the error, later chain calls are no-ops, and every terminal
// method returns it. Err reports it right after the offending call.
type SelectQuery struct {
	exec   Executor
	schema map[string]bool // shared with the Builder, never written

	table string
	alias string

	distinct        bool
	caseInsensitive bool

	columns []selectEntry
	aliases map[string]bool
	windows []windowItem

	joins  []joinSpec
	joined map[string]bool

	where   []condition
	groupBy []columnRef
	having  []condition
	orderBy []orderTerm

	limit     int
	hasLimit  bool
	offset    int
	hasOffset bool

	setOps []setOperation
	ctes   []cte

	err error
}

type selectEntry struct {
	column columnRef
	fn     string // aggregate wrapped around the column, e.g. "MAX"
	alias  string
}

type orderTerm struct {
	column    columnRef
	direction string
}

// Err returns the validation error carried by the query, if any.
func (q *SelectQuery) Err() error {
	return q.err
}

func (q *SelectQuery) clone() *SelectQuery {
	n := *q
	n.columns = slices.Clone(q.columns)
	n.aliases = maps.Clone(q.aliases)
	n.windows = slices.Clone(q.windows)
	n.joins = slices.Clone(q.joins)
	n.joined = maps.Clone(q.joined)
	n.where = slices.Clone(q.where)
	n.groupBy = slices.Clone(q.groupBy)
	n.having = slices.Clone(q.having)
	n.orderBy = slices.Clone(q.orderBy)
	n.setOps = slices.Clone(q.setOps)
	n.ctes = slices.Clone(q.ctes)
	return &n
}

// apply runs fn against a copy of q. When fn fails the copy is discarded and
// a copy of the unchanged state carrying the error is returned instead.
func (q *SelectQuery) apply(fn func(n *SelectQuery) error) *SelectQuery {
	if q.err != nil {
		return q
	}
	n := q.clone()
	if err := fn(n); err != nil {
		failed := q.clone()
		failed.err = err
		return failed
	}
	return n
}

// Select appends plain columns to the select list. Function calls and
// aggregates are rejected here; use SelectItems with Expr for those.
func (q *SelectQuery) Select(columns ...string) *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		for _, c := range columns {
			ref, err := n.plainColumn(c)
			if err != nil {
				return err
			}
			n.columns = append(n.columns, selectEntry{column: ref})
		}
		return nil
	})
}

var starColumn = regexp.MustCompile(`^(?:([A-Za-z_][A-Za-z0-9_]*)\.)?\*$`)

// plainColumn validates a caller-supplied select column. A bare * or t.* is
// accepted as is.
func (q *SelectQuery) plainColumn(c string) (columnRef, error) {
	if err := security.ValidatePlainColumn(c); err != nil {
		return columnRef{}, err
	}
	if m := starColumn.FindStringSubmatch(c); m != nil {
		if m[1] == "" {
			return columnRef{name: "*", raw: c}, nil
		}
		return columnRef{name: c, raw: c}, nil
	}
	return q.column(c)
}

// SelectItem is one entry of a select list: Col, ColAs or Expr.
type SelectItem interface {
	selectItem()
}

type colItem struct{ name string }

type colAsItem struct{ name, alias string }

type exprItem struct{ sql, alias string }

func (colItem) selectItem()   {}
func (colAsItem) selectItem() {}
func (exprItem) selectItem()  {}

// Col selects a plain column.
func Col(name string) SelectItem { return colItem{name: name} }

// ColAs selects a plain column under alias.
func ColAs(name, alias string) SelectItem { return colAsItem{name: name, alias: alias} }

// Expr selects a raw SQL expression, such as a function call or the output of
// the JSONB helpers, under an optional alias. The expression is checked for
// injection syntax but is otherwise rendered as given.
func Expr(sql, alias string) SelectItem { return exprItem{sql: sql, alias: alias} }

// SelectItems appends items to the select list.
func (q *SelectQuery) SelectItems(items ...SelectItem) *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		for _, item := range items {
			var (
				entry selectEntry
				alias string
			)
			switch it := item.(type) {
			case colItem:
				ref, err := n.plainColumn(it.name)
				if err != nil {
					return err
				}
				entry = selectEntry{column: ref}
			case colAsItem:
				ref, err := n.plainColumn(it.name)
				if err != nil {
					return err
				}
				entry, alias = selectEntry{column: ref}, it.alias
			case exprItem:
				if err := security.ValidateExpression(it.sql); err != nil {
					return err
				}
				entry, alias = selectEntry{column: columnRef{name: it.sql, raw: it.sql}}, it.alias
			default:
				return invalid(security.ErrInvalidExpression, "", "unknown select item")
			}
			if err := n.addSelect(entry, alias); err != nil {
				return err
			}
		}
		return nil
	})
}

func (q *SelectQuery) addSelect(entry selectEntry, alias string) error {
	if alias != "" {
		a, err := security.SanitizeName(alias)
		if err != nil {
			return err
		}
		entry.alias = a
		if q.aliases == nil {
			q.aliases = make(map[string]bool)
		}
		q.aliases[a] = true
	}
	q.columns = append(q.columns, entry)
	return nil
}

// Distinct renders SELECT DISTINCT.
func (q *SelectQuery) Distinct() *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		n.distinct = true
		return nil
	})
}

// IgnoreCase makes later string comparisons case-insensitive: = and LIKE
// render as ILIKE, != and NOT LIKE as NOT ILIKE.
func (q *SelectQuery) IgnoreCase() *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		n.caseInsensitive = true
		return nil
	})
}

// MatchCase turns IgnoreCase off for later conditions.
func (q *SelectQuery) MatchCase() *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		n.caseInsensitive = false
		return nil
	})
}

// Min selects MIN(column) AS alias.
func (q *SelectQuery) Min(column, alias string) *SelectQuery { return q.aggregate("MIN", column, alias) }

// Max selects MAX(column) AS alias.
func (q *SelectQuery) Max(column, alias string) *SelectQuery { return q.aggregate("MAX", column, alias) }

// Sum selects SUM(column) AS alias.
func (q *SelectQuery) Sum(column, alias string) *SelectQuery { return q.aggregate("SUM", column, alias) }

// Avg selects AVG(column) AS alias.
func (q *SelectQuery) Avg(column, alias string) *SelectQuery { return q.aggregate("AVG", column, alias) }

// CountOf selects COUNT(column) AS alias. Use "*" to count rows.
func (q *SelectQuery) CountOf(column, alias string) *SelectQuery {
	return q.aggregate("COUNT", column, alias)
}

func (q *SelectQuery) aggregate(fn, column, alias string) *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		ref, err := n.plainColumn(column)
		if err != nil {
			return err
		}
		if ref.name == "*" && fn != "COUNT" {
			return invalidf(security.ErrInvalidIdentifier, column, "%s does not accept *", fn)
		}
		return n.addSelect(selectEntry{column: ref, fn: fn}, alias)
	})
}

// Aggregate selects each expression under its alias. Aliases are rendered in
// sorted order so the statement text is stable.
func (q *SelectQuery) Aggregate(exprs map[string]string) *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		aliases := make([]string, 0, len(exprs))
		for alias := range exprs {
			aliases = append(aliases, alias)
		}
		sort.Strings(aliases)

		for _, alias := range aliases {
			expr := exprs[alias]
			if err := security.ValidateExpression(expr); err != nil {
				return err
			}
			entry := selectEntry{column: columnRef{name: expr, raw: expr}}
			if err := n.addSelect(entry, alias); err != nil {
				return err
			}
		}
		return nil
	})
}

func (q *SelectQuery) renderSelectList() string {
	parts := make([]string, 0, len(q.columns)+len(q.windows))
	for _, c := range q.columns {
		col := q.ref(c.column)
		if c.fn != "" {
			col = c.fn + "(" + col + ")"
		}
		if c.alias != "" {
			col += " AS " + c.alias
		}
		parts = append(parts, col)
	}
	if len(parts) == 0 {
		parts = append(parts, "*")
	}
	for i, w := range q.windows {
		parts = append(parts, q.renderWindow(w)+" AS "+windowAlias(i+1))
	}
	return strings.Join(parts, ", ")
}
