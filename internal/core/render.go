package core

import (
	"strconv"
	"strings"
)

// ToSQL renders the statement and its parameters without executing it.
// Placeholders are numbered $1..$N in the order they appear in the text and
// len(args) == N.
func (q *SelectQuery) ToSQL() (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	sql, args, _ := q.render(1)
	return sql, args, nil
}

// render renders the statement with its first placeholder numbered next and
// returns the number that follows the last one. Clauses are emitted in the
// order WITH, SELECT, FROM, JOIN, WHERE, GROUP BY, HAVING, ORDER BY, LIMIT,
// OFFSET, then set operations. With set operations present, a base query
// that has ORDER BY, LIMIT or OFFSET is parenthesized so those clauses keep
// applying to it alone.
func (q *SelectQuery) render(next int) (string, []any, int) {
	with, args, next := q.renderWith(next)
	body, bodyArgs, next := q.renderSelect(next)
	args = append(args, bodyArgs...)
	if len(q.setOps) > 0 && q.hasTail() {
		body = "(" + body + ")"
	}

	var b strings.Builder
	b.WriteString(with)
	b.WriteString(body)

	for _, op := range q.setOps {
		sql, a, n := op.body.render(next)
		b.WriteString(" ")
		b.WriteString(op.op)
		b.WriteString(" ")
		b.WriteString(sql)
		args = append(args, a...)
		next = n
	}

	return b.String(), args, next
}

// hasTail reports whether q has ORDER BY, LIMIT or OFFSET.
func (q *SelectQuery) hasTail() bool {
	return len(q.orderBy) > 0 || q.hasLimit || q.hasOffset
}

// renderSelect renders SELECT through OFFSET.
func (q *SelectQuery) renderSelect(next int) (string, []any, int) {
	var (
		b    strings.Builder
		args []any
	)

	b.WriteString("SELECT ")
	if q.distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(q.renderSelectList())

	b.WriteString(" FROM ")
	b.WriteString(q.table)
	if q.alias != "" {
		b.WriteString(" AS ")
		b.WriteString(q.alias)
	}

	for _, j := range q.joins {
		b.WriteString(" ")
		b.WriteString(j.render())
	}

	if len(q.where) > 0 {
		sql, a, n := renderConditions(q.where, next, q.ref)
		b.WriteString(" WHERE ")
		b.WriteString(sql)
		args = append(args, a...)
		next = n
	}

	if len(q.groupBy) > 0 {
		cols := make([]string, len(q.groupBy))
		for i, g := range q.groupBy {
			cols[i] = q.ref(g)
		}
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(cols, ", "))
	}

	if len(q.having) > 0 {
		sql, a, n := renderConditions(q.having, next, q.ref)
		b.WriteString(" HAVING ")
		b.WriteString(sql)
		args = append(args, a...)
		next = n
	}

	if len(q.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.renderOrderBy())
	}

	if q.hasLimit {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.limit))
	}
	if q.hasOffset {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(q.offset))
	}

	return b.String(), args, next
}
