package core

import (
	"strings"

	"github.com/coregx/pgquery/internal/security"
)

// JoinCondition is one equality of a join's ON clause.
type JoinCondition struct {
	Left  string
	Right string
}

// On returns the join condition left = right.
func On(left, right string) JoinCondition {
	return JoinCondition{Left: left, Right: right}
}

type joinSpec struct {
	kind  string
	table string
	alias string
	on    []string
}

func (j joinSpec) render() string {
	var b strings.Builder
	b.WriteString(j.kind)
	b.WriteString(" JOIN ")
	b.WriteString(j.table)
	if j.alias != "" {
		b.WriteString(" AS ")
		b.WriteString(j.alias)
	}
	b.WriteString(" ON ")
	b.WriteString(strings.Join(j.on, " AND "))
	return b.String()
}

var joinKinds = map[string]string{
	"INNER": "INNER", "LEFT": "LEFT", "RIGHT": "RIGHT", "FULL": "FULL",
	"LEFT OUTER": "LEFT", "RIGHT OUTER": "RIGHT", "FULL OUTER": "FULL",
}

// Join is InnerJoin.
func (q *SelectQuery) Join(table, left, right string, alias ...string) *SelectQuery {
	return q.InnerJoin(table, left, right, alias...)
}

// InnerJoin adds INNER JOIN table ON left = right.
func (q *SelectQuery) InnerJoin(table, left, right string, alias ...string) *SelectQuery {
	return q.JoinOn("INNER", table, []JoinCondition{On(left, right)}, alias...)
}

// LeftJoin adds LEFT JOIN table ON left = right.
func (q *SelectQuery) LeftJoin(table, left, right string, alias ...string) *SelectQuery {
	return q.JoinOn("LEFT", table, []JoinCondition{On(left, right)}, alias...)
}

// RightJoin adds RIGHT JOIN table ON left = right.
func (q *SelectQuery) RightJoin(table, left, right string, alias ...string) *SelectQuery {
	return q.JoinOn("RIGHT", table, []JoinCondition{On(left, right)}, alias...)
}

// FullJoin adds FULL JOIN table ON left = right.
func (q *SelectQuery) FullJoin(table, left, right string, alias ...string) *SelectQuery {
	return q.JoinOn("FULL", table, []JoinCondition{On(left, right)}, alias...)
}

// JoinOn adds a join with one or more equality conditions, rendered joined
// with AND. Unqualified left columns belong to the base table and unqualified
// right columns to the joined table. Qualified columns must name the base
// table, an earlier join or this join.
//
//	q.JoinOn("INNER", "tracking", []JoinCondition{
//	    On("shipments.carrier_id", "t.carrier_id"),
//	    On("shipments.tracking_number", "t.tracking_number"),
//	}, "t")
func (q *SelectQuery) JoinOn(joinType, table string, conditions []JoinCondition, alias ...string) *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		kind, ok := joinKinds[strings.Join(strings.Fields(strings.ToUpper(joinType)), " ")]
		if !ok {
			return invalid(ErrInvalidJoin, joinType, "join type must be INNER, LEFT, RIGHT or FULL")
		}
		if len(conditions) == 0 {
			return invalid(ErrInvalidJoin, table, "join requires at least one condition")
		}
		if len(alias) > 1 {
			return invalid(ErrInvalidJoin, table, "join accepts at most one alias")
		}

		spec := joinSpec{kind: kind}
		t, err := security.SanitizeName(table)
		if err != nil {
			return err
		}
		spec.table = t
		joinRef := t
		if len(alias) == 1 && alias[0] != "" {
			a, err := security.SanitizeName(alias[0])
			if err != nil {
				return err
			}
			spec.alias = a
			joinRef = a
		}
		if n.joined[joinRef] {
			return invalid(ErrInvalidJoin, joinRef, "table or alias is already part of the query; use a different alias")
		}
		n.joined[t] = true
		n.joined[joinRef] = true

		for _, c := range conditions {
			left, err := n.joinColumn(c.Left, n.baseRef())
			if err != nil {
				return err
			}
			right, err := n.joinColumn(c.Right, joinRef)
			if err != nil {
				return err
			}
			spec.on = append(spec.on, left+" = "+right)
		}

		n.joins = append(n.joins, spec)
		return nil
	})
}

// joinColumn sanitizes one side of a join condition, qualifying a bare
// column with owner.
func (q *SelectQuery) joinColumn(column, owner string) (string, error) {
	ref, err := q.column(column)
	if err != nil {
		return "", err
	}
	if ref.bare {
		return owner + "." + ref.name, nil
	}
	if security.IsQualifiedName(column) {
		qualifier := column[:strings.LastIndexByte(column, '.')]
		if !q.joined[qualifier] {
			return "", invalid(ErrInvalidJoin, column, "join condition references a table that is not part of the query")
		}
	}
	return ref.name, nil
}
