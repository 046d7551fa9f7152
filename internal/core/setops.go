package core

import (
	"github.com/coregx/pgquery/internal/security"
)

type setOperation struct {
	op   string
	body fragment
}

// Union appends UNION other.
func (q *SelectQuery) Union(other *SelectQuery) *SelectQuery {
	return q.setOp("UNION", other)
}

// UnionAll appends UNION ALL other.
func (q *SelectQuery) UnionAll(other *SelectQuery) *SelectQuery {
	return q.setOp("UNION ALL", other)
}

// Intersect appends INTERSECT other.
func (q *SelectQuery) Intersect(other *SelectQuery) *SelectQuery {
	return q.setOp("INTERSECT", other)
}

// Except appends EXCEPT other.
func (q *SelectQuery) Except(other *SelectQuery) *SelectQuery {
	return q.setOp("EXCEPT", other)
}

// UnionRaw appends UNION sql. The statement numbers its placeholders from $1
// and is renumbered to follow the parameters that precede it.
func (q *SelectQuery) UnionRaw(sql string, params ...any) *SelectQuery {
	return q.setOpRaw("UNION", sql, params)
}

// UnionAllRaw appends UNION ALL sql.
func (q *SelectQuery) UnionAllRaw(sql string, params ...any) *SelectQuery {
	return q.setOpRaw("UNION ALL", sql, params)
}

// IntersectRaw appends INTERSECT sql.
func (q *SelectQuery) IntersectRaw(sql string, params ...any) *SelectQuery {
	return q.setOpRaw("INTERSECT", sql, params)
}

// ExceptRaw appends EXCEPT sql.
func (q *SelectQuery) ExceptRaw(sql string, params ...any) *SelectQuery {
	return q.setOpRaw("EXCEPT", sql, params)
}

func (q *SelectQuery) setOp(op string, other *SelectQuery) *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		if other == nil {
			return invalidf(security.ErrInvalidSubquery, "", "%s requires a query", op)
		}
		sql, args, err := other.ToSQL()
		if err != nil {
			return err
		}
		if other.hasTail() || len(other.setOps) > 0 || len(other.ctes) > 0 {
			sql = "(" + sql + ")"
		}
		return n.appendSetOp(op, fragment{sql: sql, args: args})
	})
}

func (q *SelectQuery) setOpRaw(op, sql string, params []any) *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		if err := checkStatement(sql, params); err != nil {
			return err
		}
		return n.appendSetOp(op, fragment{sql: sql, args: cloneArgs(params)})
	})
}

func (q *SelectQuery) appendSetOp(op string, body fragment) error {
	if len(q.setOps) >= MaxSetOperations {
		return invalidf(ErrTooManySetOperations, "", "at most %d set operations are allowed", MaxSetOperations)
	}
	q.setOps = append(q.setOps, setOperation{op: op, body: body})
	return nil
}
