package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/coregx/pgquery/internal/security"
)

// OrderBy adds an ORDER BY entry. Direction is ASC or DESC and defaults to
// ASC. Unqualified columns must belong to the base table's registered schema
// unless they are select aliases, window aliases, aggregate or window
// expressions, or GROUP BY columns.
func (q *SelectQuery) OrderBy(column string, direction ...string) *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		if len(n.orderBy) >= MaxOrderBy {
			return invalidf(ErrTooManyOrderBy, column, "at most %d ORDER BY entries are allowed", MaxOrderBy)
		}
		if len(direction) > 1 {
			return invalid(security.ErrInvalidDirection, strings.Join(direction, " "), "pass at most one direction")
		}
		dir := ""
		if len(direction) == 1 {
			dir = direction[0]
		}
		dir, err := security.NormalizeDirection(dir)
		if err != nil {
			return err
		}

		ref, err := n.orderColumn(column)
		if err != nil {
			return err
		}
		n.orderBy = append(n.orderBy, orderTerm{column: ref, direction: dir})
		return nil
	})
}

func (q *SelectQuery) orderColumn(column string) (columnRef, error) {
	if q.aliases[column] || q.isWindowAlias(column) {
		return columnRef{name: column, raw: column}, nil
	}
	ref, err := q.column(column)
	if err != nil {
		return columnRef{}, err
	}
	if isAggregateOrWindow(column) || q.inGroupBy(ref) {
		return ref, nil
	}
	if !q.inSchema(ref) {
		return columnRef{}, invalidf(security.ErrInvalidIdentifier, column, "column is not part of table %s", q.table)
	}
	return ref, nil
}

func (q *SelectQuery) renderOrderBy() string {
	parts := make([]string, len(q.orderBy))
	for i, o := range q.orderBy {
		parts[i] = q.ref(o.column) + " " + o.direction
	}
	return strings.Join(parts, ", ")
}

// Limit sets LIMIT n, 1 <= n <= MaxLimit.
func (q *SelectQuery) Limit(n int) *SelectQuery {
	return q.LimitFloat(float64(n))
}

// LimitFloat is Limit for values from dynamic sources such as decoded JSON.
// NaN, infinities and fractions are rejected with distinct errors.
func (q *SelectQuery) LimitFloat(n float64) *SelectQuery {
	return q.apply(func(nq *SelectQuery) error {
		if err := checkLimit(n); err != nil {
			return err
		}
		nq.limit, nq.hasLimit = int(n), true
		return nil
	})
}

// Offset sets OFFSET n, 0 <= n <= MaxOffset.
func (q *SelectQuery) Offset(n int) *SelectQuery {
	return q.OffsetFloat(float64(n))
}

// OffsetFloat is Offset for values from dynamic sources.
func (q *SelectQuery) OffsetFloat(n float64) *SelectQuery {
	return q.apply(func(nq *SelectQuery) error {
		if err := checkOffset(n); err != nil {
			return err
		}
		nq.offset, nq.hasOffset = int(n), true
		return nil
	})
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func checkLimit(n float64) error {
	v := formatNumber(n)
	switch {
	case math.IsNaN(n):
		return invalid(ErrInvalidLimit, v, "limit must be a number, got NaN")
	case math.IsInf(n, 0):
		return invalid(ErrInvalidLimit, v, "limit must be finite")
	case n != math.Trunc(n):
		return invalid(ErrInvalidLimit, v, "limit must be an integer")
	case n < 0:
		return invalid(ErrInvalidLimit, v, "limit cannot be negative")
	case n == 0:
		return invalid(ErrInvalidLimit, v, "limit must be at least 1")
	case n > MaxLimit:
		return invalidf(ErrInvalidLimit, v, "limit cannot exceed %d", MaxLimit)
	}
	return nil
}

func checkOffset(n float64) error {
	v := formatNumber(n)
	switch {
	case math.IsNaN(n):
		return invalid(ErrInvalidOffset, v, "offset must be a number, got NaN")
	case math.IsInf(n, 0):
		return invalid(ErrInvalidOffset, v, "offset must be finite")
	case n != math.Trunc(n):
		return invalid(ErrInvalidOffset, v, "offset must be an integer")
	case n < 0:
		return invalid(ErrInvalidOffset, v, "offset cannot be negative")
	case n > MaxOffset:
		return invalidf(ErrInvalidOffset, v, "offset cannot exceed %d", MaxOffset)
	}
	return nil
}
