package core

import (
	"regexp"
	"strings"

	"github.com/coregx/pgquery/internal/security"
)

// aggregateCall recognises a call to a PostgreSQL aggregate function.
var aggregateCall = regexp.MustCompile(`(?i)\b(COUNT|SUM|AVG|MIN|MAX|ARRAY_AGG|STRING_AGG|JSON_AGG|JSONB_AGG|JSON_OBJECT_AGG|JSONB_OBJECT_AGG|BOOL_AND|BOOL_OR|EVERY|BIT_AND|BIT_OR|STDDEV|STDDEV_POP|STDDEV_SAMP|VARIANCE|VAR_POP|VAR_SAMP)\s*\(`)

func isAggregateOrWindow(s string) bool {
	return aggregateCall.MatchString(s) || strings.Contains(strings.ToUpper(s), " OVER ")
}

// GroupBy adds GROUP BY columns. When a schema is registered for the base
// table, unqualified columns must belong to it.
func (q *SelectQuery) GroupBy(columns ...string) *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		if len(columns) == 0 {
			return invalid(ErrEmptyGroupBy, "", "pass at least one column")
		}
		for _, c := range columns {
			ref, err := n.column(c)
			if err != nil {
				return err
			}
			if !n.inSchema(ref) {
				return invalidf(security.ErrInvalidIdentifier, c, "column is not part of table %s", n.table)
			}
			n.groupBy = append(n.groupBy, ref)
		}
		return nil
	})
}

// Having adds a HAVING condition joined with AND. The column must be an
// aggregate call, a window expression or a GROUP BY column.
func (q *SelectQuery) Having(column, operator string, value any) *SelectQuery {
	return q.addHaving("AND", column, operator, value)
}

// OrHaving adds a HAVING condition joined with OR.
func (q *SelectQuery) OrHaving(column, operator string, value any) *SelectQuery {
	return q.addHaving("OR", column, operator, value)
}

func (q *SelectQuery) addHaving(glue, column, operator string, value any) *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		if len(n.groupBy) == 0 {
			return invalid(ErrInvalidHavingReference, column, "HAVING requires a GROUP BY clause")
		}
		ref, err := n.column(column)
		if err != nil {
			return err
		}
		if !isAggregateOrWindow(column) && !n.inGroupBy(ref) {
			return invalid(ErrInvalidHavingReference, column, "HAVING column must be an aggregate or appear in GROUP BY")
		}
		tail, err := predicate(operator, value, n.caseInsensitive)
		if err != nil {
			return err
		}
		n.having = append(n.having, condition{glue: glue, column: ref, tail: tail})
		return nil
	})
}
