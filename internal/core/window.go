package core

import (
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/coregx/pgquery/internal/security"
)

// OrderTerm is one ORDER BY entry of a window definition.
type OrderTerm struct {
	Column    string
	Direction string
}

// Asc orders a window by column ascending.
func Asc(column string) OrderTerm { return OrderTerm{Column: column, Direction: "ASC"} }

// Desc orders a window by column descending.
func Desc(column string) OrderTerm { return OrderTerm{Column: column, Direction: "DESC"} }

const windowAliasPrefix = "window_"

func windowAlias(n int) string {
	return windowAliasPrefix + strconv.Itoa(n)
}

func (q *SelectQuery) isWindowAlias(s string) bool {
	if !strings.HasPrefix(s, windowAliasPrefix) {
		return false
	}
	n, err := strconv.Atoi(s[len(windowAliasPrefix):])
	return err == nil && n >= 1 && n <= len(q.windows)
}

// windowOrder is one ORDER BY entry of a window definition.
type windowOrder struct {
	column    columnRef
	direction string
}

// windowItem is one window function of the select list. Column references
// stay unrendered until ToSQL, so joins added later still qualify them.
type windowItem struct {
	fn        string
	arg       columnRef
	hasArg    bool
	extra     []string // LAG/LEAD offset and default
	partition []columnRef
	order     []windowOrder

	// custom items come from Window: fn is the caller's expression and over
	// the caller's OVER clause.
	custom bool
	over   string
}

// RowNumber selects ROW_NUMBER() OVER (...) AS window_<n>.
func (q *SelectQuery) RowNumber(partitionBy []string, orderBy []OrderTerm) *SelectQuery {
	return q.rankingWindow("ROW_NUMBER", partitionBy, orderBy)
}

// Rank selects RANK() OVER (...) AS window_<n>.
func (q *SelectQuery) Rank(partitionBy []string, orderBy []OrderTerm) *SelectQuery {
	return q.rankingWindow("RANK", partitionBy, orderBy)
}

// DenseRank selects DENSE_RANK() OVER (...) AS window_<n>.
func (q *SelectQuery) DenseRank(partitionBy []string, orderBy []OrderTerm) *SelectQuery {
	return q.rankingWindow("DENSE_RANK", partitionBy, orderBy)
}

func (q *SelectQuery) rankingWindow(fn string, partitionBy []string, orderBy []OrderTerm) *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		w := windowItem{fn: fn}
		if err := n.windowDefinition(&w, partitionBy, orderBy); err != nil {
			return err
		}
		n.windows = append(n.windows, w)
		return nil
	})
}

// Lag selects LAG(column, offset[, default]) OVER (...) AS window_<n>. The
// default is rendered inline, so only numbers, booleans and nil are accepted.
func (q *SelectQuery) Lag(column string, offset int, defaultValue any, partitionBy []string, orderBy []OrderTerm) *SelectQuery {
	return q.offsetWindow("LAG", column, offset, defaultValue, partitionBy, orderBy)
}

// Lead selects LEAD(column, offset[, default]) OVER (...) AS window_<n>.
func (q *SelectQuery) Lead(column string, offset int, defaultValue any, partitionBy []string, orderBy []OrderTerm) *SelectQuery {
	return q.offsetWindow("LEAD", column, offset, defaultValue, partitionBy, orderBy)
}

func (q *SelectQuery) offsetWindow(fn, column string, offset int, defaultValue any, partitionBy []string, orderBy []OrderTerm) *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		if offset < 0 {
			return invalidf(ErrInvalidWindow, strconv.Itoa(offset), "%s offset cannot be negative", fn)
		}
		ref, err := n.column(column)
		if err != nil {
			return err
		}
		w := windowItem{fn: fn, arg: ref, hasArg: true, extra: []string{strconv.Itoa(offset)}}
		if defaultValue != nil {
			lit, err := windowLiteral(defaultValue)
			if err != nil {
				return err
			}
			w.extra = append(w.extra, lit)
		}
		if err := n.windowDefinition(&w, partitionBy, orderBy); err != nil {
			return err
		}
		n.windows = append(n.windows, w)
		return nil
	})
}

// windowLiteral renders a LAG/LEAD default. Strings are refused because the
// value is not parameter-bound.
func windowLiteral(v any) (string, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			return "TRUE", nil
		}
		return "FALSE", nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", invalid(ErrInvalidWindow, formatNumber(f), "default value must be finite")
		}
		return formatNumber(f), nil
	}
	return "", invalid(ErrInvalidWindow, describe(v), "default value must be a number, a boolean or nil")
}

// Window selects fnExpr OVER (overClause) AS window_<n>. Both fragments are
// free text and are checked for injection syntax before use.
func (q *SelectQuery) Window(fnExpr, overClause string) *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		if err := security.ValidateExpression(fnExpr); err != nil {
			return err
		}
		if strings.TrimSpace(overClause) != "" {
			if err := security.ValidateExpression(overClause); err != nil {
				return err
			}
		}
		n.windows = append(n.windows, windowItem{fn: fnExpr, over: overClause, custom: true})
		return nil
	})
}

func (q *SelectQuery) windowDefinition(w *windowItem, partitionBy []string, orderBy []OrderTerm) error {
	if len(partitionBy) > MaxPartitionColumns {
		return invalidf(ErrTooManyPartitionColumns, "", "at most %d PARTITION BY columns are allowed", MaxPartitionColumns)
	}
	if len(orderBy) > MaxWindowOrderBy {
		return invalidf(ErrTooManyOrderBy, "", "at most %d window ORDER BY entries are allowed", MaxWindowOrderBy)
	}

	for _, c := range partitionBy {
		ref, err := q.column(c)
		if err != nil {
			return err
		}
		w.partition = append(w.partition, ref)
	}
	for _, o := range orderBy {
		ref, err := q.column(o.Column)
		if err != nil {
			return err
		}
		dir, err := security.NormalizeDirection(o.Direction)
		if err != nil {
			return err
		}
		w.order = append(w.order, windowOrder{column: ref, direction: dir})
	}
	return nil
}

// renderWindow renders w for the current join state.
func (q *SelectQuery) renderWindow(w windowItem) string {
	if w.custom {
		return w.fn + " OVER (" + w.over + ")"
	}

	args := make([]string, 0, 1+len(w.extra))
	if w.hasArg {
		args = append(args, q.ref(w.arg))
	}
	args = append(args, w.extra...)

	var clauses []string
	if len(w.partition) > 0 {
		cols := make([]string, len(w.partition))
		for i, c := range w.partition {
			cols[i] = q.ref(c)
		}
		clauses = append(clauses, "PARTITION BY "+strings.Join(cols, ", "))
	}
	if len(w.order) > 0 {
		terms := make([]string, len(w.order))
		for i, o := range w.order {
			terms[i] = q.ref(o.column) + " " + o.direction
		}
		clauses = append(clauses, "ORDER BY "+strings.Join(terms, ", "))
	}
	return w.fn + "(" + strings.Join(args, ", ") + ") OVER (" + strings.Join(clauses, " ") + ")"
}
