package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coregx/pgquery/internal/security"
)

// condition is one WHERE or HAVING term. The column is rendered through the
// query's qualification rules; tail holds the operator and bound values.
type condition struct {
	glue   string
	column columnRef
	tail   fragment
}

// caseInsensitiveOps maps operators rewritten by IgnoreCase for string values.
var caseInsensitiveOps = map[string]string{
	"=":        "ILIKE",
	"!=":       "NOT ILIKE",
	"<>":       "NOT ILIKE",
	"LIKE":     "ILIKE",
	"NOT LIKE": "NOT ILIKE",
}

// predicate validates op and value and renders the part of a condition that
// follows the column.
func predicate(operator string, value any, caseInsensitive bool) (fragment, error) {
	op, err := security.NormalizeOperator(operator)
	if err != nil {
		return fragment{}, err
	}
	if err := checkParamSize(value); err != nil {
		return fragment{}, err
	}
	if _, isString := value.(string); isString && caseInsensitive {
		if rewritten, ok := caseInsensitiveOps[op]; ok {
			op = rewritten
		}
	}

	w := &fragmentWriter{}
	switch op {
	case "IN", "NOT IN":
		values, ok := expandSlice(value)
		if !ok || len(values) == 0 {
			return fragment{}, invalidf(ErrInvalidValue, describe(value), "%s requires a non-empty slice", op)
		}
		w.sql(" " + op + " (")
		for i, v := range values {
			if i > 0 {
				w.sql(", ")
			}
			w.bind(v)
		}
		w.sql(")")

	case "BETWEEN", "NOT BETWEEN":
		values, ok := expandSlice(value)
		if !ok || len(values) != 2 {
			return fragment{}, invalidf(ErrInvalidValue, describe(value), "%s requires exactly two values", op)
		}
		w.sql(" " + op + " ").bind(values[0]).sql(" AND ").bind(values[1])

	case "IS NULL", "IS NOT NULL":
		w.sql(" " + op)

	case "@>", "<@":
		doc, err := jsonDocument(value)
		if err != nil {
			return fragment{}, err
		}
		w.sql(" " + op + " ").bind(doc).sql("::jsonb")

	case "?":
		key, ok := value.(string)
		if !ok {
			return fragment{}, invalid(ErrInvalidValue, describe(value), "? requires a string key")
		}
		w.sql(" ? ").bind(key)

	case "?|", "?&":
		keys, err := stringSlice(value)
		if err != nil {
			return fragment{}, err
		}
		w.sql(" " + op + " ").bind(keys).sql("::text[]")

	default:
		w.sql(" " + op + " ").bind(value)
	}
	return w.fragment(), nil
}

// jsonDocument returns value as JSON text. Strings and byte slices that are
// already valid JSON are bound unchanged; anything else is marshalled.
func jsonDocument(value any) (string, error) {
	switch v := value.(type) {
	case json.RawMessage:
		if json.Valid(v) {
			return string(v), nil
		}
	case []byte:
		if json.Valid(v) {
			return string(v), nil
		}
	case string:
		if json.Valid([]byte(v)) {
			return v, nil
		}
	}
	doc, err := json.Marshal(value)
	if err != nil {
		return "", invalidf(ErrInvalidValue, describe(value), "value cannot be encoded as JSON: %v", err)
	}
	return string(doc), nil
}

func stringSlice(value any) ([]string, error) {
	if keys, ok := value.([]string); ok && len(keys) > 0 {
		return keys, nil
	}
	values, ok := expandSlice(value)
	if !ok || len(values) == 0 {
		return nil, invalid(ErrInvalidValue, describe(value), "key-existence operators require a non-empty string slice")
	}
	keys := make([]string, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, invalid(ErrInvalidValue, describe(value), "key-existence operators require a non-empty string slice")
		}
		keys[i] = s
	}
	return keys, nil
}

// describe renders a value for an error message.
func describe(v any) string {
	s := fmt.Sprintf("%v", v)
	if len(s) > 64 {
		s = s[:64] + "..."
	}
	return s
}

func renderConditions(conds []condition, next int, ref func(columnRef) string) (string, []any, int) {
	var (
		b    strings.Builder
		args []any
	)
	for i, c := range conds {
		if i > 0 {
			b.WriteString(" " + c.glue + " ")
		}
		if c.column.name != "" {
			b.WriteString(ref(c.column))
		}
		sql, a, n := c.tail.render(next)
		b.WriteString(sql)
		args = append(args, a...)
		next = n
	}
	return b.String(), args, next
}

// Where adds a condition joined with AND.
//
//	q.Where("status", "=", "active").Where("age", ">=", 18)
func (q *SelectQuery) Where(column, operator string, value any) *SelectQuery {
	return q.addWhere("AND", column, operator, value)
}

// OrWhere adds a condition joined with OR. Conditions are joined in the order
// they were added, without grouping.
func (q *SelectQuery) OrWhere(column, operator string, value any) *SelectQuery {
	return q.addWhere("OR", column, operator, value)
}

func (q *SelectQuery) addWhere(glue, column, operator string, value any) *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		ref, err := n.column(column)
		if err != nil {
			return err
		}
		tail, err := predicate(operator, value, n.caseInsensitive)
		if err != nil {
			return err
		}
		return n.appendWhere(condition{glue: glue, column: ref, tail: tail})
	})
}

func (q *SelectQuery) appendWhere(c condition) error {
	if len(q.where) >= MaxWhereConditions {
		return invalidf(ErrTooManyWhereConditions, "", "at most %d conditions are allowed", MaxWhereConditions)
	}
	q.where = append(q.where, c)
	return nil
}

// WhereSubquery adds a subquery condition joined with AND.
func (q *SelectQuery) WhereSubquery(sc SubqueryClause) *SelectQuery {
	return q.addSubquery("AND", sc)
}

// OrWhereSubquery adds a subquery condition joined with OR.
func (q *SelectQuery) OrWhereSubquery(sc SubqueryClause) *SelectQuery {
	return q.addSubquery("OR", sc)
}

func (q *SelectQuery) addSubquery(glue string, sc SubqueryClause) *SelectQuery {
	return q.apply(func(n *SelectQuery) error {
		if sc.prefix == "" {
			return invalid(security.ErrInvalidSubquery, "", "subquery clauses must be built with the Subquery helpers")
		}
		if err := checkStatement(sc.body, sc.params); err != nil {
			return err
		}
		return n.appendWhere(condition{glue: glue, tail: fragment{sql: sc.SQL(), args: sc.Args()}})
	})
}

// WhereJSONContains matches rows whose jsonb column contains value (@>).
func (q *SelectQuery) WhereJSONContains(column string, value any) *SelectQuery {
	return q.Where(column, "@>", value)
}

// WhereJSONContainedBy matches rows whose jsonb column is contained by value (<@).
func (q *SelectQuery) WhereJSONContainedBy(column string, value any) *SelectQuery {
	return q.Where(column, "<@", value)
}

// WhereJSONHasKey matches rows whose jsonb column has key at the top level (?).
func (q *SelectQuery) WhereJSONHasKey(column, key string) *SelectQuery {
	if _, err := security.ValidateJSONIdentifier(key); err != nil {
		return q.fail(err)
	}
	return q.Where(column, "?", key)
}

// WhereJSONHasAnyKey matches rows having at least one of keys (?|).
func (q *SelectQuery) WhereJSONHasAnyKey(column string, keys ...string) *SelectQuery {
	return q.whereKeys(column, "?|", keys)
}

// WhereJSONHasAllKeys matches rows having every one of keys (?&).
func (q *SelectQuery) WhereJSONHasAllKeys(column string, keys ...string) *SelectQuery {
	return q.whereKeys(column, "?&", keys)
}

func (q *SelectQuery) whereKeys(column, op string, keys []string) *SelectQuery {
	for _, k := range keys {
		if _, err := security.ValidateJSONIdentifier(k); err != nil {
			return q.fail(err)
		}
	}
	return q.Where(column, op, keys)
}

// WhereJSONPathExists matches rows where the SQL/JSON path returns an item (@?).
func (q *SelectQuery) WhereJSONPathExists(column, path string) *SelectQuery {
	return q.whereJSONPath(column, "@?", path)
}

// WhereJSONPathMatch matches rows where the SQL/JSON path predicate is true (@@).
func (q *SelectQuery) WhereJSONPathMatch(column, expr string) *SelectQuery {
	return q.whereJSONPath(column, "@@", expr)
}

func (q *SelectQuery) whereJSONPath(column, op, path string) *SelectQuery {
	if strings.TrimSpace(path) == "" {
		return q.fail(invalid(security.ErrInvalidJSONIdentifier, path, "JSON path cannot be empty"))
	}
	return q.Where(column, op, path)
}

// fail returns a copy of q carrying err, unless q already carries one.
func (q *SelectQuery) fail(err error) *SelectQuery {
	return q.apply(func(*SelectQuery) error { return err })
}
