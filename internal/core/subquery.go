package core

import (
	"github.com/coregx/pgquery/internal/pgsql"
	"github.com/coregx/pgquery/internal/security"
)

// SubqueryClause is a validated subquery predicate. Its placeholders are
// numbered from $1 and renumbered when the clause is added to a query with
// WhereSubquery. Values are built only by the Subquery helpers; the body is
// checked again when the clause is added.
//
//	sql, args, err := orders.Select("user_id").Where("total", ">", 100).ToSQL()
//	clause, err := core.SubqueryIn("id", sql, args...)
//	users.WhereSubquery(clause)
type SubqueryClause struct {
	prefix string
	body   string
	params []any
}

// SQL returns the predicate text, e.g. "id IN (SELECT ...)".
func (c SubqueryClause) SQL() string {
	if c.prefix == "" {
		return ""
	}
	return c.prefix + "(" + c.body + ")"
}

// Args returns a copy of the predicate's parameters.
func (c SubqueryClause) Args() []any {
	return cloneArgs(c.params)
}

// checkStatement validates caller-supplied statement text and its params.
func checkStatement(sql string, params []any) error {
	if err := security.ValidateSubquery(sql); err != nil {
		return err
	}
	if highest := pgsql.MaxPlaceholder(sql); highest != len(params) {
		return invalidf(security.ErrInvalidSubquery, sql,
			"statement references $%d but %d parameters were given", highest, len(params))
	}
	for _, p := range params {
		if err := checkParamSize(p); err != nil {
			return err
		}
	}
	return nil
}

func subquery(prefix, sql string, params []any) (SubqueryClause, error) {
	if err := checkStatement(sql, params); err != nil {
		return SubqueryClause{}, err
	}
	return SubqueryClause{prefix: prefix, body: sql, params: cloneArgs(params)}, nil
}

func subqueryColumn(column string) (string, error) {
	ref, err := sanitizeColumn(column)
	if err != nil {
		return "", err
	}
	return ref.name, nil
}

// SubqueryIn renders column IN (sql).
func SubqueryIn(column, sql string, params ...any) (SubqueryClause, error) {
	col, err := subqueryColumn(column)
	if err != nil {
		return SubqueryClause{}, err
	}
	return subquery(col+" IN ", sql, params)
}

// SubqueryNotIn renders column NOT IN (sql).
func SubqueryNotIn(column, sql string, params ...any) (SubqueryClause, error) {
	col, err := subqueryColumn(column)
	if err != nil {
		return SubqueryClause{}, err
	}
	return subquery(col+" NOT IN ", sql, params)
}

// SubqueryExists renders EXISTS (sql).
func SubqueryExists(sql string, params ...any) (SubqueryClause, error) {
	return subquery("EXISTS ", sql, params)
}

// SubqueryNotExists renders NOT EXISTS (sql).
func SubqueryNotExists(sql string, params ...any) (SubqueryClause, error) {
	return subquery("NOT EXISTS ", sql, params)
}

// SubqueryCompare renders column op (sql) for a scalar subquery.
func SubqueryCompare(column, operator, sql string, params ...any) (SubqueryClause, error) {
	return quantified(column, operator, "", sql, params)
}

// SubqueryAny renders column op ANY (sql).
func SubqueryAny(column, operator, sql string, params ...any) (SubqueryClause, error) {
	return quantified(column, operator, "ANY ", sql, params)
}

// SubqueryAll renders column op ALL (sql).
func SubqueryAll(column, operator, sql string, params ...any) (SubqueryClause, error) {
	return quantified(column, operator, "ALL ", sql, params)
}

func quantified(column, operator, quantifier, sql string, params []any) (SubqueryClause, error) {
	op, err := security.NormalizeComparison(operator)
	if err != nil {
		return SubqueryClause{}, err
	}
	col, err := subqueryColumn(column)
	if err != nil {
		return SubqueryClause{}, err
	}
	return subquery(col+" "+op+" "+quantifier, sql, params)
}
