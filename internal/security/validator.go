package security

import (
	"regexp"
	"strings"
)

// allowedOperators is the comparison whitelist for WHERE, HAVING and subquery
// comparisons. It is checked at runtime so values that bypass static typing
// (for example operators read from a request) are still rejected.
var allowedOperators = map[string]bool{
	"=": true, "!=": true, "<>": true, "<": true, ">": true, "<=": true, ">=": true,

	"LIKE": true, "ILIKE": true, "NOT LIKE": true, "NOT ILIKE": true,

	"IN": true, "NOT IN": true, "BETWEEN": true, "NOT BETWEEN": true,
	"IS NULL": true, "IS NOT NULL": true,

	"~": true, "~*": true, "!~": true, "!~*": true,

	"->": true, "->>": true, "#>": true, "#>>": true,
	"?": true, "?|": true, "?&": true,
	"@>": true, "<@": true, "@@": true, "@?": true,
	"#-": true, "||": true,
}

// comparisonOperators may be used with ANY/ALL and scalar subqueries.
var comparisonOperators = map[string]bool{
	"=": true, "!=": true, "<>": true, "<": true, ">": true, "<=": true, ">=": true,
}

// NormalizeOperator upper-cases op, collapses internal whitespace and checks it
// against the whitelist.
func NormalizeOperator(op string) (string, error) {
	normalized := strings.Join(strings.Fields(strings.ToUpper(op)), " ")
	if !allowedOperators[normalized] {
		return "", NewError(ErrInvalidOperator, op, "operator is not in the allowed list")
	}
	return normalized, nil
}

// NormalizeComparison accepts only the scalar comparison operators.
func NormalizeComparison(op string) (string, error) {
	normalized, err := NormalizeOperator(op)
	if err != nil {
		return "", err
	}
	if !comparisonOperators[normalized] {
		return "", NewError(ErrInvalidOperator, op, "only comparison operators are allowed here")
	}
	return normalized, nil
}

// NormalizeDirection returns ASC or DESC. An empty direction means ASC.
func NormalizeDirection(dir string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(dir))
	switch normalized {
	case "":
		return "ASC", nil
	case "ASC", "DESC":
		return normalized, nil
	default:
		return "", NewError(ErrInvalidDirection, dir, "direction must be ASC or DESC")
	}
}

// ValidateExpression checks a free-text SQL fragment (aggregate expression,
// window function, OVER clause) for injection syntax.
func ValidateExpression(fragment string) error {
	if strings.TrimSpace(fragment) == "" {
		return NewError(ErrInvalidExpression, fragment, "expression cannot be empty")
	}
	return check(expressionSignatures, ErrInvalidExpression, fragment)
}

// ValidatePlainColumn checks a bare string passed as a select column.
func ValidatePlainColumn(name string) error {
	if strings.TrimSpace(name) == "" {
		return NewError(ErrInvalidIdentifier, name, "column cannot be empty")
	}
	return check(plainColumnSignatures, ErrInvalidIdentifier, name)
}

// MaxSubqueryLength bounds caller-supplied statement text.
const MaxSubqueryLength = 10000

var statementStart = regexp.MustCompile(`(?i)^\s*(SELECT|WITH)\b`)

// ValidateSubquery checks caller-supplied statement text used as a subquery,
// set-operation member or CTE body.
func ValidateSubquery(sql string) error {
	if strings.TrimSpace(sql) == "" {
		return NewError(ErrInvalidSubquery, sql, "subquery cannot be empty")
	}
	if len(sql) > MaxSubqueryLength {
		return Errorf(ErrInvalidSubquery, sql, "subquery exceeds %d characters", MaxSubqueryLength)
	}
	if !statementStart.MatchString(sql) {
		return NewError(ErrInvalidSubquery, sql, "subquery must start with SELECT or WITH")
	}
	return check(stackedQuerySignatures, ErrInvalidSubquery, sql)
}
