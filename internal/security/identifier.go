// Package security provides the SQL injection defense layer: identifier
// sanitization, operator and direction whitelists, free-text expression and
// JSON path validation, and audit logging of executed and rejected queries.
package security

import (
	"regexp"
	"strings"

	"github.com/coregx/pgquery/internal/pgsql"
)

// identifierPattern matches a bare name or a table.column pair.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// complexMarkers flag strings produced by the JSON and window helpers.
var complexMarkers = []string{"@", "?", "#", "(", ")", "[", "]", ">", "->", "#-", "||", "jsonb_", "::jsonb"}

// Sanitize classifies identifier and returns the text that is safe to
// concatenate into a statement.
//
// Bare and qualified names are returned unquoted. A leading '(' marks a
// subquery fragment and is passed through after the hard-reject scan.
// allowComplex marks output of the internal expression helpers, which must
// additionally be free of statement keywords. Anything else that survives the
// scan is quoted as a single identifier.
func Sanitize(identifier string, allowComplex bool) (string, error) {
	if strings.TrimSpace(identifier) == "" {
		return "", NewError(ErrInvalidIdentifier, identifier, "identifier cannot be empty")
	}

	if !allowComplex && identifierPattern.MatchString(identifier) {
		for _, segment := range strings.Split(identifier, ".") {
			if len(segment) > pgsql.MaxIdentifierLength {
				return "", Errorf(ErrInvalidIdentifier, identifier,
					"segment %q exceeds %d bytes", segment, pgsql.MaxIdentifierLength)
			}
		}
		return identifier, nil
	}

	if err := check(identifierSignatures, ErrInvalidIdentifier, identifier); err != nil {
		return "", err
	}

	if strings.HasPrefix(strings.TrimSpace(identifier), "(") {
		return identifier, nil
	}
	if err := check(statementKeywordSignatures, ErrInvalidIdentifier, identifier); err != nil {
		return "", err
	}
	if allowComplex {
		return identifier, nil
	}

	if len(identifier) > pgsql.MaxIdentifierLength {
		return "", Errorf(ErrInvalidIdentifier, identifier,
			"quoted identifier exceeds %d bytes", pgsql.MaxIdentifierLength)
	}
	return pgsql.QuoteIdentifier(identifier), nil
}

// SanitizeName sanitizes a table name, alias or CTE name. Complex
// expressions and subquery fragments are not accepted in these positions.
func SanitizeName(name string) (string, error) {
	if strings.HasPrefix(strings.TrimSpace(name), "(") {
		return "", NewError(ErrInvalidIdentifier, name, "a subquery is not allowed here")
	}
	return Sanitize(name, false)
}

// IsQualifiedName reports whether s has the table.column shape.
func IsQualifiedName(s string) bool {
	return strings.Contains(s, ".") && identifierPattern.MatchString(s)
}

// IsBareName reports whether s is a single unqualified identifier.
func IsBareName(s string) bool {
	return !strings.Contains(s, ".") && identifierPattern.MatchString(s)
}

// IsComplexExpression reports whether s looks like a pre-built fragment
// (JSON operator chain, jsonb_* call, window or aggregate expression) rather
// than a column name.
func IsComplexExpression(s string) bool {
	for _, marker := range complexMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
