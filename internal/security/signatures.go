package security

import (
	"regexp"
	"strings"

	"github.com/coregx/pgquery/internal/pgsql"
)

// signature is one rejection rule. The rule text is what callers see in the
// error message, so it names the construct rather than the pattern.
type signature struct {
	rule  string
	match func(string) bool
}

func pattern(expr string) func(string) bool {
	return regexp.MustCompile(expr).MatchString
}

func contains(substrings ...string) func(string) bool {
	return func(s string) bool {
		for _, sub := range substrings {
			if strings.Contains(s, sub) {
				return true
			}
		}
		return false
	}
}

// hasUnescapedBackslash reports a backslash that is not part of a \" or \\ pair.
// Those pairs appear in JSON text embedded by the jsonb helpers.
func hasUnescapedBackslash(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			continue
		}
		if i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\') {
			i++
			continue
		}
		return true
	}
	return false
}

// The rejection tables below are the single source of truth for injection
// signatures. The free-text tables are blacklists: they target injection
// syntax, not SQL syntax in general, and a new technique is handled by adding
// a row here.
var (
	statementSeparator = signature{"statement separator ';' is not allowed", contains(";")}
	lineComment        = signature{"comment marker '--' is not allowed", contains("--")}
	blockComment       = signature{"block comment '/* */' is not allowed", contains("/*", "*/")}
	unescapedBackslash = signature{"unescaped backslash is not allowed", hasUnescapedBackslash}
	nulByte            = signature{"NUL byte is not allowed", contains("\x00")}

	// identifierSignatures is the hard-reject scan applied to every identifier,
	// including complex expressions and subquery fragments.
	identifierSignatures = []signature{
		nulByte,
		statementSeparator,
		lineComment,
		blockComment,
		unescapedBackslash,
		{"quote followed by a boolean or statement keyword", pattern(`(?i)['"]\s*(OR|AND|DROP|DELETE|INSERT|UPDATE|UNION|SELECT)\b`)},
		{"boolean or statement keyword followed by a quote", pattern(`(?i)\b(OR|AND|DROP|DELETE|INSERT|UPDATE|UNION|SELECT)\s*['"]`)},
	}

	// statementKeywordSignatures applies to every identifier except subquery
	// fragments, which are expected to contain SQL.
	statementKeywordSignatures = []signature{
		{"statement keyword is not allowed in an identifier", pattern(`(?i)\b(DROP|DELETE|INSERT|UPDATE|UNION|SELECT)\b`)},
	}

	// expressionSignatures guards free-text fragments such as aggregate
	// expressions and window OVER clauses.
	expressionSignatures = []signature{
		nulByte,
		statementSeparator,
		lineComment,
		blockComment,
		unescapedBackslash,
		{"DDL/DML keyword is not allowed", pattern(`(?i)\b(DROP|CREATE|ALTER|TRUNCATE|GRANT|REVOKE|DELETE|INSERT|UPDATE)\b`)},
		{"UNION is not allowed", pattern(`(?i)\bUNION\b`)},
		{"empty-string boolean injection pattern", pattern(`(?i)''\s*(OR|AND)\b`)},
		{"quoted tautology pattern", pattern(`(?i)'\s*(OR|AND)\s+'[^']*'\s*=`)},
		{"numeric tautology pattern", pattern(`(?i)'\s*(OR|AND)\s+\d+\s*=\s*\d+`)},
	}

	// plainColumnSignatures applies to bare strings passed to Select. Function
	// calls and aggregates must use the explicit expression entry point.
	plainColumnSignatures = []signature{
		nulByte,
		{"parentheses are not allowed in a plain column; use an expression item", contains("(", ")")},
		statementSeparator,
		lineComment,
		blockComment,
		{"SQL keyword is not allowed in a plain column", pattern(`(?i)\b(DROP|CREATE|ALTER|TRUNCATE|GRANT|REVOKE|DELETE|INSERT|UPDATE|UNION|SELECT)\b`)},
	}

	// stackedQuerySignatures guards caller-supplied statement bodies. The body
	// is wrapped in parentheses or followed by more SQL, so it must not close
	// its own wrapper or comment out what follows.
	stackedQuerySignatures = []signature{
		nulByte,
		lineComment,
		blockComment,
		{"parentheses must balance", func(s string) bool { return !pgsql.ParensBalanced(s) }},
		{"stacked statement is not allowed", pattern(`(?i);\s*(DROP|DELETE|UPDATE|INSERT|TRUNCATE|ALTER|CREATE|GRANT|REVOKE|SELECT|WITH|COPY|EXEC|EXECUTE)\b`)},
	}
)

// scan returns the first signature in table that matches s.
func scan(table []signature, s string) (signature, bool) {
	for _, sig := range table {
		if sig.match(s) {
			return sig, true
		}
	}
	return signature{}, false
}

// check scans s and converts a match into an Error of the given kind.
func check(table []signature, kind error, s string) error {
	if sig, found := scan(table, s); found {
		return NewError(kind, s, sig.rule)
	}
	return nil
}
