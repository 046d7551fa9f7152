// Package pgsql holds the PostgreSQL wire conventions used when rendering
// statements: positional placeholders, identifier and literal quoting, array
// literals for JSON paths, and placeholder renumbering for fragments that were
// written as independent statements.
package pgsql

import (
	"strconv"
	"strings"
)

// MaxIdentifierLength is the PostgreSQL NAMEDATALEN limit minus the terminator.
// Longer identifiers are silently truncated by the server.
const MaxIdentifierLength = 63

// Placeholder returns the positional placeholder for the n-th parameter ($1, $2, ...).
func Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// QuoteIdentifier wraps s in double quotes, doubling any embedded double quote.
func QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// EscapeLiteral doubles single quotes so s can be embedded in a standard
// conforming string literal. It must be applied exactly once per value.
func EscapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// QuoteLiteral renders s as a single-quoted string literal.
func QuoteLiteral(s string) string {
	return "'" + EscapeLiteral(s) + "'"
}

// TextArrayLiteral renders segments as a quoted text[] literal such as
// '{address,city}', the form expected by #>, #>>, #- and jsonb_set paths.
// Elements that would be ambiguous inside an array literal are double quoted;
// callers are expected to have rejected double quotes and backslashes already.
func TextArrayLiteral(segments []string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte(',')
		}
		if needsArrayQuoting(seg) {
			b.WriteByte('"')
			b.WriteString(seg)
			b.WriteByte('"')
			continue
		}
		b.WriteString(seg)
	}
	b.WriteByte('}')
	return QuoteLiteral(b.String())
}

func needsArrayQuoting(seg string) bool {
	if seg == "" || strings.EqualFold(seg, "null") {
		return true
	}
	return strings.ContainsAny(seg, ",{} \t\r\n")
}
