package pgsql

import (
	"strconv"
	"strings"
)

// Renumber shifts every positional placeholder in sql by offset, so a fragment
// written against $1..$M can follow K parameters and reference $(K+1)..$(K+M).
//
// Placeholders are matched as whole tokens: $1 never matches the prefix of $10.
// Text inside string literals, quoted identifiers, dollar-quoted bodies and
// comments is copied unchanged.
func Renumber(sql string, offset int) string {
	if offset == 0 {
		return sql
	}
	return rewritePlaceholders(sql, func(n int) string {
		return Placeholder(n + offset)
	})
}

// MaxPlaceholder returns the highest placeholder number referenced by sql,
// or 0 if it has none.
func MaxPlaceholder(sql string) int {
	highest := 0
	rewritePlaceholders(sql, func(n int) string {
		if n > highest {
			highest = n
		}
		return Placeholder(n)
	})
	return highest
}

// Placeholders returns the placeholder numbers referenced by sql, left to right.
func Placeholders(sql string) []int {
	var found []int
	rewritePlaceholders(sql, func(n int) string {
		found = append(found, n)
		return Placeholder(n)
	})
	return found
}

// rewritePlaceholders walks sql once and replaces each $N token outside of
// quoted regions with fn(N).
//
//nolint:gocognit,cyclop // single-pass lexer over the quoting forms PostgreSQL accepts
func rewritePlaceholders(sql string, fn func(n int) string) string {
	var b strings.Builder
	b.Grow(len(sql) + 8)

	i := 0
	for i < len(sql) {
		c := sql[i]
		switch {
		case c == '\'':
			end := skipStringLiteral(sql, i)
			b.WriteString(sql[i:end])
			i = end

		case c == '"':
			end := skipQuoted(sql, i, '"')
			b.WriteString(sql[i:end])
			i = end

		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				end = len(sql)
			} else {
				end += i
			}
			b.WriteString(sql[i:end])
			i = end

		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				end = len(sql)
			} else {
				end += i + 4
			}
			b.WriteString(sql[i:end])
			i = end

		case c == '$' && !(i > 0 && isIdentByte(sql[i-1])):
			j := i + 1
			for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
				j++
			}
			if j > i+1 {
				n, err := strconv.Atoi(sql[i+1 : j])
				if err != nil {
					b.WriteString(sql[i:j])
				} else {
					b.WriteString(fn(n))
				}
				i = j
				continue
			}
			if end, ok := skipDollarQuoted(sql, i); ok {
				b.WriteString(sql[i:end])
				i = end
				continue
			}
			b.WriteByte(c)
			i++

		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// ParensBalanced reports whether every parenthesis in sql outside of string
// literals, quoted identifiers, dollar-quoted bodies and comments is matched,
// and no closing parenthesis comes before its opening one.
func ParensBalanced(sql string) bool {
	depth := 0
	i := 0
	for i < len(sql) {
		c := sql[i]
		switch {
		case c == '\'':
			i = skipStringLiteral(sql, i)
		case c == '"':
			i = skipQuoted(sql, i, '"')
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				return depth == 0
			}
			i += end
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return depth == 0
			}
			i += end + 4
		case c == '$' && !(i > 0 && isIdentByte(sql[i-1])):
			if end, ok := skipDollarQuoted(sql, i); ok {
				i = end
				continue
			}
			i++
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			if depth < 0 {
				return false
			}
			i++
		default:
			i++
		}
	}
	return depth == 0
}

// skipStringLiteral returns the index just past the literal starting at start.
// E'...' literals honour backslash escapes; standard literals only ''.
func skipStringLiteral(sql string, start int) int {
	escapes := start > 0 && (sql[start-1] == 'E' || sql[start-1] == 'e') &&
		(start < 2 || !isIdentByte(sql[start-2]))
	i := start + 1
	for i < len(sql) {
		switch sql[i] {
		case '\\':
			if escapes {
				i += 2
				continue
			}
		case '\'':
			if i+1 < len(sql) && sql[i+1] == '\'' {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(sql)
}

func skipQuoted(sql string, start int, quote byte) int {
	i := start + 1
	for i < len(sql) {
		if sql[i] == quote {
			if i+1 < len(sql) && sql[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(sql)
}

// skipDollarQuoted recognises $$...$$ and $tag$...$tag$ bodies.
func skipDollarQuoted(sql string, start int) (int, bool) {
	j := start + 1
	for j < len(sql) && sql[j] != '$' {
		if !isIdentByte(sql[j]) || (j == start+1 && sql[j] >= '0' && sql[j] <= '9') {
			return 0, false
		}
		j++
	}
	if j >= len(sql) {
		return 0, false
	}
	tag := sql[start : j+1]
	end := strings.Index(sql[j+1:], tag)
	if end < 0 {
		return len(sql), true
	}
	return j + 1 + end + len(tag), true
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
		c >= 0x80
}
