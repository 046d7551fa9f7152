package logger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultMask replaces sensitive values in log output.
const DefaultMask = "***REDACTED***"

// defaultSensitiveFields are column names whose bound values are never logged.
var defaultSensitiveFields = []string{
	"password", "passwd", "pwd",
	"token", "api_key", "apikey", "api_token",
	"secret", "auth", "authorization",
	"credit_card", "card_number", "cvv", "cvc",
	"ssn", "social_security",
	"private_key", "priv_key",
}

var (
	// comparisonBinding matches `column <op> $N` and captures column and N.
	comparisonBinding = regexp.MustCompile(`(?i)([A-Za-z_][A-Za-z0-9_."]*)\s*(?:=|<>|!=|<=|>=|<|>|\bI?LIKE\b|\bNOT I?LIKE\b)\s*\$(\d+)`)
	// inBinding matches `column IN ($1, $2, ...)`.
	inBinding = regexp.MustCompile(`(?i)([A-Za-z_][A-Za-z0-9_."]*)\s+(?:NOT\s+)?IN\s*\(([^)]*)\)`)
	// insertBinding matches `INSERT INTO t (cols) VALUES (...)`.
	insertBinding = regexp.MustCompile(`(?is)INSERT\s+INTO\s+\S+\s*\(([^)]*)\)\s*VALUES\s*\(([^)]*)\)`)
	placeholderRef = regexp.MustCompile(`\$(\d+)`)
)

// Sanitizer masks parameters bound to sensitive columns before they are logged.
type Sanitizer struct {
	fields    []*regexp.Regexp
	maskValue string
}

// NewSanitizer creates a sanitizer for the given field names, or for the
// default set when none are given.
func NewSanitizer(sensitiveFields []string) *Sanitizer {
	if len(sensitiveFields) == 0 {
		sensitiveFields = defaultSensitiveFields
	}
	fields := make([]*regexp.Regexp, 0, len(sensitiveFields))
	for _, f := range sensitiveFields {
		fields = append(fields, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(f)+`\b`))
	}
	return &Sanitizer{fields: fields, maskValue: DefaultMask}
}

// MaskParams returns a copy of params with sensitive values masked. Params
// bound to a sensitive column through a recognisable `col = $N`, IN list or
// INSERT column list are masked individually; when the statement mentions a
// sensitive field but no binding can be attributed, every param is masked.
// The input slice is never modified.
func (s *Sanitizer) MaskParams(sql string, params []any) []any {
	if len(params) == 0 || !s.mentionsSensitive(sql) {
		return params
	}

	positions := s.sensitivePositions(sql)
	masked := make([]any, len(params))
	for i, p := range params {
		if positions == nil || positions[i+1] {
			masked[i] = s.maskValue
			continue
		}
		masked[i] = p
	}
	return masked
}

func (s *Sanitizer) mentionsSensitive(text string) bool {
	for _, f := range s.fields {
		if f.MatchString(text) {
			return true
		}
	}
	return false
}

// sensitivePositions returns the placeholder numbers bound to sensitive
// columns, or nil when no binding could be attributed.
func (s *Sanitizer) sensitivePositions(sql string) map[int]bool {
	positions := make(map[int]bool)
	attributed := false

	for _, m := range comparisonBinding.FindAllStringSubmatch(sql, -1) {
		if s.mentionsSensitive(m[1]) {
			attributed = true
			positions[atoi(m[2])] = true
		}
	}
	for _, m := range inBinding.FindAllStringSubmatch(sql, -1) {
		if s.mentionsSensitive(m[1]) {
			attributed = true
			for _, ref := range placeholderRef.FindAllStringSubmatch(m[2], -1) {
				positions[atoi(ref[1])] = true
			}
		}
	}
	if m := insertBinding.FindStringSubmatch(sql); m != nil {
		cols := strings.Split(m[1], ",")
		vals := strings.Split(m[2], ",")
		for i := 0; i < len(cols) && i < len(vals); i++ {
			if !s.mentionsSensitive(cols[i]) {
				continue
			}
			attributed = true
			if ref := placeholderRef.FindStringSubmatch(vals[i]); ref != nil {
				positions[atoi(ref[1])] = true
			}
		}
	}

	if !attributed {
		return nil
	}
	return positions
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// FormatParams renders params for a log line, truncating long values.
func (s *Sanitizer) FormatParams(params []any) string {
	if len(params) == 0 {
		return "[]"
	}
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = formatValue(p)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	str := fmt.Sprintf("%v", v)
	const maxLen = 100
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}
