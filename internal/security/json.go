package security

import (
	"regexp"
	"strings"
)

const (
	// MaxJSONIdentifierLength bounds a single JSON key or path segment.
	MaxJSONIdentifierLength = 255
	// MaxJSONPathDepth bounds the number of segments in a JSON path.
	MaxJSONPathDepth = 20
)

var (
	jsonKeyword        = regexp.MustCompile(`(?i)\b(UNION|SELECT|DROP|INSERT|UPDATE|DELETE|TRUNCATE|ALTER|EXEC|EXECUTE)\b`)
	jsonBooleanToken   = regexp.MustCompile(`(?i)(^|\s)(OR|AND)(\s|$)`)
	jsonQuotedBoolean  = regexp.MustCompile(`(?i)'[^']*\b(OR|AND)\b[^']*'`)
	jsonShapeSignature = []signature{
		nulByte,
		{"double quote is not allowed", contains(`"`)},
		{"backtick is not allowed", contains("`")},
		{"backslash is only allowed before a double quote", func(s string) bool {
			for i := 0; i < len(s); i++ {
				if s[i] == '\\' && (i+1 >= len(s) || s[i+1] != '"') {
					return true
				}
			}
			return false
		}},
		statementSeparator,
		lineComment,
		blockComment,
	}
)

// ValidateJSONIdentifier checks a JSON key or path segment before it is
// rendered inside a quoted literal. It returns the component unchanged:
// single quotes are legal in JSON keys and are escaped at render time.
func ValidateJSONIdentifier(component string) (string, error) {
	if strings.TrimSpace(component) == "" {
		return "", NewError(ErrInvalidJSONIdentifier, component, "JSON identifier cannot be empty")
	}
	if len(component) > MaxJSONIdentifierLength {
		return "", Errorf(ErrInvalidJSONIdentifier, component,
			"JSON identifier exceeds %d characters", MaxJSONIdentifierLength)
	}
	if err := check(jsonShapeSignature, ErrInvalidJSONIdentifier, component); err != nil {
		return "", err
	}
	if jsonKeyword.MatchString(component) {
		return "", NewError(ErrSQLInjectionAttempt, component, "SQL keyword is not allowed in a JSON identifier")
	}
	if jsonBooleanToken.MatchString(component) {
		return "", NewError(ErrSQLInjectionAttempt, component, "standalone OR/AND token is not allowed in a JSON identifier")
	}
	if jsonQuotedBoolean.MatchString(component) {
		return "", NewError(ErrSQLInjectionAttempt, component, "quoted boolean pattern is not allowed in a JSON identifier")
	}
	return component, nil
}

// ValidateJSONPath validates every segment of a path and enforces the depth cap.
func ValidateJSONPath(segments []string) ([]string, error) {
	if len(segments) == 0 {
		return nil, NewError(ErrInvalidJSONIdentifier, "", "JSON path must have at least one segment")
	}
	if len(segments) > MaxJSONPathDepth {
		return nil, Errorf(ErrPathTooDeep, strings.Join(segments, "."),
			"JSON path has %d segments, at most %d allowed", len(segments), MaxJSONPathDepth)
	}
	for _, segment := range segments {
		if _, err := ValidateJSONIdentifier(segment); err != nil {
			return nil, err
		}
	}
	return segments, nil
}
