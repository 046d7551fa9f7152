package security

import (
	"errors"
	"fmt"
)

// Error kinds raised by the validators. Match them with errors.Is.
var (
	// ErrInvalidIdentifier is returned when a column, table or alias fails sanitization.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrInvalidOperator is returned for operators outside the comparison whitelist.
	ErrInvalidOperator = errors.New("invalid operator")
	// ErrInvalidDirection is returned for ORDER BY directions other than ASC or DESC.
	ErrInvalidDirection = errors.New("invalid sort direction")
	// ErrInvalidExpression is returned when a free-text SQL fragment carries an injection signature.
	ErrInvalidExpression = errors.New("invalid expression")
	// ErrInvalidJSONIdentifier is returned when a JSON key or path segment has an invalid shape.
	ErrInvalidJSONIdentifier = errors.New("invalid JSON identifier")
	// ErrSQLInjectionAttempt is returned when a JSON key or path segment matches a keyword or boolean injection pattern.
	ErrSQLInjectionAttempt = errors.New("SQL injection attempt")
	// ErrParameterTooLarge is returned when a bound string or byte parameter exceeds the size cap.
	ErrParameterTooLarge = errors.New("parameter too large")
	// ErrPathTooDeep is returned when a JSON path has more segments than allowed.
	ErrPathTooDeep = errors.New("JSON path too deep")
	// ErrInvalidSubquery is returned when caller-supplied statement text fails validation.
	ErrInvalidSubquery = errors.New("invalid subquery")
)

// maxReportedValue bounds how much of an offending value is echoed in messages.
const maxReportedValue = 100

// Error describes a rejected input: the kind of failure, the offending value
// and the rule it violated.
type Error struct {
	Kind  error
	Value string
	Rule  string
}

// NewError creates an Error of the given kind.
func NewError(kind error, value, rule string) *Error {
	return &Error{Kind: kind, Value: value, Rule: rule}
}

// Errorf creates an Error with a formatted rule.
func Errorf(kind error, value, format string, args ...any) *Error {
	return NewError(kind, value, fmt.Sprintf(format, args...))
}

func (e *Error) Error() string {
	if e.Value == "" {
		return e.Kind.Error() + ": " + e.Rule
	}
	value := e.Value
	if len(value) > maxReportedValue {
		value = value[:maxReportedValue] + "..."
	}
	return fmt.Sprintf("%s %q: %s", e.Kind, value, e.Rule)
}

// Unwrap returns the error kind so errors.Is matches the sentinel.
func (e *Error) Unwrap() error {
	return e.Kind
}
