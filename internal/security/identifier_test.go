package security

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize_Accepts(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		allowComplex bool
		want         string
	}{
		{name: "bare", input: "users", want: "users"},
		{name: "qualified", input: "users.id", want: "users.id"},
		{name: "leading underscore", input: "_internal", want: "_internal"},
		{name: "max length segment", input: strings.Repeat("a", 63), want: strings.Repeat("a", 63)},
		{name: "space needs quoting", input: "user name", want: `"user name"`},
		{name: "embedded quote doubled", input: `my"col`, want: `"my""col"`},
		{name: "dotted but not qualified shape", input: "a.b.c", want: `"a.b.c"`},
		{name: "leading digit", input: "1st_place", want: `"1st_place"`},
		{name: "unicode", input: "größe", want: `"größe"`},
		{name: "subquery fragment", input: "(SELECT id FROM admins)", want: "(SELECT id FROM admins)"},
		{name: "json accessor", input: "data->>'name'", allowComplex: true, want: "data->>'name'"},
		{name: "json path", input: "data#>'{a,b}'", allowComplex: true, want: "data#>'{a,b}'"},
		{name: "window expression", input: "ROW_NUMBER() OVER (PARTITION BY dept)", allowComplex: true, want: "ROW_NUMBER() OVER (PARTITION BY dept)"},
		{name: "complex flag skips fast path", input: "users", allowComplex: true, want: "users"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sanitize(tt.input, tt.allowComplex)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitize_Rejects(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		allowComplex bool
		wantRule     string
	}{
		{name: "empty", input: "", wantRule: "cannot be empty"},
		{name: "whitespace", input: "   ", wantRule: "cannot be empty"},
		{name: "segment too long", input: strings.Repeat("a", 64), wantRule: "exceeds 63 bytes"},
		{name: "qualified segment too long", input: "t." + strings.Repeat("c", 64), wantRule: "exceeds 63 bytes"},
		{name: "quoted too long", input: strings.Repeat("a b", 22), wantRule: "exceeds 63 bytes"},
		{name: "stacked statement", input: "id; DROP TABLE users", wantRule: "statement separator"},
		{name: "line comment", input: "id -- trailing", wantRule: "comment marker"},
		{name: "block comment", input: "id /* x */", wantRule: "block comment"},
		{name: "backslash", input: `id\x`, wantRule: "unescaped backslash"},
		{name: "quote boolean", input: "name' OR '1'='1", wantRule: "quote followed by"},
		{name: "keyword in alias", input: "x DROP TABLE users", wantRule: "statement keyword"},
		{name: "union smuggled in name", input: "id UNION SELECT password", wantRule: "statement keyword"},
		{name: "subquery with stacked statement", input: "(SELECT 1); DROP TABLE x", wantRule: "statement separator"},
		{name: "complex with tautology", input: "data->>'x' OR '1'='1'", allowComplex: true, wantRule: "quote followed by"},
		{name: "complex with keyword", input: "data->>(DELETE)", allowComplex: true, wantRule: "statement keyword"},
		{name: "nul byte", input: "id\x00", wantRule: "NUL byte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sanitize(tt.input, tt.allowComplex)
			require.Error(t, err)
			assert.Empty(t, got)
			assert.True(t, errors.Is(err, ErrInvalidIdentifier), "want ErrInvalidIdentifier, got %v", err)
			assert.Contains(t, err.Error(), tt.wantRule)
		})
	}
}

func TestSanitizeName_RejectsSubquery(t *testing.T) {
	_, err := SanitizeName("(SELECT 1)")
	require.ErrorIs(t, err, ErrInvalidIdentifier)

	got, err := SanitizeName("orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", got)
}

func TestIdentifierShapes(t *testing.T) {
	assert.True(t, IsQualifiedName("users.id"))
	assert.False(t, IsQualifiedName("id"))
	assert.False(t, IsQualifiedName("a.b.c"))
	assert.True(t, IsBareName("id"))
	assert.False(t, IsBareName("users.id"))
	assert.False(t, IsBareName("user name"))
}

func TestIsComplexExpression(t *testing.T) {
	exprs := []string{
		"data->'a'", "data->>'a'", "data#>'{a}'", "data#-'{a}'", "tags ? 'x'",
		"a || b", "jsonb_set(data)", "x::jsonb", "arr[1]", "data @> '{}'",
		"COUNT(*)",
	}
	for _, s := range exprs {
		assert.True(t, IsComplexExpression(s), s)
	}
	for _, s := range []string{"id", "users.id", "user name"} {
		assert.False(t, IsComplexExpression(s), s)
	}
}

func TestError_Message(t *testing.T) {
	err := NewError(ErrInvalidIdentifier, "bad;name", "statement separator ';' is not allowed")
	assert.Equal(t, `invalid identifier "bad;name": statement separator ';' is not allowed`, err.Error())

	long := Errorf(ErrInvalidExpression, strings.Repeat("x", 150), "too %s", "long")
	assert.Contains(t, long.Error(), strings.Repeat("x", 100)+"...")
	assert.NotContains(t, long.Error(), strings.Repeat("x", 101))

	assert.Equal(t, "invalid JSON identifier: JSON path must have at least one segment",
		NewError(ErrInvalidJSONIdentifier, "", "JSON path must have at least one segment").Error())

	var secErr *Error
	require.True(t, errors.As(error(err), &secErr))
	assert.Equal(t, "bad;name", secErr.Value)
}
