package core

import (
	"sort"
	"strconv"
	"strings"

	"github.com/coregx/pgquery/internal/pgsql"
	"github.com/coregx/pgquery/internal/security"
)

// The JSON helpers render jsonb expressions for use as columns in Where,
// OrderBy and GroupBy, or as Expr select items. Keys and path segments are
// validated and rendered as quoted literals, escaped exactly once.

func jsonColumn(column string) (string, error) {
	ref, err := sanitizeColumn(column)
	if err != nil {
		return "", err
	}
	return ref.name, nil
}

func jsonKey(key string) (string, error) {
	if _, err := security.ValidateJSONIdentifier(key); err != nil {
		return "", err
	}
	return pgsql.QuoteLiteral(key), nil
}

func jsonPath(path []string) (string, error) {
	if _, err := security.ValidateJSONPath(path); err != nil {
		return "", err
	}
	return pgsql.TextArrayLiteral(path), nil
}

func jsonAccess(column, op, key string) (string, error) {
	col, err := jsonColumn(column)
	if err != nil {
		return "", err
	}
	k, err := jsonKey(key)
	if err != nil {
		return "", err
	}
	return col + op + k, nil
}

func jsonPathAccess(column, op string, path []string) (string, error) {
	col, err := jsonColumn(column)
	if err != nil {
		return "", err
	}
	p, err := jsonPath(path)
	if err != nil {
		return "", err
	}
	return col + op + p, nil
}

// JSONField renders column->'field'.
func JSONField(column, field string) (string, error) {
	return jsonAccess(column, "->", field)
}

// JSONFieldAsText renders column->>'field'.
func JSONFieldAsText(column, field string) (string, error) {
	return jsonAccess(column, "->>", field)
}

// JSONPath renders column#>'{a,b}'.
func JSONPath(column string, path ...string) (string, error) {
	return jsonPathAccess(column, "#>", path)
}

// JSONPathAsText renders column#>>'{a,b}'.
func JSONPathAsText(column string, path ...string) (string, error) {
	return jsonPathAccess(column, "#>>", path)
}

// jsonbLiteral renders value as a '...'::jsonb literal.
func jsonbLiteral(value any) (string, error) {
	doc, err := jsonDocument(value)
	if err != nil {
		return "", err
	}
	if err := checkParamSize(doc); err != nil {
		return "", err
	}
	return pgsql.QuoteLiteral(doc) + "::jsonb", nil
}

// JSONBSet renders jsonb_set(column, path, value[, create_missing]).
func JSONBSet(column string, path []string, value any, createMissing bool) (string, error) {
	return jsonbPathCall("jsonb_set", column, path, value, createMissing)
}

// JSONBInsert renders jsonb_insert(column, path, value, insert_after).
func JSONBInsert(column string, path []string, value any, insertAfter bool) (string, error) {
	return jsonbPathCall("jsonb_insert", column, path, value, insertAfter)
}

func jsonbPathCall(fn, column string, path []string, value any, flag bool) (string, error) {
	col, err := jsonColumn(column)
	if err != nil {
		return "", err
	}
	p, err := jsonPath(path)
	if err != nil {
		return "", err
	}
	v, err := jsonbLiteral(value)
	if err != nil {
		return "", err
	}
	return fn + "(" + col + ", " + p + ", " + v + ", " + strings.ToUpper(strconv.FormatBool(flag)) + ")", nil
}

// JSONBDeleteKey renders column - 'key'.
func JSONBDeleteKey(column, key string) (string, error) {
	return jsonAccess(column, " - ", key)
}

// JSONBDeletePath renders column #- '{a,b}'.
func JSONBDeletePath(column string, path ...string) (string, error) {
	return jsonPathAccess(column, " #- ", path)
}

// JSONBConcat renders column || 'value'::jsonb.
func JSONBConcat(column string, value any) (string, error) {
	col, err := jsonColumn(column)
	if err != nil {
		return "", err
	}
	v, err := jsonbLiteral(value)
	if err != nil {
		return "", err
	}
	return col + " || " + v, nil
}

// JSONBBuildObject renders jsonb_build_object('key', column, ...). Keys are
// rendered in sorted order.
func JSONBBuildObject(fields map[string]string) (string, error) {
	if len(fields) == 0 {
		return "jsonb_build_object()", nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		lit, err := jsonKey(k)
		if err != nil {
			return "", err
		}
		col, err := jsonColumn(fields[k])
		if err != nil {
			return "", err
		}
		args = append(args, lit, col)
	}
	return "jsonb_build_object(" + strings.Join(args, ", ") + ")", nil
}

// JSONBBuildArray renders jsonb_build_array(column, ...).
func JSONBBuildArray(columns ...string) (string, error) {
	cols := make([]string, len(columns))
	for i, c := range columns {
		col, err := jsonColumn(c)
		if err != nil {
			return "", err
		}
		cols[i] = col
	}
	return "jsonb_build_array(" + strings.Join(cols, ", ") + ")", nil
}

// JSONBObjectKeys renders jsonb_object_keys(column).
func JSONBObjectKeys(column string) (string, error) {
	col, err := jsonColumn(column)
	if err != nil {
		return "", err
	}
	return "jsonb_object_keys(" + col + ")", nil
}

// JSONBTypeof renders jsonb_typeof(column), or jsonb_typeof(column#>path)
// when a path is given.
func JSONBTypeof(column string, path ...string) (string, error) {
	return jsonbUnary("jsonb_typeof", column, path)
}

// JSONBArrayLength renders jsonb_array_length(column[#>path]).
func JSONBArrayLength(column string, path ...string) (string, error) {
	return jsonbUnary("jsonb_array_length", column, path)
}

func jsonbUnary(fn, column string, path []string) (string, error) {
	if len(path) == 0 {
		col, err := jsonColumn(column)
		if err != nil {
			return "", err
		}
		return fn + "(" + col + ")", nil
	}
	arg, err := jsonPathAccess(column, "#>", path)
	if err != nil {
		return "", err
	}
	return fn + "(" + arg + ")", nil
}
