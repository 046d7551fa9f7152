package core

import (
	"reflect"
	"strings"

	"github.com/coregx/pgquery/internal/pgsql"
	"github.com/coregx/pgquery/internal/security"
)

// fragment is a piece of SQL whose placeholders are numbered locally, $1 to
// $len(args). Clauses store fragments and are numbered only when rendered.
type fragment struct {
	sql  string
	args []any
}

// render numbers the fragment starting at next and returns the placeholder
// number that follows it.
func (f fragment) render(next int) (string, []any, int) {
	return pgsql.Renumber(f.sql, next-1), f.args, next + len(f.args)
}

func (f fragment) clone() fragment {
	return fragment{sql: f.sql, args: cloneArgs(f.args)}
}

// fragmentWriter assembles a fragment, allocating local placeholders as
// parameters are bound.
type fragmentWriter struct {
	b    strings.Builder
	args []any
}

func (w *fragmentWriter) sql(s string) *fragmentWriter {
	w.b.WriteString(s)
	return w
}

func (w *fragmentWriter) bind(v any) *fragmentWriter {
	w.args = append(w.args, v)
	w.b.WriteString(pgsql.Placeholder(len(w.args)))
	return w
}

func (w *fragmentWriter) fragment() fragment {
	return fragment{sql: w.b.String(), args: w.args}
}

func cloneArgs(args []any) []any {
	if args == nil {
		return nil
	}
	out := make([]any, len(args))
	copy(out, args)
	return out
}

// checkParamSize rejects string and byte parameters larger than
// MaxParameterSize, looking inside slices and arrays.
func checkParamSize(v any) error {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		if len(x) > MaxParameterSize {
			return invalidf(security.ErrParameterTooLarge, x[:32],
				"string parameter of %d bytes exceeds %d bytes", len(x), MaxParameterSize)
		}
		return nil
	case []byte:
		if len(x) > MaxParameterSize {
			return invalidf(security.ErrParameterTooLarge, "",
				"byte parameter of %d bytes exceeds %d bytes", len(x), MaxParameterSize)
		}
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return checkParamSize(rv.String())
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := checkParamSize(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
	}
	return nil
}

// expandSlice returns the elements of a slice or array value. Byte slices,
// json.RawMessage included, are scalars and are not expanded.
func expandSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
