package core

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/coregx/pgquery/internal/pgsql"
	"github.com/coregx/pgquery/internal/security"
)

// MaxBindParameters is PostgreSQL's limit on parameters in one statement.
const MaxBindParameters = 65535

// mutationColumn sanitizes a column named in an INSERT list, SET clause,
// conflict target or RETURNING list. Those positions take unqualified names.
func mutationColumn(name string) (string, error) {
	if strings.Contains(name, ".") {
		return "", invalid(security.ErrInvalidIdentifier, name, "qualified names are not allowed in a mutation column list")
	}
	return security.SanitizeName(name)
}

func mutationColumns(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		c, err := mutationColumn(n)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func returningList(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		if n == "*" {
			out[i] = n
			continue
		}
		c, err := mutationColumn(n)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// InsertQuery is an immutable INSERT under construction.
type InsertQuery struct {
	exec      Executor
	table     string
	columns   []string
	names     []string // columns as given, for ValuesMap
	rows      [][]any
	returning []string
	err       error
}

// Insert starts a single-row INSERT. Columns are rendered in sorted order.
//
//	b.Insert("users", map[string]any{"name": "ann", "email": "ann@example.com"})
//	// INSERT INTO users (email, name) VALUES ($1, $2)
func (b *Builder) Insert(table string, values map[string]any) *InsertQuery {
	keys := sortedKeys(values)
	q := b.BatchInsert(table, keys...)
	if len(keys) == 0 && q.err == nil {
		q.err = invalid(ErrInvalidValue, "", "insert requires at least one column")
		return q
	}
	return q.ValuesMap(values)
}

// BatchInsert starts a multi-row INSERT into the given columns. Rows are
// added with Values or ValuesMap.
func (b *Builder) BatchInsert(table string, columns ...string) *InsertQuery {
	q := &InsertQuery{exec: b.exec}
	t, err := security.SanitizeName(table)
	if err != nil {
		q.err = err
		return q
	}
	cols, err := mutationColumns(columns)
	if err != nil {
		q.err = err
		return q
	}
	q.table, q.columns, q.names = t, cols, slices.Clone(columns)
	return q
}

func (q *InsertQuery) clone() *InsertQuery {
	n := *q
	n.columns = slices.Clone(q.columns)
	n.names = slices.Clone(q.names)
	n.rows = slices.Clone(q.rows)
	n.returning = slices.Clone(q.returning)
	return &n
}

func (q *InsertQuery) apply(fn func(n *InsertQuery) error) *InsertQuery {
	if q.err != nil {
		return q
	}
	n := q.clone()
	if err := fn(n); err != nil {
		failed := q.clone()
		failed.err = err
		return failed
	}
	return n
}

// Values adds a row. There must be one value per column.
func (q *InsertQuery) Values(values ...any) *InsertQuery {
	return q.apply(func(n *InsertQuery) error {
		if len(values) != len(n.columns) {
			return invalidf(ErrInvalidValue, describe(values), "expected %d values, got %d", len(n.columns), len(values))
		}
		if (len(n.rows)+1)*len(n.columns) > MaxBindParameters {
			return invalidf(ErrInvalidValue, "", "insert exceeds %d parameters", MaxBindParameters)
		}
		for _, v := range values {
			if err := checkParamSize(v); err != nil {
				return err
			}
		}
		n.rows = append(n.rows, cloneArgs(values))
		return nil
	})
}

// ValuesMap adds a row taken from values in column order. Missing columns
// are bound as NULL.
func (q *InsertQuery) ValuesMap(values map[string]any) *InsertQuery {
	if q.err != nil {
		return q
	}
	row := make([]any, len(q.names))
	for i, c := range q.names {
		row[i] = values[c]
	}
	return q.Values(row...)
}

// Returning appends a RETURNING clause. "*" returns every column.
func (q *InsertQuery) Returning(columns ...string) *InsertQuery {
	return q.apply(func(n *InsertQuery) error {
		cols, err := returningList(columns)
		if err != nil {
			return err
		}
		n.returning = append(n.returning, cols...)
		return nil
	})
}

// Err returns the validation error carried by the query, if any.
func (q *InsertQuery) Err() error {
	return q.err
}

func (q *InsertQuery) fragment() (fragment, error) {
	if q.err != nil {
		return fragment{}, q.err
	}
	if len(q.rows) == 0 {
		return fragment{}, invalid(ErrInvalidValue, q.table, "insert requires at least one row")
	}

	w := &fragmentWriter{}
	w.sql("INSERT INTO " + q.table + " (" + strings.Join(q.columns, ", ") + ") VALUES ")
	for i, row := range q.rows {
		if i > 0 {
			w.sql(", ")
		}
		w.sql("(")
		for j, v := range row {
			if j > 0 {
				w.sql(", ")
			}
			w.bind(v)
		}
		w.sql(")")
	}
	return w.fragment(), nil
}

// ToSQL renders the statement and its parameters.
func (q *InsertQuery) ToSQL() (string, []any, error) {
	f, err := q.fragment()
	if err != nil {
		return "", nil, err
	}
	return f.sql + renderReturning(q.returning), f.args, nil
}

// Execute runs the INSERT. Rows holds the RETURNING rows, if any.
func (q *InsertQuery) Execute(ctx context.Context) (*Result, error) {
	sql, args, err := q.ToSQL()
	return runStatement(ctx, q.exec, OpInsert, sql, args, err)
}

func renderReturning(cols []string) string {
	if len(cols) == 0 {
		return ""
	}
	return " RETURNING " + strings.Join(cols, ", ")
}

// UpsertQuery is an INSERT ... ON CONFLICT under construction.
type UpsertQuery struct {
	insert    *InsertQuery
	conflict  []string
	update    []string
	doNothing bool
	err       error
}

// Upsert starts a single-row INSERT with conflict resolution. Without
// OnConflict the statement ends in ON CONFLICT DO NOTHING; with it, the
// non-conflict columns are updated from EXCLUDED unless DoUpdate or
// DoNothing says otherwise.
func (b *Builder) Upsert(table string, values map[string]any) *UpsertQuery {
	ins := b.Insert(table, values)
	return &UpsertQuery{insert: ins, err: ins.err}
}

func (q *UpsertQuery) apply(fn func(n *UpsertQuery) error) *UpsertQuery {
	if q.err != nil {
		return q
	}
	n := *q
	n.conflict = slices.Clone(q.conflict)
	n.update = slices.Clone(q.update)
	if err := fn(&n); err != nil {
		failed := *q
		failed.err = err
		return &failed
	}
	return &n
}

// OnConflict sets the conflict target columns.
func (q *UpsertQuery) OnConflict(columns ...string) *UpsertQuery {
	return q.apply(func(n *UpsertQuery) error {
		cols, err := mutationColumns(columns)
		if err != nil {
			return err
		}
		n.conflict = cols
		return nil
	})
}

// DoUpdate sets the columns updated from EXCLUDED on conflict.
func (q *UpsertQuery) DoUpdate(columns ...string) *UpsertQuery {
	return q.apply(func(n *UpsertQuery) error {
		cols, err := mutationColumns(columns)
		if err != nil {
			return err
		}
		n.update, n.doNothing = cols, false
		return nil
	})
}

// DoNothing ignores conflicting rows.
func (q *UpsertQuery) DoNothing() *UpsertQuery {
	return q.apply(func(n *UpsertQuery) error {
		n.update, n.doNothing = nil, true
		return nil
	})
}

// Returning appends a RETURNING clause.
func (q *UpsertQuery) Returning(columns ...string) *UpsertQuery {
	if q.err != nil {
		return q
	}
	ins := q.insert.Returning(columns...)
	n := *q
	n.insert, n.err = ins, ins.err
	return &n
}

// Err returns the validation error carried by the query, if any.
func (q *UpsertQuery) Err() error {
	return q.err
}

// ToSQL renders the statement and its parameters.
func (q *UpsertQuery) ToSQL() (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	f, err := q.insert.fragment()
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString(f.sql)
	b.WriteString(" ON CONFLICT")
	if len(q.conflict) > 0 {
		b.WriteString(" (" + strings.Join(q.conflict, ", ") + ")")
	}

	update := q.update
	if len(update) == 0 && !q.doNothing && len(q.conflict) > 0 {
		for _, c := range q.insert.columns {
			if !slices.Contains(q.conflict, c) {
				update = append(update, c)
			}
		}
	}
	if q.doNothing || len(update) == 0 {
		b.WriteString(" DO NOTHING")
	} else {
		if len(q.conflict) == 0 {
			return "", nil, invalid(ErrInvalidValue, "", "DO UPDATE requires OnConflict columns")
		}
		sets := make([]string, len(update))
		for i, c := range update {
			sets[i] = c + " = EXCLUDED." + c
		}
		b.WriteString(" DO UPDATE SET " + strings.Join(sets, ", "))
	}
	b.WriteString(renderReturning(q.insert.returning))
	return b.String(), f.args, nil
}

// Execute runs the upsert.
func (q *UpsertQuery) Execute(ctx context.Context) (*Result, error) {
	sql, args, err := q.ToSQL()
	return runStatement(ctx, q.insert.exec, OpUpsert, sql, args, err)
}

// whereClause holds the conditions of an UPDATE or DELETE. Mutations have a
// single table, so columns are never qualified.
type whereClause []condition

func (w whereClause) add(glue, column, operator string, value any) (whereClause, error) {
	if len(w) >= MaxWhereConditions {
		return nil, invalidf(ErrTooManyWhereConditions, "", "at most %d conditions are allowed", MaxWhereConditions)
	}
	ref, err := sanitizeColumn(column)
	if err != nil {
		return nil, err
	}
	tail, err := predicate(operator, value, false)
	if err != nil {
		return nil, err
	}
	return append(slices.Clone(w), condition{glue: glue, column: ref, tail: tail}), nil
}

func (w whereClause) render(next int) (string, []any, int) {
	return renderConditions(w, next, func(c columnRef) string { return c.name })
}

// UpdateQuery is an immutable UPDATE under construction.
type UpdateQuery struct {
	exec      Executor
	table     string
	sets      []setTerm
	where     whereClause
	returning []string
	err       error
}

type setTerm struct {
	column string
	value  fragment
}

// Update starts an UPDATE. Set and Where are both required.
func (b *Builder) Update(table string) *UpdateQuery {
	q := &UpdateQuery{exec: b.exec}
	t, err := security.SanitizeName(table)
	if err != nil {
		q.err = err
		return q
	}
	q.table = t
	return q
}

func (q *UpdateQuery) apply(fn func(n *UpdateQuery) error) *UpdateQuery {
	if q.err != nil {
		return q
	}
	n := *q
	n.sets = slices.Clone(q.sets)
	n.returning = slices.Clone(q.returning)
	if err := fn(&n); err != nil {
		failed := *q
		failed.err = err
		return &failed
	}
	return &n
}

// Set assigns values to columns, rendered in sorted column order. A column
// set twice keeps its last value.
func (q *UpdateQuery) Set(values map[string]any) *UpdateQuery {
	return q.apply(func(n *UpdateQuery) error {
		for _, k := range sortedKeys(values) {
			col, err := mutationColumn(k)
			if err != nil {
				return err
			}
			if err := checkParamSize(values[k]); err != nil {
				return err
			}
			w := &fragmentWriter{}
			n.setColumn(col, w.bind(values[k]).fragment())
		}
		return nil
	})
}

// SetExpr assigns an expression to column. The expression numbers its own
// parameters from $1.
//
//	b.Update("posts").SetExpr("views", "views + $1", 1).Where("id", "=", 7)
//	// UPDATE posts SET views = views + $1 WHERE id = $2
func (q *UpdateQuery) SetExpr(column, expr string, params ...any) *UpdateQuery {
	return q.apply(func(n *UpdateQuery) error {
		col, err := mutationColumn(column)
		if err != nil {
			return err
		}
		if err := security.ValidateExpression(expr); err != nil {
			return err
		}
		if used := pgsql.MaxPlaceholder(expr); used != len(params) {
			return invalidf(ErrInvalidValue, expr, "expression uses %d placeholders but %d params were given", used, len(params))
		}
		for _, p := range params {
			if err := checkParamSize(p); err != nil {
				return err
			}
		}
		n.setColumn(col, fragment{sql: expr, args: cloneArgs(params)})
		return nil
	})
}

func (q *UpdateQuery) setColumn(col string, value fragment) {
	for i, s := range q.sets {
		if s.column == col {
			q.sets[i].value = value
			return
		}
	}
	q.sets = append(q.sets, setTerm{column: col, value: value})
}

// Where adds a condition joined with AND.
func (q *UpdateQuery) Where(column, operator string, value any) *UpdateQuery {
	return q.addWhere("AND", column, operator, value)
}

// OrWhere adds a condition joined with OR.
func (q *UpdateQuery) OrWhere(column, operator string, value any) *UpdateQuery {
	return q.addWhere("OR", column, operator, value)
}

func (q *UpdateQuery) addWhere(glue, column, operator string, value any) *UpdateQuery {
	return q.apply(func(n *UpdateQuery) error {
		w, err := n.where.add(glue, column, operator, value)
		if err != nil {
			return err
		}
		n.where = w
		return nil
	})
}

// Returning appends a RETURNING clause.
func (q *UpdateQuery) Returning(columns ...string) *UpdateQuery {
	return q.apply(func(n *UpdateQuery) error {
		cols, err := returningList(columns)
		if err != nil {
			return err
		}
		n.returning = append(n.returning, cols...)
		return nil
	})
}

// Err returns the validation error carried by the query, if any.
func (q *UpdateQuery) Err() error {
	return q.err
}

// ToSQL renders the statement and its parameters. It fails with
// ErrEmptySetClause or ErrEmptyWhereOnMutation when Set or Where is missing.
func (q *UpdateQuery) ToSQL() (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	if len(q.sets) == 0 {
		return "", nil, invalid(ErrEmptySetClause, q.table, "update requires at least one column")
	}
	if len(q.where) == 0 {
		return "", nil, invalid(ErrEmptyWhereOnMutation, q.table, "update requires a WHERE condition")
	}

	var (
		b    strings.Builder
		args []any
		next = 1
	)
	b.WriteString("UPDATE " + q.table + " SET ")
	for i, s := range q.sets {
		if i > 0 {
			b.WriteString(", ")
		}
		sql, a, n := s.value.render(next)
		b.WriteString(s.column + " = " + sql)
		args = append(args, a...)
		next = n
	}

	sql, a, _ := q.where.render(next)
	b.WriteString(" WHERE " + sql)
	args = append(args, a...)
	b.WriteString(renderReturning(q.returning))
	return b.String(), args, nil
}

// Execute runs the UPDATE.
func (q *UpdateQuery) Execute(ctx context.Context) (*Result, error) {
	sql, args, err := q.ToSQL()
	return runStatement(ctx, q.exec, OpUpdate, sql, args, err)
}

// DeleteQuery is an immutable DELETE under construction.
type DeleteQuery struct {
	exec      Executor
	table     string
	where     whereClause
	returning []string
	err       error
}

// Delete starts a DELETE. At least one Where condition is required.
func (b *Builder) Delete(table string) *DeleteQuery {
	q := &DeleteQuery{exec: b.exec}
	t, err := security.SanitizeName(table)
	if err != nil {
		q.err = err
		return q
	}
	q.table = t
	return q
}

func (q *DeleteQuery) apply(fn func(n *DeleteQuery) error) *DeleteQuery {
	if q.err != nil {
		return q
	}
	n := *q
	n.returning = slices.Clone(q.returning)
	if err := fn(&n); err != nil {
		failed := *q
		failed.err = err
		return &failed
	}
	return &n
}

// Where adds a condition joined with AND.
func (q *DeleteQuery) Where(column, operator string, value any) *DeleteQuery {
	return q.addWhere("AND", column, operator, value)
}

// OrWhere adds a condition joined with OR.
func (q *DeleteQuery) OrWhere(column, operator string, value any) *DeleteQuery {
	return q.addWhere("OR", column, operator, value)
}

func (q *DeleteQuery) addWhere(glue, column, operator string, value any) *DeleteQuery {
	return q.apply(func(n *DeleteQuery) error {
		w, err := n.where.add(glue, column, operator, value)
		if err != nil {
			return err
		}
		n.where = w
		return nil
	})
}

// Returning appends a RETURNING clause.
func (q *DeleteQuery) Returning(columns ...string) *DeleteQuery {
	return q.apply(func(n *DeleteQuery) error {
		cols, err := returningList(columns)
		if err != nil {
			return err
		}
		n.returning = append(n.returning, cols...)
		return nil
	})
}

// Err returns the validation error carried by the query, if any.
func (q *DeleteQuery) Err() error {
	return q.err
}

// ToSQL renders the statement and its parameters.
func (q *DeleteQuery) ToSQL() (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	if len(q.where) == 0 {
		return "", nil, invalid(ErrEmptyWhereOnMutation, q.table, "delete requires a WHERE condition")
	}
	sql, args, _ := q.where.render(1)
	return "DELETE FROM " + q.table + " WHERE " + sql + renderReturning(q.returning), args, nil
}

// Execute runs the DELETE.
func (q *DeleteQuery) Execute(ctx context.Context) (*Result, error) {
	sql, args, err := q.ToSQL()
	return runStatement(ctx, q.exec, OpDelete, sql, args, err)
}
