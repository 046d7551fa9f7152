package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/coregx/pgquery/internal/core"
)

// plan is a SELECT described in YAML.
type plan struct {
	Table      string      `json:"table"`
	Alias      string      `json:"alias,omitempty"`
	Distinct   bool        `json:"distinct,omitempty"`
	IgnoreCase bool        `json:"ignore_case,omitempty"`
	Select     []string    `json:"select,omitempty"`
	Joins      []planJoin  `json:"joins,omitempty"`
	Where      []planCond  `json:"where,omitempty"`
	GroupBy    []string    `json:"group_by,omitempty"`
	Having     []planCond  `json:"having,omitempty"`
	OrderBy    []planOrder `json:"order_by,omitempty"`
	Limit      *int        `json:"limit,omitempty"`
	Offset     *int        `json:"offset,omitempty"`
}

type planJoin struct {
	Type  string `json:"type,omitempty"`
	Table string `json:"table"`
	Left  string `json:"left"`
	Right string `json:"right"`
	Alias string `json:"alias,omitempty"`
}

type planCond struct {
	Column string `json:"column"`
	Op     string `json:"op"`
	Value  any    `json:"value,omitempty"`
	Or     bool   `json:"or,omitempty"`
}

type planOrder struct {
	Column    string `json:"column"`
	Direction string `json:"direction,omitempty"`
}

// rendered is the output of the render command.
type rendered struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

func parsePlan(data []byte) (*plan, error) {
	var p plan
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return nil, err
	}
	if p.Table == "" {
		return nil, fmt.Errorf("plan: table is required")
	}
	return &p, nil
}

// build applies p to a builder. Validation errors stay on the query.
func (p *plan) build(b *core.Builder) *core.SelectQuery {
	var q *core.SelectQuery
	if p.Alias != "" {
		q = b.TableAs(p.Table, p.Alias)
	} else {
		q = b.Table(p.Table)
	}

	if p.Distinct {
		q = q.Distinct()
	}
	if p.IgnoreCase {
		q = q.IgnoreCase()
	}
	if len(p.Select) > 0 {
		q = q.Select(p.Select...)
	}
	for _, j := range p.Joins {
		kind := j.Type
		if kind == "" {
			kind = "INNER"
		}
		q = q.JoinOn(kind, j.Table, []core.JoinCondition{core.On(j.Left, j.Right)}, j.Alias)
	}
	for _, c := range p.Where {
		if c.Or {
			q = q.OrWhere(c.Column, c.Op, c.Value)
		} else {
			q = q.Where(c.Column, c.Op, c.Value)
		}
	}
	if len(p.GroupBy) > 0 {
		q = q.GroupBy(p.GroupBy...)
	}
	for _, c := range p.Having {
		if c.Or {
			q = q.OrHaving(c.Column, c.Op, c.Value)
		} else {
			q = q.Having(c.Column, c.Op, c.Value)
		}
	}
	for _, o := range p.OrderBy {
		q = q.OrderBy(o.Column, o.Direction)
	}
	if p.Limit != nil {
		q = q.Limit(*p.Limit)
	}
	if p.Offset != nil {
		q = q.Offset(*p.Offset)
	}
	return q
}

func renderPlan(data []byte, b *core.Builder) (*rendered, error) {
	p, err := parsePlan(data)
	if err != nil {
		return nil, err
	}
	sql, params, err := p.build(b).ToSQL()
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = []any{}
	}
	return &rendered{SQL: sql, Params: params}, nil
}

func newRenderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render <plan.yaml>",
		Short: "Render a YAML query plan to SQL and parameters",
		Long: `Render a YAML query plan to parameterized PostgreSQL.
Use - to read the plan from standard input. Table schemas from the
configuration apply to GROUP BY and ORDER BY checks.`,
		Example: `  # plan.yaml
  table: orders
  select: [user_id]
  where:
    - {column: status, op: "=", value: paid}
  group_by: [user_id]
  order_by:
    - {column: user_id, direction: desc}
  limit: 10

  pgquery render plan.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = readAll(cmd)
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			b := core.NewBuilder(nil)
			for table, columns := range cfg.Schemas {
				b = b.WithSchema(table, columns...)
			}

			out, err := renderPlan(data, b)
			if err != nil {
				return validationError("rendering plan", err)
			}
			text, err := yaml.Marshal(out)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(text))
			return nil
		},
	}
}
