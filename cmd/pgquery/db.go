package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/coregx/pgquery/internal/core"
)

func readAll(cmd *cobra.Command) ([]byte, error) {
	return io.ReadAll(cmd.InOrStdin())
}

func openDB(cmd *cobra.Command) (*core.DB, error) {
	db, err := cfg.Open(cmd.ErrOrStderr())
	if err != nil {
		return nil, configError("opening database", err)
	}
	return db, nil
}

func newPingCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check the database connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			start := time.Now()
			if err := db.Ping(ctx); err != nil {
				return dbError("ping failed", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok (%s, %s)\n", cfg.Driver, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "ping timeout")
	return cmd
}

func newCountCmd() *cobra.Command {
	var where []string

	cmd := &cobra.Command{
		Use:   "count <table>",
		Short: "Count rows in a table",
		Example: `  pgquery count orders
  pgquery count orders --where "status = paid" --where "total > 100"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			q, err := countQuery(db.Builder(), args[0], where)
			if err != nil {
				return err
			}
			n, err := q.Count(cmd.Context())
			if err != nil {
				return dbError("count failed", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&where, "where", nil, `condition "column op value", repeatable`)
	return cmd
}

func countQuery(b *core.Builder, table string, where []string) (*core.SelectQuery, error) {
	q := b.Table(table)
	for _, w := range where {
		column, op, value, err := parseCondition(w)
		if err != nil {
			return nil, err
		}
		q = q.Where(column, op, value)
	}
	if err := q.Err(); err != nil {
		return nil, validationError("invalid count query", err)
	}
	return q, nil
}

// parseCondition splits "column op value". IS NULL and IS NOT NULL take no
// value.
func parseCondition(s string) (column, op string, value any, err error) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return "", "", nil, validationError(fmt.Sprintf("condition %q", s), fmt.Errorf("want \"column op value\""))
	}
	column = fields[0]
	rest := strings.ToUpper(strings.Join(fields[1:], " "))
	if rest == "IS NULL" || rest == "IS NOT NULL" {
		return column, rest, nil, nil
	}
	if len(fields) < 3 {
		return "", "", nil, validationError(fmt.Sprintf("condition %q", s), fmt.Errorf("missing value"))
	}
	return column, fields[1], strings.Join(fields[2:], " "), nil
}
