package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coregx/pgquery/internal/pgsql"
	"github.com/coregx/pgquery/internal/security"
)

func newValidateCmd() *cobra.Command {
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check input against the injection rules",
		Long: `Check a value with the same validators the query builder applies.
On success the normalized or rendered form is printed.`,
	}

	var complexIdent bool
	identCmd := &cobra.Command{
		Use:   "identifier <name>",
		Short: "Validate a table or column identifier",
		Example: `  pgquery validate identifier users.email
  pgquery validate identifier --complex "data->>'name'"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := security.Sanitize(args[0], complexIdent)
			return report(cmd, out, err)
		},
	}
	identCmd.Flags().BoolVar(&complexIdent, "complex", false, "accept expression fragments such as JSON accessors")

	exprCmd := &cobra.Command{
		Use:   "expression <sql>",
		Short: "Validate a free-text SQL fragment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := security.ValidateExpression(args[0])
			return report(cmd, args[0], err)
		},
	}

	jsonCmd := &cobra.Command{
		Use:   "json <segment>...",
		Short: "Validate JSON keys and print the rendered path literal",
		Example: `  pgquery validate json address city
  # '{address,city}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			segments, err := security.ValidateJSONPath(args)
			if err != nil {
				return report(cmd, "", err)
			}
			return report(cmd, pgsql.TextArrayLiteral(segments), nil)
		},
	}

	opCmd := &cobra.Command{
		Use:   "operator <op>",
		Short: "Validate a WHERE/HAVING operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := security.NormalizeOperator(args[0])
			return report(cmd, out, err)
		},
	}

	dirCmd := &cobra.Command{
		Use:   "direction <dir>",
		Short: "Validate an ORDER BY direction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := security.NormalizeDirection(args[0])
			return report(cmd, out, err)
		},
	}

	validateCmd.AddCommand(identCmd, exprCmd, jsonCmd, opCmd, dirCmd)
	return validateCmd
}

func report(cmd *cobra.Command, out string, err error) error {
	if err != nil {
		return validationError("rejected", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
