package main

import (
	"github.com/spf13/cobra"

	"github.com/coregx/pgquery/internal/config"
)

var (
	// Set during PersistentPreRunE.
	cfg        *config.Config
	configPath string

	cfgFile string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pgquery",
		Short: "Parameterized PostgreSQL query tooling",
		Long: `pgquery - parameterized PostgreSQL query tooling

Validate identifiers and SQL fragments with the same rules the query builder
applies, render YAML query plans to SQL and bound parameters, and run simple
checks against the configured database.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			var err error
			cfg, configPath, err = config.Load(cfgFile)
			if err != nil {
				return configError("loading configuration", err)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: auto-discover pgquery.yaml)")

	root.AddGroup(
		&cobra.Group{ID: groupQuery, Title: "Query:"},
		&cobra.Group{ID: groupDatabase, Title: "Database:"},
		&cobra.Group{ID: groupUtility, Title: "Utility:"},
	)

	for _, c := range []*cobra.Command{newValidateCmd(), newRenderCmd()} {
		c.GroupID = groupQuery
		root.AddCommand(c)
	}
	for _, c := range []*cobra.Command{newPingCmd(), newCountCmd()} {
		c.GroupID = groupDatabase
		root.AddCommand(c)
	}
	configCmd := newConfigCmd()
	configCmd.GroupID = groupUtility
	root.AddCommand(configCmd)

	return root
}

// Command group IDs
const (
	groupQuery    = "query"
	groupDatabase = "database"
	groupUtility  = "utility"
)

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		exitWithError(err)
	}
}
