package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

func newConfigCmd() *cobra.Command {
	var showSource bool

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  `Show the effective configuration after merging defaults, config file, and environment variables. Passwords are masked.`,
		Example: `  # Show effective configuration
  pgquery config show

  # Include the config file path
  pgquery config show --source`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if showSource {
				if configPath != "" {
					fmt.Fprintf(out, "Config file: %s\n\n", configPath)
				} else {
					fmt.Fprint(out, "Config file: (none, using defaults)\n\n")
				}
			}

			b, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return err
			}
			fmt.Fprint(out, string(b))
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showSource, "source", false, "show config file source")

	configCmd.AddCommand(showCmd)
	return configCmd
}
