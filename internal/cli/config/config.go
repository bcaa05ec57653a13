package config

import (
	"fmt"

	"github.com/spf13/cobra"

	hubconfig "github.com/rustyeddy/pricehub/config"
)

func New(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
		Long: `Manage hub configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  pricehub config init --output pricehub.yaml
  pricehub config validate --file pricehub.yaml`,
	}
	cmd.AddCommand(newInitCmd(), newValidateCmd())
	return cmd
}

func newInitCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := hubconfig.Default()
			if err := cfg.SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Created default configuration: %s\n", output)
			fmt.Fprintln(out, "\nEdit the file and run with:")
			fmt.Fprintf(out, "  pricehub serve --config %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "pricehub.yaml", "output config file path")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := hubconfig.LoadFromFile(path)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Configuration valid: %s\n", path)
			fmt.Fprintf(out, "  Listen:   %s (tick %s)\n", cfg.Listen, cfg.Tick)
			fmt.Fprintf(out, "  Formulas: %s\n", cfg.Formulas)
			switch cfg.Table.Source {
			case hubconfig.SourceReplay:
				fmt.Fprintf(out, "  Table:    replay %s\n", cfg.Table.ReplayFile)
			default:
				fmt.Fprintf(out, "  Table:    shm %s\n", cfg.Table.SHMPath)
			}
			if cfg.Journal.DBPath != "" {
				fmt.Fprintf(out, "  Journal:  %s\n", cfg.Journal.DBPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
