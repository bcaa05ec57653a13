package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/pricehub/internal/cli/config"
	"github.com/rustyeddy/pricehub/internal/cli/feed"
	"github.com/rustyeddy/pricehub/internal/cli/formulas"
	"github.com/rustyeddy/pricehub/internal/cli/serve"
	"github.com/rustyeddy/pricehub/internal/cli/sessions"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

func NewRootCmd() *cobra.Command {
	rc := &config.RootConfig{}

	cmd := &cobra.Command{
		Use:           "pricehub",
		Short:         "Stream live and synthetic quotes to line-protocol subscribers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global / persistent flags
	cmd.PersistentFlags().StringVar(&rc.ConfigPath, "config", "", "Path to config file (optional)")
	cmd.PersistentFlags().StringVar(&rc.LogLevel, "log-level", "", "Log level: debug|info|warn|error (default from config)")
	cmd.PersistentFlags().StringVar(&rc.LogFormat, "log-format", "", "Log format: json|console (default from config)")

	// Subcommands
	cmd.AddCommand(
		serve.New(rc),
		formulas.New(rc),
		config.New(rc),
		feed.New(rc),
		sessions.New(rc),
	)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pricehub %s\n", Version)
		},
	})

	return cmd
}

func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
