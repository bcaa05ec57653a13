package serve

import (
	"github.com/spf13/cobra"

	hubconfig "github.com/rustyeddy/pricehub/config"
	"github.com/rustyeddy/pricehub/internal/app"
	"github.com/rustyeddy/pricehub/internal/cli/config"
)

func New(rc *config.RootConfig) *cobra.Command {
	var (
		listen      string
		tick        string
		formulas    string
		shmPath     string
		replayFile  string
		journalPath string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the price distribution hub",
		Long: `Read base quotes from the shared price table, evaluate synthetic
instruments and stream changed prices to every connected subscriber.

Send SIGHUP to reload the formula file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := rc.Setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			// Flags override the config file.
			f := cmd.Flags()
			if f.Changed("listen") {
				cfg.Listen = listen
			}
			if f.Changed("tick") {
				cfg.Tick = tick
			}
			if f.Changed("formulas") {
				cfg.Formulas = formulas
			}
			if f.Changed("shm") {
				cfg.Table.Source = hubconfig.SourceSHM
				cfg.Table.SHMPath = shmPath
			}
			if f.Changed("replay") {
				cfg.Table.Source = hubconfig.SourceReplay
				cfg.Table.ReplayFile = replayFile
			}
			if f.Changed("journal") {
				cfg.Journal.DBPath = journalPath
			}
			if f.Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}

			return app.Run(cmd.Context(), cfg, log)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "subscriber listen address (default from config, :2222)")
	cmd.Flags().StringVar(&tick, "tick", "", "broadcast period, e.g. 100ms")
	cmd.Flags().StringVar(&formulas, "formulas", "", "synthetic instrument formula file")
	cmd.Flags().StringVar(&shmPath, "shm", "", "read quotes from this shared-memory segment")
	cmd.Flags().StringVar(&replayFile, "replay", "", "feed quotes from this tick CSV instead of shared memory")
	cmd.Flags().StringVar(&journalPath, "journal", "", "SQLite session journal (empty disables)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.MarkFlagsMutuallyExclusive("shm", "replay")
	return cmd
}
