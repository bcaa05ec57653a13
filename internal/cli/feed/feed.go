package feed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/pricehub/internal/cli/config"
	"github.com/rustyeddy/pricehub/pricing"
	"github.com/rustyeddy/pricehub/replay"
)

func New(rc *config.RootConfig) *cobra.Command {
	var (
		shmPath  string
		interval time.Duration
		loop     bool
		keep     bool
	)

	cmd := &cobra.Command{
		Use:   "feed <ticks.csv>",
		Short: "Replay a tick CSV into the shared price table",
		Long: `Act as a development market-data producer: create the shared-memory
price table and write the quotes of a tick CSV (time,instrument,bid,ask)
into it at a fixed pace.

The segment is removed on exit unless --keep is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := rc.Setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if !cmd.Flags().Changed("shm") {
				shmPath = cfg.Table.SHMPath
			}
			if !cmd.Flags().Changed("interval") {
				if interval, err = cfg.Table.ReplayEvery(); err != nil {
					return err
				}
			}
			if loop && interval <= 0 {
				return fmt.Errorf("--loop needs a positive --interval")
			}

			table, err := pricing.CreateShared(shmPath)
			if err != nil {
				return err
			}
			defer func() {
				if keep {
					return
				}
				if err := table.Close(); err != nil {
					log.Warn("close segment", zap.Error(err))
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("feeding",
				zap.String("file", args[0]),
				zap.String("shm", shmPath),
				zap.Duration("interval", interval),
				zap.Bool("loop", loop))
			n, err := replay.CSV(ctx, args[0], table, replay.Options{
				Interval: interval,
				Loop:     loop,
				Logger:   log,
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d quote(s) to %s\n", n, shmPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&shmPath, "shm", "", "shared-memory segment path (default from config)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "pause between rows (default from config)")
	cmd.Flags().BoolVar(&loop, "loop", false, "restart at end of file until interrupted")
	cmd.Flags().BoolVar(&keep, "keep", false, "leave the segment in place on exit")
	return cmd
}
