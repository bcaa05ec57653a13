package formulas

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/pricehub/formula"
	"github.com/rustyeddy/pricehub/internal/cli/config"
	"github.com/rustyeddy/pricehub/pricing"
)

func New(rc *config.RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "formulas",
		Short: "Inspect synthetic instrument formulas",
	}
	cmd.AddCommand(newCheckCmd(rc))
	return cmd
}

func newCheckCmd(rc *config.RootConfig) *cobra.Command {
	var (
		shmPath string
		strict  bool
	)

	cmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Parse a formula file and print the synthetic instruments",
		Long: `Parse a formula file the way the hub does and print every synthetic
instrument with its bid and ask formulas, followed by any warnings.

With --shm the formulas are also evaluated against the current contents
of the shared price table.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := rc.Load()
				if err != nil {
					return err
				}
				path = cfg.Formulas
			}

			defs, warns, err := formula.LoadFile(path)
			if err != nil {
				return err
			}
			book := formula.NewBook()
			warns = append(warns, book.Apply(defs)...)
			synths := book.Snapshot(nil)

			var snap pricing.Snapshot
			if shmPath != "" {
				table := pricing.OpenShared(shmPath)
				defer table.Close()
				if snap, err = table.Snapshot(nil); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if err := printSynthetics(out, synths, snap, shmPath != ""); err != nil {
				return err
			}
			for _, w := range warns {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			fmt.Fprintf(out, "%d synthetic(s), %d warning(s)\n", len(synths), len(warns))

			if strict && len(warns) > 0 {
				return fmt.Errorf("%s: %d warning(s)", path, len(warns))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&shmPath, "shm", "", "evaluate against this shared-memory price table")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when the file produces warnings")
	return cmd
}

func printSynthetics(w io.Writer, synths []formula.Synthetic, snap pricing.Snapshot, evaluate bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if evaluate {
		fmt.Fprintln(tw, "NAME\tDIGITS\tBID\tASK\tVALUE")
	} else {
		fmt.Fprintln(tw, "NAME\tDIGITS\tBID\tASK")
	}
	sides := []pricing.Side{pricing.SideBid, pricing.SideAsk}
	for _, s := range synths {
		fmt.Fprintf(tw, "%s\t%d", s.Name, s.Precision)
		for _, side := range sides {
			fmt.Fprintf(tw, "\t%s", s.Formula(side))
		}
		if evaluate {
			q := s.Quote(snap)
			fmt.Fprintf(tw, "\t%.*f %.*f", s.Precision, q.Bid, s.Precision, q.Ask)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
