package sessions

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/pricehub/internal/cli/config"
	"github.com/rustyeddy/pricehub/journal"
)

func New(rc *config.RootConfig) *cobra.Command {
	var (
		dbPath   string
		limit    int
		openOnly bool
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List subscriber sessions from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("db") {
				cfg, err := rc.Load()
				if err != nil {
					return err
				}
				dbPath = cfg.Journal.DBPath
			}
			if dbPath == "" {
				return fmt.Errorf("no journal configured (set journal.db_path or --db)")
			}

			j, err := journal.NewSQLite(dbPath)
			if err != nil {
				return err
			}
			defer j.Close()

			list, err := j.ListSessions(limit, openOnly)
			if err != nil {
				return err
			}
			return printSessions(cmd.OutOrStdout(), list, time.Now())
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite journal database (default from config)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum sessions to show (0 for all)")
	cmd.Flags().BoolVar(&openOnly, "open", false, "only sessions that are still connected")
	return cmd
}

func printSessions(w io.Writer, list []journal.Session, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREMOTE\tCONNECTED\tDURATION\tBYTES\tLINES\tREASON")
	for _, s := range list {
		reason := s.Reason
		if s.Open() {
			reason = "(connected)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			s.ID,
			s.RemoteAddr,
			s.ConnectedAt.Local().Format(time.DateTime),
			s.Duration(now).Round(time.Second),
			s.BytesSent,
			s.LinesSent,
			reason,
		)
	}
	return tw.Flush()
}
