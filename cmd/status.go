package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliotheinrich/pysims/internal/config"
	"github.com/eliotheinrich/pysims/internal/ledger"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [job]",
		Short: "Show recorded submissions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if !cfg.Ledger.Enabled {
				return fmt.Errorf("ledger is disabled in %s", cfgFile)
			}
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			l, err := ledger.Open(cfg.Ledger.Path, name)
			if err != nil {
				return err
			}
			defer l.Close()
			entries, err := l.List(cmd.Context(), name)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SUBMISSION\tNAME\tSTATUS\tID\tDEPS\tRECORDED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.Submission[:min(8, len(e.Submission))], e.Job.Name, e.Job.Status, e.Job.ID,
					strings.Join(e.Job.Deps, ":"), e.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}
