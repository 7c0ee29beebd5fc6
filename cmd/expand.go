package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eliotheinrich/pysims/internal/config"
	"github.com/eliotheinrich/pysims/internal/param"
)

func newExpandCmd() *cobra.Command {
	var nodes int
	cmd := &cobra.Command{
		Use:   "expand <job.yaml>",
		Short: "Print the parameter records a job expands to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := config.LoadJob(args[0])
			if err != nil {
				return err
			}
			if def.Bundle == nil {
				return fmt.Errorf("job %s resumes %s and has no parameter bundle", def.Name, def.CheckpointFile)
			}
			records, err := param.Expand(def.Bundle)
			if err != nil {
				return err
			}
			if nodes < 1 {
				nodes = def.Resources.Nodes
			}
			out := cmd.OutOrStdout()
			for node, shard := range param.Split(records, nodes) {
				fmt.Fprintf(out, "node %d:\n", node)
				for _, r := range shard {
					fmt.Fprintf(out, "  %s\n", param.Canonical(r))
				}
			}
			fmt.Fprintf(out, "%d records\n", len(records))
			return nil
		},
	}
	cmd.Flags().IntVar(&nodes, "nodes", 0, "override node count")
	return cmd
}
