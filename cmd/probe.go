package cmd

import (
	"github.com/spf13/cobra"

	"github.com/eliotheinrich/pysims/internal/job"
)

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "probe <arg-file>",
		Short:  "Build one simulator configuration without running it",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return job.ProbeArgs(args[0])
		},
	}
}
