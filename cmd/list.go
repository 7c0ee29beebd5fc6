package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eliotheinrich/pysims/internal/config"
	"github.com/eliotheinrich/pysims/internal/simulator"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the simulators that can be used as generators",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			r, err := simulator.LoadRegistry(cfg.Simulators, logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Simulators:")
			for _, tag := range r.Tags() {
				s, _ := r.Spec(tag)
				if s.Image != "" {
					fmt.Fprintf(out, "  - %s (image: %s)\n", tag, s.Image)
				} else {
					fmt.Fprintf(out, "  - %s (command: %v)\n", tag, s.Command)
				}
			}
			return nil
		},
	}
}
