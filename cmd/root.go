package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliotheinrich/pysims/internal/logging"
)

var (
	cfgFile       string
	flagVerbose   bool
	flagLogFormat string

	logger = zap.NewNop()
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "pysims",
		Short:        "Parameter sweep orchestrator for simulation jobs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logging.New(flagLogFormat, flagVerbose)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "pysims.yaml", "config file path")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", logging.FormatConsole, "log format (console, json)")
	root.AddCommand(newSubmitCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newCombineCmd())
	root.AddCommand(newExpandCmd())
	root.AddCommand(newProbeCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	return root
}
