package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliotheinrich/pysims/internal/config"
	"github.com/eliotheinrich/pysims/internal/job"
	"github.com/eliotheinrich/pysims/internal/ledger"
	"github.com/eliotheinrich/pysims/internal/scheduler"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <run-name> <arg-file>",
		Short: "Execute one node at one stage from an argument file",
		Long:  "Entry point of batch job scripts. Reads the argument file, executes it and writes <run-name>.<ext> into the job directory.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := job.ReadArgs(args[1])
			if err != nil {
				return err
			}
			path, runErr := job.RunArgs(cmd.Context(), job.Env{Log: logger}, args[0], a)

			status := scheduler.StatusDone
			if runErr != nil {
				status = scheduler.StatusFailed
			}
			recordStatus(cmd, a, &scheduler.Job{Name: args[0], Node: a.Node, Stage: a.Stage, Status: status})
			if runErr != nil {
				return runErr
			}
			fmt.Println(path)
			return nil
		},
	}
}

// recordStatus appends the outcome of a stage to the ledger when one is
// configured. Failures only warn: the result file is what counts.
func recordStatus(cmd *cobra.Command, a *job.Args, j *scheduler.Job) {
	if a.Submission == "" {
		return
	}
	cfg, err := config.Load(cfgFile)
	if err != nil || !cfg.Ledger.Enabled {
		return
	}
	l, err := ledger.Open(cfg.Ledger.Path, a.Context.Name)
	if err != nil {
		logger.Warn("opening ledger failed", zap.Error(err))
		return
	}
	defer l.Close()
	if err := l.Record(cmd.Context(), a.Submission, j); err != nil {
		logger.Warn("recording status failed", zap.String("job", j.Name), zap.Error(err))
	}
}
