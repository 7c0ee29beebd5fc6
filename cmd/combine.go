package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eliotheinrich/pysims/internal/config"
	"github.com/eliotheinrich/pysims/internal/frame"
	"github.com/eliotheinrich/pysims/internal/publish"
	"github.com/eliotheinrich/pysims/internal/result"
)

var (
	flagPlan        string
	flagJob         string
	flagDir         string
	flagExt         string
	flagCheckpoints int
	flagAverage     bool
	flagDataDir     string
	flagCleanup     bool
)

func newCombineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "combine",
		Short: "Aggregate the result files of a job",
		Long:  "Combine every final-stage result file of a job into one aggregate and publish it. Used by the combine job of a batch submission, or by hand with --job and --dir.",
		Args:  cobra.NoArgs,
		RunE:  runCombine,
	}
	cmd.Flags().StringVar(&flagPlan, "plan", "", "combine plan written at submission")
	cmd.Flags().StringVar(&flagJob, "job", "", "job name")
	cmd.Flags().StringVar(&flagDir, "dir", "", "directory holding the result files")
	cmd.Flags().StringVar(&flagExt, "ext", frame.ExtBinary, "extension of the aggregate")
	cmd.Flags().IntVar(&flagCheckpoints, "checkpoints", -1, "number of checkpoint stages; negative combines every file")
	cmd.Flags().BoolVar(&flagAverage, "average", false, "reduce congruent runs while combining")
	cmd.Flags().StringVar(&flagDataDir, "data-dir", "", "where the aggregate is moved (default: the directory itself)")
	cmd.Flags().BoolVar(&flagCleanup, "cleanup", false, "remove the directory afterwards")
	return cmd
}

func runCombine(cmd *cobra.Command, args []string) error {
	var plan *result.Plan
	switch {
	case flagPlan != "":
		p, err := result.ReadPlan(flagPlan)
		if err != nil {
			return err
		}
		plan = p
	case flagJob != "" && flagDir != "":
		plan = &result.Plan{
			Job:         flagJob,
			Dir:         flagDir,
			Ext:         flagExt,
			Checkpoints: flagCheckpoints,
			Average:     flagAverage,
			DataDir:     flagDataDir,
			Cleanup:     flagCleanup,
		}
		if plan.DataDir == "" {
			plan.DataDir = flagDir
		}
	default:
		return fmt.Errorf("either --plan or both --job and --dir are required")
	}

	var sink publish.Sink = publish.DirSink{Dir: plan.DataDir}
	if cfg, err := config.Load(cfgFile); err == nil && cfg.Publish.S3 != nil {
		s3, err := publish.NewS3Sink(*cfg.Publish.S3)
		if err != nil {
			return err
		}
		sink = publish.Chain{sink, s3}
	}

	dst, err := plan.Finalize(cmd.Context(), sink, logger)
	if err != nil {
		return err
	}
	fmt.Println(dst)
	return nil
}
