package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eliotheinrich/pysims/internal/config"
	"github.com/eliotheinrich/pysims/internal/controller"
	"github.com/eliotheinrich/pysims/internal/ledger"
	"github.com/eliotheinrich/pysims/internal/publish"
	"github.com/eliotheinrich/pysims/internal/result"
)

var (
	flagLocal     bool
	flagNodes     int
	flagNoCleanup bool
)

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <job.yaml>",
		Short: "Run a job locally or submit it to the batch scheduler",
		Args:  cobra.ExactArgs(1),
		RunE:  runSubmit,
	}
	cmd.Flags().BoolVar(&flagLocal, "local", false, "run every node in this process")
	cmd.Flags().IntVar(&flagNodes, "nodes", 0, "override node count")
	cmd.Flags().BoolVar(&flagNoCleanup, "no-cleanup", false, "keep the case directory after aggregation")
	return cmd
}

// applyOverrides folds command line flags into def.
func applyOverrides(def *config.JobDef, local bool, nodes int, noCleanup bool) {
	if local {
		def.Local = true
	}
	if nodes > 0 {
		def.Resources.Nodes = nodes
	}
	if noCleanup {
		keep := false
		def.Cleanup = &keep
	}
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	def, err := config.LoadJob(args[0])
	if err != nil {
		return err
	}
	applyOverrides(def, flagLocal, flagNodes, flagNoCleanup)

	sink, err := buildSink(cfg)
	if err != nil {
		return err
	}
	opts := controller.Options{
		Config:     cfg,
		ConfigPath: cfgFile,
		Sink:       sink,
		Log:        logger,
	}
	if cfg.Ledger.Enabled {
		l, err := ledger.Open(cfg.Ledger.Path, def.Name)
		if err != nil {
			return err
		}
		defer l.Close()
		opts.Recorder = l
	}
	c, err := controller.New(opts)
	if err != nil {
		return err
	}

	out, err := c.Submit(cmd.Context(), def)
	if err != nil {
		return err
	}
	fmt.Printf("Submission %s: %d records on %d nodes\n", out.Submission, out.Records, def.Resources.Nodes)
	if out.Output != "" {
		fmt.Printf("Result: %s\n", out.Output)
		return nil
	}
	for _, j := range out.Graph.Jobs {
		fmt.Printf("  %-32s %-10s %s\n", j.Name, j.Status, j.ID)
	}
	if cj := out.Graph.Combine; cj != nil {
		fmt.Printf("  %-32s %-10s %s\n", "combine_"+cj.Name, cj.Status, cj.ID)
	}
	return nil
}

// buildSink returns where aggregates are published: the data directory, then
// the configured bucket if any.
func buildSink(cfg *config.Config) (publish.Sink, error) {
	dir := publish.DirSink{Dir: result.DataDir(cfg.WorkingDir)}
	if cfg.Publish.S3 == nil {
		return dir, nil
	}
	s3, err := publish.NewS3Sink(*cfg.Publish.S3)
	if err != nil {
		return nil, err
	}
	return publish.Chain{dir, s3}, nil
}
