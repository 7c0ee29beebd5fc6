// Package controller is the entry point of a submission: it validates a job
// definition against the site configuration and hands it to the local or
// batch backend.
package controller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/eliotheinrich/pysims/internal/checkpoint"
	"github.com/eliotheinrich/pysims/internal/compute"
	"github.com/eliotheinrich/pysims/internal/config"
	"github.com/eliotheinrich/pysims/internal/frame"
	"github.com/eliotheinrich/pysims/internal/job"
	"github.com/eliotheinrich/pysims/internal/ledger"
	"github.com/eliotheinrich/pysims/internal/param"
	"github.com/eliotheinrich/pysims/internal/publish"
	"github.com/eliotheinrich/pysims/internal/result"
	"github.com/eliotheinrich/pysims/internal/scheduler"
	"github.com/eliotheinrich/pysims/internal/simulator"
)

// Options are the collaborators of a Controller. Only Config is required.
type Options struct {
	Config *config.Config
	// Registry resolves generators. When nil it is loaded from
	// Config.Simulators.
	Registry *simulator.Registry
	Engine   *compute.Engine
	// Submitter defaults to sbatch as configured.
	Submitter scheduler.Submitter
	// Executable runs stages inside batch scripts. It defaults to the
	// running binary with --config pointing at ConfigPath.
	Executable []string
	ConfigPath string
	// ProbeCommand defaults to the running binary's probe command.
	ProbeCommand []string
	Sink         publish.Sink
	Recorder     scheduler.Recorder
	Log          *zap.Logger
}

type Controller struct {
	opts Options
	log  *zap.Logger
}

// Outcome describes a finished submission.
type Outcome struct {
	Submission string
	Records    int
	Graph      *scheduler.Graph
	// Output is the published aggregate of a local run.
	Output string
}

func New(opts Options) (*Controller, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("controller: config is required")
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Registry == nil {
		r, err := simulator.LoadRegistry(opts.Config.Simulators, opts.Log)
		if err != nil {
			return nil, err
		}
		opts.Registry = r
	}
	if opts.Engine == nil {
		opts.Engine = compute.NewEngine(opts.Log)
	}
	return &Controller{opts: opts, log: opts.Log}, nil
}

// Registry returns the generators the controller resolves against.
func (c *Controller) Registry() *simulator.Registry {
	return c.opts.Registry
}

// Submit validates def and runs or submits it. Everything that can fail
// before work starts (partition, expansion, callbacks, generator lookup,
// the out-of-process probe) fails here, before the case directory is
// touched.
func (c *Controller) Submit(ctx context.Context, def *config.JobDef) (*Outcome, error) {
	cfg := c.opts.Config
	log := c.log

	res := def.Resources
	partition, err := cfg.Scheduler.Partition.Resolve(res)
	if err != nil {
		return nil, fmt.Errorf("resolving partition: %w", err)
	}
	res.Partition = partition

	if _, err := c.opts.Registry.Lookup(def.Generator); err != nil {
		return nil, err
	}
	spec, hasSpec := c.opts.Registry.Spec(def.Generator)
	if !hasSpec && !def.Local {
		return nil, fmt.Errorf("generator %q has no simulator definition for batch jobs", def.Generator)
	}

	dir, err := filepath.Abs(result.CaseDir(cfg.WorkingDir, def.Name))
	if err != nil {
		return nil, fmt.Errorf("resolving case dir: %w", err)
	}
	jc := &job.Context{
		Name:      def.Name,
		Generator: def.Generator,
		Simulator: spec,
		Dir:       dir,
		Ext:       def.Ext,
		Resources: res,
		Cleanup:   def.ShouldCleanup(),
		Meta:      def.Meta,
	}
	if err := jc.Validate(); err != nil {
		return nil, err
	}

	records, shards, err := c.inputs(def, res.Nodes)
	if err != nil {
		return nil, err
	}
	callbacks := make([]checkpoint.Callback, 0, len(def.Checkpoints)+1)
	if def.InitCallback != nil {
		callbacks = append(callbacks, *def.InitCallback)
	}
	callbacks = append(callbacks, def.Checkpoints...)
	if err := checkpoint.Verify(records, callbacks...); err != nil {
		return nil, err
	}

	probe := records[0].Clone()
	if def.InitCallback != nil {
		if err := def.InitCallback.Apply(probe); err != nil {
			return nil, err
		}
	}
	if err := c.probe(ctx, jc, probe); err != nil {
		return nil, err
	}

	if def.CheckpointFile == "" {
		if _, err := result.PrepareCaseDir(cfg.WorkingDir, def.Name); err != nil {
			return nil, err
		}
	} else {
		for _, d := range []string{dir, result.DataDir(cfg.WorkingDir)} {
			if err := os.MkdirAll(d, 0o755); err != nil {
				return nil, fmt.Errorf("creating %s: %w", d, err)
			}
		}
	}

	dataDir, err := filepath.Abs(result.DataDir(cfg.WorkingDir))
	if err != nil {
		return nil, fmt.Errorf("resolving data dir: %w", err)
	}
	plan := &scheduler.Plan{
		Submission: ledger.NewSubmissionID(),
		Context:    jc,
		Shards:     shards,
		Chain:      def.Checkpoints,
		Average:    def.Average,
		DataDir:    dataDir,
		Init:       def.InitCallback,
	}
	out := &Outcome{Submission: plan.Submission, Records: len(records)}
	log.Info("submitting",
		zap.String("job", def.Name),
		zap.String("submission", plan.Submission),
		zap.Bool("local", def.Local),
		zap.Int("nodes", len(shards)),
		zap.Int("stages", def.Checkpoints.Stages()),
		zap.Int("records", len(records)),
		zap.String("partition", partition))

	if def.Local {
		local := &scheduler.Local{
			Env:  job.Env{Registry: c.opts.Registry, Engine: c.opts.Engine},
			Sink: c.opts.Sink,
			Log:  log,
		}
		dst, g, err := local.Run(ctx, plan)
		out.Graph, out.Output = g, dst
		c.record(ctx, log, g)
		return out, err
	}

	batch, err := c.batch(log)
	if err != nil {
		return nil, err
	}
	g, err := batch.Run(ctx, plan)
	out.Graph = g
	return out, err
}

// inputs returns the records the job covers and one base-stage input per
// node.
func (c *Controller) inputs(def *config.JobDef, nodes int) ([]param.Record, []job.Data, error) {
	if def.CheckpointFile == "" {
		records, err := param.Expand(def.Bundle)
		if err != nil {
			return nil, nil, err
		}
		if len(records) == 0 {
			return nil, nil, fmt.Errorf("%w: expands to no records", param.ErrInvalidBundle)
		}
		split := param.Split(records, nodes)
		shards := make([]job.Data, len(split))
		for i, s := range split {
			shards[i] = job.Data{Params: s}
		}
		return records, shards, nil
	}

	f, err := frame.Read(def.CheckpointFile)
	if err != nil {
		return nil, nil, err
	}
	if f.Len() == 0 {
		return nil, nil, fmt.Errorf("checkpoint file %s holds no slides", def.CheckpointFile)
	}
	records := make([]param.Record, f.Len())
	for i := range f.Slides {
		records[i] = f.SlideParams(i)
	}
	file, err := filepath.Abs(def.CheckpointFile)
	if err != nil {
		return nil, nil, err
	}
	shards := make([]job.Data, max(nodes, 1))
	for i := range shards {
		shards[i] = job.Data{File: file}
	}
	return records, shards, nil
}

func (c *Controller) probe(ctx context.Context, jc *job.Context, record param.Record) error {
	command := c.opts.ProbeCommand
	if len(command) == 0 {
		if jc.Simulator.Name == "" {
			// Generators registered in process cannot be rebuilt elsewhere.
			_, err := c.opts.Registry.Build(jc.Generator, record)
			return err
		}
		self, err := job.SelfProbeCommand()
		if err != nil {
			return err
		}
		command = self
	}
	return jc.Probe(ctx, record, command)
}

func (c *Controller) batch(log *zap.Logger) (*scheduler.Batch, error) {
	cfg := c.opts.Config
	exe := c.opts.Executable
	if len(exe) == 0 {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating executable: %w", err)
		}
		exe = []string{self}
		if c.opts.ConfigPath != "" {
			abs, err := filepath.Abs(c.opts.ConfigPath)
			if err != nil {
				return nil, err
			}
			exe = append(exe, "--config", abs)
		}
	}
	sub := c.opts.Submitter
	if sub == nil {
		sub = &scheduler.Sbatch{Command: cfg.Scheduler.Submit}
	}
	return &scheduler.Batch{
		Submitter:  sub,
		Executable: exe,
		Shell:      cfg.Scheduler.Shell,
		Setup:      cfg.Scheduler.Setup,
		LogDir:     cfg.WorkingDir,
		Combine:    cfg.Scheduler.Combine,
		Recorder:   c.opts.Recorder,
		Log:        log,
	}, nil
}

func (c *Controller) record(ctx context.Context, log *zap.Logger, g *scheduler.Graph) {
	if c.opts.Recorder == nil || g == nil {
		return
	}
	for _, j := range g.Jobs {
		if err := c.opts.Recorder.Record(ctx, g.Submission, j); err != nil {
			log.Warn("recording job failed", zap.String("job", j.Name), zap.Error(err))
		}
	}
}
