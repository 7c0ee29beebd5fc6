// Package compute runs batches of simulator configurations and folds their
// output into a frame.
package compute

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliotheinrich/pysims/internal/frame"
	"github.com/eliotheinrich/pysims/internal/simulator"
)

// Parallelization strategies.
const (
	Serial   = 0
	Threaded = 1
)

// Meta holds the metaparameters of a computation.
type Meta struct {
	Threads int `json:"threads" yaml:"threads"`
	// Runs is the number of runs per configuration. Zero takes the
	// configuration's num_runs parameter, or 1.
	Runs            int     `json:"runs,omitempty" yaml:"runs,omitempty"`
	Atol            float64 `json:"atol,omitempty" yaml:"atol,omitempty"`
	Rtol            float64 `json:"rtol,omitempty" yaml:"rtol,omitempty"`
	Parallelization int     `json:"parallelization" yaml:"parallelization"`
	// BatchSize bounds how many configurations are folded into the frame at
	// once. Zero means all of them.
	BatchSize int   `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	Seed      int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
	Verbose   bool  `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	// Average reduces repeated runs into summary statistics after every
	// batch.
	Average bool `json:"average,omitempty" yaml:"average,omitempty"`
}

func (m Meta) threads() int {
	if m.Threads < 1 {
		return 1
	}
	return m.Threads
}

// Engine runs configurations.
type Engine struct {
	log *zap.Logger
}

// NewEngine returns an engine logging to log.
func NewEngine(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{log: log}
}

// RunsFor returns the number of runs cfg gets under m.
func (m Meta) RunsFor(cfg simulator.Config) int {
	if m.Runs > 0 {
		return m.Runs
	}
	if n := cfg.Params().Int("num_runs", 1); n > 0 {
		return n
	}
	return 1
}

// Run executes every configuration and returns one slide per
// configuration, in input order. Each run contributes one sample per
// observable; the slide keeps the state of the last run.
func (e *Engine) Run(ctx context.Context, configs []simulator.Config, meta Meta) ([]*frame.Slide, error) {
	type unit struct{ cfg, run int }
	var units []unit
	results := make([][]*simulator.Response, len(configs))
	for i, cfg := range configs {
		n := meta.RunsFor(cfg)
		results[i] = make([]*simulator.Response, n)
		for r := 0; r < n; r++ {
			units = append(units, unit{i, r})
		}
	}

	do := func(ctx context.Context, u unit) error {
		cfg := configs[u.cfg]
		resp, err := cfg.Run(ctx, simulator.RunMeta{
			Atol: meta.Atol,
			Rtol: meta.Rtol,
			Run:  u.run,
			Seed: meta.Seed + int64(u.run),
		})
		if err != nil {
			return fmt.Errorf("config %d (%s) run %d: %w", u.cfg, cfg.Tag(), u.run, err)
		}
		results[u.cfg][u.run] = resp
		if meta.Verbose {
			e.log.Info("run finished", zap.Int("config", u.cfg), zap.Int("run", u.run))
		}
		return nil
	}

	if meta.Parallelization == Serial || meta.threads() == 1 {
		for _, u := range units {
			if err := do(ctx, u); err != nil {
				return nil, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(meta.threads())
		for _, u := range units {
			g.Go(func() error { return do(gctx, u) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	slides := make([]*frame.Slide, len(configs))
	for i, cfg := range configs {
		s := &frame.Slide{Params: cfg.Params().Clone(), Data: map[string][]frame.Sample{}}
		for _, resp := range results[i] {
			for _, k := range resp.Keys() {
				s.Data[k] = append(s.Data[k], frame.NewSample(append([]float64(nil), resp.Data[k]...)...))
			}
		}
		if last := results[i][len(results[i])-1]; last.State != nil {
			s.State = append([]byte(nil), last.State...)
		}
		slides[i] = s
	}
	return slides, nil
}

// Compute runs configs batch by batch and merges the slides into one
// frame. The frame's metadata records one job, the thread count, the runs
// per configuration and the wall time.
func (e *Engine) Compute(ctx context.Context, configs []simulator.Config, meta Meta) (*frame.Frame, error) {
	start := time.Now()
	batch := meta.BatchSize
	if batch < 1 || batch > len(configs) {
		batch = len(configs)
	}

	total := frame.New()
	runs := 0
	for lo := 0; lo < len(configs); lo += batch {
		hi := min(lo+batch, len(configs))
		slides, err := e.Run(ctx, configs[lo:hi], meta)
		if err != nil {
			return nil, err
		}
		for _, cfg := range configs[lo:hi] {
			runs = max(runs, meta.RunsFor(cfg))
		}
		part, err := frame.FromSlides(frame.Metadata{}, slides...)
		if err != nil {
			return nil, err
		}
		if total, err = frame.Combine(total, part); err != nil {
			return nil, err
		}
		if meta.Average {
			if err := total.Reduce(); err != nil {
				return nil, err
			}
		}
		e.log.Debug("batch computed", zap.Int("from", lo), zap.Int("to", hi), zap.Int("configs", len(configs)))
	}

	total.Metadata = frame.Metadata{
		TotalTime:  time.Since(start).Seconds(),
		NumJobs:    1,
		NumThreads: meta.threads(),
		NumRuns:    runs,
	}
	return total, nil
}
