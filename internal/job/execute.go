package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliotheinrich/pysims/internal/checkpoint"
	"github.com/eliotheinrich/pysims/internal/compute"
	"github.com/eliotheinrich/pysims/internal/frame"
	"github.com/eliotheinrich/pysims/internal/param"
	"github.com/eliotheinrich/pysims/internal/simulator"
)

// ErrNoData reports job data with no branch, or more than one, selected.
var ErrNoData = errors.New("job data must hold exactly one of params, file or frame")

// Data is the input of one execution. Exactly one field is set.
type Data struct {
	// Params runs fresh configurations.
	Params []param.Record `json:"params,omitempty"`
	// File resumes from a result file on disk.
	File string `json:"file,omitempty"`
	// Frame resumes from a result held in memory.
	Frame *frame.Frame `json:"frame,omitempty"`
}

// Kind names the branch d selects.
func (d Data) Kind() (string, error) {
	n := 0
	kind := ""
	if d.Params != nil {
		n, kind = n+1, "params"
	}
	if d.File != "" {
		n, kind = n+1, "file"
	}
	if d.Frame != nil {
		n, kind = n+1, "frame"
	}
	if n != 1 {
		return "", ErrNoData
	}
	return kind, nil
}

// Env is what an execution runs against.
type Env struct {
	// Registry resolves the generator. When nil, one is built from the
	// context's simulator definition.
	Registry *simulator.Registry
	Engine   *compute.Engine
	Log      *zap.Logger
}

func (e Env) withDefaults(c *Context) (Env, error) {
	if e.Log == nil {
		e.Log = zap.NewNop()
	}
	if e.Engine == nil {
		e.Engine = compute.NewEngine(e.Log)
	}
	if e.Registry == nil {
		f, err := simulator.NewFactory(c.Simulator)
		if err != nil {
			return e, err
		}
		e.Registry = simulator.NewRegistry()
		e.Registry.Register(c.Generator, f)
	}
	return e, nil
}

// Execute runs data and returns the resulting frame. Fresh parameters are
// built and computed; a file is loaded and resumed; a frame is resumed with
// cb applied to every rebuilt configuration. Execute writes nothing.
func (c *Context) Execute(ctx context.Context, env Env, data Data, cb *checkpoint.Callback) (*frame.Frame, error) {
	kind, err := data.Kind()
	if err != nil {
		return nil, err
	}
	env, err = env.withDefaults(c)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "params":
		configs := make([]simulator.Config, 0, len(data.Params))
		for i, p := range data.Params {
			cfg, err := env.Registry.Build(c.Generator, p)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			if cb != nil {
				if err := cb.Apply(cfg.Params()); err != nil {
					return nil, fmt.Errorf("record %d: %w", i, err)
				}
			}
			configs = append(configs, cfg)
		}
		return env.Engine.Compute(ctx, configs, c.Meta)
	case "file":
		f, err := frame.Read(data.File)
		if err != nil {
			return nil, err
		}
		return c.resume(ctx, env, f, cb)
	default:
		return c.resume(ctx, env, data.Frame, cb)
	}
}

// resume continues every slide of prior from its stored state. Each slide is
// rebuilt from its full parameter record, mutated by cb, run, then given
// back its original record and extended with its prior data. A slide that
// cannot be rebuilt or extended is logged and carried over unchanged.
func (c *Context) resume(ctx context.Context, env Env, prior *frame.Frame, cb *checkpoint.Callback) (*frame.Frame, error) {
	start := time.Now()
	type pending struct {
		index  int
		params param.Record
	}
	var (
		configs []simulator.Config
		queued  []pending
		out     = make([]*frame.Slide, prior.Len())
	)
	for i, s := range prior.Slides {
		params := prior.SlideParams(i)
		out[i] = s.Clone()
		out[i].Params = params.Clone()
		cfg, err := env.Registry.Build(c.Generator, params)
		if err != nil {
			if errors.Is(err, simulator.ErrUnknownGenerator) {
				return nil, err
			}
			env.Log.Warn("cannot rebuild slide", zap.String("job", c.Name), zap.Int("slide", i), zap.Error(err))
			continue
		}
		if cb != nil {
			if err := cb.Apply(cfg.Params()); err != nil {
				env.Log.Warn("callback failed on slide", zap.String("job", c.Name), zap.Int("slide", i), zap.Error(err))
				continue
			}
		}
		if s.State != nil {
			cfg.InjectState(s.State)
		}
		configs = append(configs, cfg)
		queued = append(queued, pending{index: i, params: params})
	}

	slides, err := env.Engine.Run(ctx, configs, c.Meta)
	if err != nil {
		return nil, err
	}
	runs := 0
	for j, s := range slides {
		runs = max(runs, c.Meta.RunsFor(configs[j]))
		p := queued[j]
		s.Params = p.params
		if err := s.Extend(prior.Slides[p.index]); err != nil {
			env.Log.Warn("cannot combine resumed slide", zap.String("job", c.Name), zap.Int("slide", p.index), zap.Error(err))
			continue
		}
		out[p.index] = s
	}

	f, err := frame.FromSlides(frame.Metadata{}, out...)
	if err != nil {
		return nil, err
	}
	f.Metadata = frame.Metadata{
		TotalTime:  time.Since(start).Seconds(),
		NumJobs:    1,
		NumThreads: max(c.Meta.Threads, 1),
		NumRuns:    runs,
	}
	return f, nil
}
