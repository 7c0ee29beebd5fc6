package scheduler

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliotheinrich/pysims/internal/job"
	"github.com/eliotheinrich/pysims/internal/publish"
	"github.com/eliotheinrich/pysims/internal/result"
)

// Local runs every node in turn in the current process, then aggregates.
type Local struct {
	Env  job.Env
	Sink publish.Sink
	Log  *zap.Logger
}

// Run executes the plan and returns the published aggregate and the jobs
// that ran. A failed stage is logged; later stages of that node then find no
// input and fail as well, and the node contributes nothing.
func (l *Local) Run(ctx context.Context, p *Plan) (string, *Graph, error) {
	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}
	env := l.Env
	env.Log = log

	g := &Graph{Submission: p.Submission}
	c := p.Context
	for node := range p.Shards {
		for stage := 0; stage < p.Chain.Stages(); stage++ {
			name := c.StageName(node, stage)
			data, cb := p.stageData(node, stage)
			j := &Job{Name: name, Node: node, Stage: stage, Status: StatusDone}
			g.Jobs = append(g.Jobs, j)
			_, err := job.RunArgs(ctx, env, name, &job.Args{
				Submission: p.Submission,
				Context:    *c,
				Data:       data,
				Callback:   cb,
				Node:       node,
				Stage:      stage,
			})
			if err != nil {
				j.Status = StatusFailed
				log.Error("stage failed", zap.String("job", name), zap.Int("node", node), zap.Int("stage", stage), zap.Error(err))
			}
		}
	}

	plan := &result.Plan{
		Job:         c.Name,
		Dir:         c.Dir,
		Ext:         c.Ext,
		Checkpoints: len(p.Chain),
		Average:     p.Average,
		DataDir:     p.DataDir,
		Cleanup:     c.Cleanup,
	}
	sink := l.Sink
	if sink == nil {
		sink = publish.DirSink{Dir: p.DataDir}
	}
	dst, err := plan.Finalize(ctx, sink, log)
	if err != nil {
		return "", g, err
	}
	return dst, g, nil
}
