package scheduler

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/eliotheinrich/pysims/internal/job"
	"github.com/eliotheinrich/pysims/internal/result"
)

// Batch submits every node and stage as a separate scheduler job. Stage k+1
// of a node depends on stage k of the same node, and one combine job
// depends on every node's final stage. Dependencies use afterany semantics:
// a failed stage does not stop the chain, it only leaves a gap the
// aggregation skips over.
type Batch struct {
	Submitter Submitter
	// Executable is the command that runs a stage inside a job script,
	// usually this binary with its global flags.
	Executable []string
	Shell      string
	Setup      []string
	// LogDir receives the scheduler output of the combine job.
	LogDir string
	// Combine is the resource request of the combine job.
	Combine  job.Resources
	Recorder Recorder
	Log      *zap.Logger
}

// Run submits the plan and returns the resulting graph. Submission failures
// never abort the run: the job is recorded without an ID and jobs depending
// on it are not submitted.
func (b *Batch) Run(ctx context.Context, p *Plan) (*Graph, error) {
	log := b.Log
	if log == nil {
		log = zap.NewNop()
	}
	if len(b.Executable) == 0 {
		return nil, fmt.Errorf("batch backend: no executable")
	}
	c := p.Context
	g := &Graph{Submission: p.Submission}

	var finals []string
	for node := range p.Shards {
		prev := ""
		for stage := 0; stage < p.Chain.Stages(); stage++ {
			name := c.StageName(node, stage)
			j := &Job{Name: name, Node: node, Stage: stage}
			g.Jobs = append(g.Jobs, j)
			if stage > 0 {
				if prev == "" {
					j.Status = StatusSkipped
					log.Warn("not submitting stage",
						zap.String("job", name), zap.Int("node", node), zap.Int("stage", stage),
						zap.Error(ErrDependencyUnavailable))
					b.record(ctx, log, g.Submission, j)
					continue
				}
				j.Deps = []string{prev}
			}

			data, cb := p.stageData(node, stage)
			argFile := filepath.Join(c.Dir, name+".args.json")
			if err := job.WriteArgs(argFile, &job.Args{
				Submission: p.Submission,
				Context:    *c,
				Data:       data,
				Callback:   cb,
				Node:       node,
				Stage:      stage,
			}); err != nil {
				return g, err
			}
			s := &Script{
				Name:      name,
				Partition: c.Resources.Partition,
				Cores:     c.Resources.Cores,
				Memory:    c.Resources.Memory,
				Time:      c.Resources.Time,
				Output:    filepath.Join(c.Dir, "slurm."+name+".%j.out"),
				Shell:     b.Shell,
				Setup:     b.Setup,
				Command:   append(append([]string(nil), b.Executable...), "run", name, argFile),
			}
			prev = b.submit(ctx, log, g.Submission, j, s, filepath.Join(c.Dir, name+".sh"))
		}
		finals = append(finals, prev)
	}

	g.Combine = &Job{Name: c.Name, Node: -1, Stage: -1}
	for _, id := range finals {
		if id != "" {
			g.Combine.Deps = append(g.Combine.Deps, id)
		}
	}
	if len(g.Combine.Deps) == 0 {
		g.Combine.Status = StatusSkipped
		log.Error("not submitting combine job", zap.String("job", c.Name), zap.Error(ErrDependencyUnavailable))
		b.record(ctx, log, g.Submission, g.Combine)
		return g, nil
	}
	if len(g.Combine.Deps) < len(finals) {
		log.Warn("combine job waits on a partial set of nodes",
			zap.String("job", c.Name), zap.Int("nodes", len(finals)), zap.Int("submitted", len(g.Combine.Deps)))
	}

	planFile := filepath.Join(c.Dir, c.Name+".combine.json")
	if err := result.WritePlan(planFile, &result.Plan{
		Job:         c.Name,
		Dir:         c.Dir,
		Ext:         c.Ext,
		Checkpoints: len(p.Chain),
		Average:     p.Average,
		DataDir:     p.DataDir,
		Cleanup:     c.Cleanup,
	}); err != nil {
		return g, err
	}
	logDir := b.LogDir
	if logDir == "" {
		logDir = filepath.Dir(p.DataDir)
	}
	s := &Script{
		Name:      "combine_" + c.Name,
		Partition: b.Combine.Partition,
		Cores:     b.Combine.Cores,
		Memory:    b.Combine.Memory,
		Time:      b.Combine.Time,
		Output:    filepath.Join(logDir, "slurm."+c.Name+".%j.out"),
		Shell:     b.Shell,
		Setup:     b.Setup,
		Command:   append(append([]string(nil), b.Executable...), "combine", "--plan", planFile),
	}
	b.submit(ctx, log, g.Submission, g.Combine, s, filepath.Join(c.Dir, "combine_"+c.Name+".sh"))
	return g, nil
}

// submit writes and submits one script and returns the job ID, or "" on
// failure.
func (b *Batch) submit(ctx context.Context, log *zap.Logger, submission string, j *Job, s *Script, path string) string {
	j.Script = path
	if err := s.Write(path); err != nil {
		j.Status = StatusFailed
		log.Error("writing script failed", zap.String("job", j.Name), zap.Error(err))
		b.record(ctx, log, submission, j)
		return ""
	}
	id, err := b.Submitter.Submit(ctx, path, j.Deps)
	if err != nil {
		j.Status = StatusFailed
		log.Error("submission failed", zap.String("job", j.Name), zap.Int("node", j.Node), zap.Int("stage", j.Stage), zap.Error(err))
		b.record(ctx, log, submission, j)
		return ""
	}
	j.ID = id
	j.Status = StatusSubmitted
	log.Info("submitted", zap.String("job", j.Name), zap.String("id", id), zap.Strings("deps", j.Deps))
	b.record(ctx, log, submission, j)
	return id
}

func (b *Batch) record(ctx context.Context, log *zap.Logger, submission string, j *Job) {
	if b.Recorder == nil {
		return
	}
	if err := b.Recorder.Record(ctx, submission, j); err != nil {
		log.Warn("recording job failed", zap.String("job", j.Name), zap.Error(err))
	}
}
