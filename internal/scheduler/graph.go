// Package scheduler runs a job's nodes and checkpoint stages either in the
// current process or as a chain of dependent batch submissions.
package scheduler

import (
	"context"

	"github.com/eliotheinrich/pysims/internal/checkpoint"
	"github.com/eliotheinrich/pysims/internal/job"
)

// Job statuses.
const (
	StatusSubmitted = "submitted"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusDone      = "done"
)

// Job is one unit of a submission: a node at a stage, or the final combine
// job (Node and Stage -1).
type Job struct {
	Name   string   `json:"name"`
	Node   int      `json:"node"`
	Stage  int      `json:"stage"`
	ID     string   `json:"id,omitempty"`
	Deps   []string `json:"deps,omitempty"`
	Script string   `json:"script,omitempty"`
	Status string   `json:"status"`
}

// Graph is the set of jobs of one submission.
type Graph struct {
	Submission string `json:"submission"`
	Jobs       []*Job `json:"jobs"`
	Combine    *Job   `json:"combine,omitempty"`
}

// Job returns the job of node at stage.
func (g *Graph) Job(node, stage int) *Job {
	for _, j := range g.Jobs {
		if j.Node == node && j.Stage == stage {
			return j
		}
	}
	return nil
}

// Recorder keeps a record of submitted jobs.
type Recorder interface {
	Record(ctx context.Context, submission string, j *Job) error
}

// Plan is what a backend runs: one base-stage input per node and the
// checkpoint chain applied after it.
type Plan struct {
	Submission string
	Context    *job.Context
	Shards     []job.Data
	Chain      checkpoint.Chain
	Average    bool
	DataDir    string

	// Init is applied at the base stage of a job resumed from a file.
	Init *checkpoint.Callback
}

// stageData returns the input of node at stage: its shard for the base
// stage, the previous stage's output file afterwards.
func (p *Plan) stageData(node, stage int) (job.Data, *checkpoint.Callback) {
	if stage == 0 {
		return p.Shards[node], p.Init
	}
	cb := p.Chain[stage-1]
	return job.Data{File: p.Context.Path(p.Context.StageName(node, stage-1))}, &cb
}
