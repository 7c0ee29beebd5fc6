// Package job is one schedulable unit of work: which simulator to build,
// where its files go, what it asks the scheduler for, and how to execute
// fresh parameters, a checkpoint file or an in-memory frame.
package job

import (
	"fmt"
	"path/filepath"

	"github.com/eliotheinrich/pysims/internal/compute"
	"github.com/eliotheinrich/pysims/internal/frame"
	"github.com/eliotheinrich/pysims/internal/simulator"
)

// Resources is the scheduler request of one job.
type Resources struct {
	Partition string `json:"partition,omitempty" yaml:"partition,omitempty"`
	Nodes     int    `json:"nodes" yaml:"nodes"`
	Cores     int    `json:"cores" yaml:"cores"`
	Memory    string `json:"memory" yaml:"memory"`
	Time      string `json:"time" yaml:"time"`
}

// Context describes a job. It is built once per submission, never
// modified afterwards, and travels to child processes inside argument
// files, so the generator is named by tag and simulator definition rather
// than by a value.
type Context struct {
	Name      string         `json:"name"`
	Generator string         `json:"generator"`
	Simulator simulator.Spec `json:"simulator"`
	Dir       string         `json:"dir"`
	Ext       string         `json:"ext"`
	Resources Resources      `json:"resources"`
	Cleanup   bool           `json:"cleanup"`
	Meta      compute.Meta   `json:"meta"`
}

// Validate checks the fields every execution path relies on.
func (c *Context) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if c.Generator == "" {
		return fmt.Errorf("job %q: generator is required", c.Name)
	}
	if c.Dir == "" {
		return fmt.Errorf("job %q: directory is required", c.Name)
	}
	switch c.Ext {
	case frame.ExtJSON, frame.ExtBinary:
	default:
		return fmt.Errorf("job %q: unsupported extension %q", c.Name, c.Ext)
	}
	return nil
}

// FileName returns the result file name of a run named runName.
func (c *Context) FileName(runName string) string {
	return runName + "." + c.Ext
}

// Path returns the path of runName's result file inside the job directory.
func (c *Context) Path(runName string) string {
	return filepath.Join(c.Dir, c.FileName(runName))
}

// StageName names the output of one node at one stage. Stage 0 is the base
// stage.
func (c *Context) StageName(node, stage int) string {
	return fmt.Sprintf("%s_%d_%d", c.Name, node, stage)
}
