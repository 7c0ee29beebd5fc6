package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/eliotheinrich/pysims/internal/checkpoint"
	"github.com/eliotheinrich/pysims/internal/compute"
	"github.com/eliotheinrich/pysims/internal/frame"
	"github.com/eliotheinrich/pysims/internal/job"
	"github.com/eliotheinrich/pysims/internal/param"
)

// JobDef is a job definition file: what to sweep, with which simulator and
// how to schedule it.
type JobDef struct {
	Name      string        `yaml:"name"`
	Generator string        `yaml:"generator"`
	Ext       string        `yaml:"ext"`
	Resources job.Resources `yaml:",inline"`
	Local     bool          `yaml:"local"`
	Cleanup   *bool         `yaml:"cleanup"`
	Average   bool          `yaml:"average"`
	Meta      compute.Meta  `yaml:"metaparams"`

	// Params is the parameter bundle of a fresh run.
	Params yaml.Node `yaml:"params"`
	// CheckpointFile resumes an earlier result instead, applying
	// InitCallback first.
	CheckpointFile string               `yaml:"checkpoint_file"`
	InitCallback   *checkpoint.Callback `yaml:"init_callback"`
	Checkpoints    checkpoint.Chain     `yaml:"checkpoints"`

	Bundle *param.Bundle `yaml:"-"`
}

// ShouldCleanup reports whether the case directory is removed after
// aggregation. The default is true.
func (d *JobDef) ShouldCleanup() bool {
	return d.Cleanup == nil || *d.Cleanup
}

func LoadJob(path string) (*JobDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job %s: %w", path, err)
	}
	var def JobDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing job %s: %w", path, err)
	}
	if err := validateJob(&def); err != nil {
		return nil, fmt.Errorf("invalid job %s: %w", path, err)
	}
	return &def, nil
}

func validateJob(d *JobDef) error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if d.Generator == "" {
		return fmt.Errorf("generator is required")
	}
	if d.Ext == "" {
		d.Ext = frame.ExtBinary
	}
	if d.Ext != frame.ExtJSON && d.Ext != frame.ExtBinary {
		return fmt.Errorf("ext must be %q or %q", frame.ExtJSON, frame.ExtBinary)
	}

	hasParams := d.Params.Kind != 0
	switch {
	case hasParams && d.CheckpointFile != "":
		return fmt.Errorf("params and checkpoint_file are mutually exclusive")
	case !hasParams && d.CheckpointFile == "":
		return fmt.Errorf("params or checkpoint_file is required")
	case hasParams:
		b, err := param.ParseBundle(&d.Params)
		if err != nil {
			return fmt.Errorf("params: %w", err)
		}
		if err := b.Validate(); err != nil {
			return fmt.Errorf("params: %w", err)
		}
		d.Bundle = b
	}
	if d.InitCallback != nil && d.CheckpointFile == "" {
		return fmt.Errorf("init_callback requires checkpoint_file")
	}

	if d.Resources.Nodes < 1 {
		d.Resources.Nodes = 1
	}
	if d.Resources.Cores < 1 {
		d.Resources.Cores = 1
	}
	if d.Resources.Memory == "" {
		d.Resources.Memory = "4gb"
	}
	if d.Resources.Time == "" {
		d.Resources.Time = "24:00:00"
	}
	if d.Meta.Threads < 1 {
		d.Meta.Threads = d.Resources.Cores
	}
	return nil
}
