package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/eliotheinrich/pysims/internal/job"
	"github.com/eliotheinrich/pysims/internal/publish"
	"github.com/eliotheinrich/pysims/internal/scheduler"
	"github.com/eliotheinrich/pysims/internal/simulator"
)

// WorkingDirEnv overrides the configured working directory.
const WorkingDirEnv = "WORKING_DIR"

type Config struct {
	WorkingDir string           `yaml:"working_dir"`
	Simulators []simulator.Spec `yaml:"simulators"`
	Scheduler  Scheduler        `yaml:"scheduler"`
	Publish    Publish          `yaml:"publish"`
	Ledger     Ledger           `yaml:"ledger"`
}

type Scheduler struct {
	Submit    []string                `yaml:"submit"`
	Shell     string                  `yaml:"shell"`
	Setup     []string                `yaml:"setup"`
	Partition scheduler.PartitionRule `yaml:"partition"`
	Combine   job.Resources           `yaml:"combine"`
}

type Publish struct {
	S3 *publish.S3Config `yaml:"s3"`
}

type Ledger struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used for every field a file leaves
// unset.
func Default() Config {
	return Config{
		WorkingDir: ".",
		Scheduler: Scheduler{
			Submit:    []string{"sbatch"},
			Shell:     "/bin/bash",
			Partition: scheduler.DefaultPartitionRule(),
			Combine: job.Resources{
				Partition: "shared",
				Nodes:     1,
				Cores:     1,
				Memory:    "50gb",
				Time:      "00:30:00",
			},
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if dir := os.Getenv(WorkingDirEnv); dir != "" {
		cfg.WorkingDir = dir
	}
	if cfg.WorkingDir == "" {
		return fmt.Errorf("working_dir is required")
	}
	abs, err := filepath.Abs(cfg.WorkingDir)
	if err != nil {
		return fmt.Errorf("resolving working_dir: %w", err)
	}
	cfg.WorkingDir = abs

	if len(cfg.Simulators) == 0 {
		return fmt.Errorf("no simulators defined")
	}
	seen := make(map[string]bool)
	for i, s := range cfg.Simulators {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("simulator %d: %w", i, err)
		}
		if seen[s.Name] {
			return fmt.Errorf("simulator %q defined twice", s.Name)
		}
		seen[s.Name] = true
	}

	sc := &cfg.Scheduler
	if len(sc.Submit) == 0 {
		return fmt.Errorf("scheduler.submit must not be empty")
	}
	switch sc.Partition.Rule {
	case scheduler.RuleCores, scheduler.RuleTime:
	default:
		return fmt.Errorf("scheduler.partition.rule must be %q or %q", scheduler.RuleCores, scheduler.RuleTime)
	}
	if sc.Partition.LargeCores < 1 {
		return fmt.Errorf("scheduler.partition.large_cores must be at least 1")
	}
	if sc.Partition.ShortLimit > sc.Partition.MediumLimit {
		return fmt.Errorf("scheduler.partition.short_limit exceeds medium_limit")
	}

	if cfg.Publish.S3 != nil {
		if err := cfg.Publish.S3.Validate(); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	}
	if cfg.Ledger.Enabled && cfg.Ledger.Path == "" {
		cfg.Ledger.Path = filepath.Join(cfg.WorkingDir, "pysims.db")
	}
	return nil
}
