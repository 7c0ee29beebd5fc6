package simulator

import (
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/eliotheinrich/pysims/internal/param"
)

// Spec is the site definition of one simulator. Exactly one of Command and
// Image is set: a command simulator is a local executable, an image
// simulator runs in a container per run.
type Spec struct {
	Name           string            `yaml:"name" json:"name"`
	Command        []string          `yaml:"command,omitempty" json:"command,omitempty"`
	Image          string            `yaml:"image,omitempty" json:"image,omitempty"`
	Env            map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Optional       bool              `yaml:"optional,omitempty" json:"optional,omitempty"`
	TimeoutMinutes int               `yaml:"timeout_minutes,omitempty" json:"timeout_minutes,omitempty"`
	CPULimit       float64           `yaml:"cpu_limit,omitempty" json:"cpu_limit,omitempty"`
	MemoryLimit    int64             `yaml:"memory_limit,omitempty" json:"memory_limit,omitempty"`
}

// Timeout returns the per-run time limit, zero meaning none.
func (s Spec) Timeout() time.Duration {
	return time.Duration(s.TimeoutMinutes) * time.Minute
}

// Validate checks the spec's shape without touching the system.
func (s Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("simulator name is required")
	}
	switch {
	case len(s.Command) > 0 && s.Image != "":
		return fmt.Errorf("simulator %q: command and image are mutually exclusive", s.Name)
	case len(s.Command) == 0 && s.Image == "":
		return fmt.Errorf("simulator %q: command or image is required", s.Name)
	}
	return nil
}

// NewFactory resolves s into a Factory. A command simulator's executable
// must be found on PATH.
func NewFactory(s Spec) (Factory, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.Image != "" {
		return func(p param.Record) (Config, error) {
			return &containerConfig{base: base{tag: s.Name, params: p}, spec: s}, nil
		}, nil
	}
	path, err := exec.LookPath(s.Command[0])
	if err != nil {
		return nil, fmt.Errorf("simulator %q: %w", s.Name, err)
	}
	args := append([]string(nil), s.Command[1:]...)
	return func(p param.Record) (Config, error) {
		return &processConfig{base: base{tag: s.Name, params: p}, path: path, args: args, spec: s}, nil
	}, nil
}

// LoadRegistry registers every simulator in specs. Optional simulators that
// cannot be resolved are skipped with a warning; any other failure is
// returned. Loading succeeds only if at least one simulator remains.
func LoadRegistry(specs []Spec, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := NewRegistry()
	for _, s := range specs {
		f, err := NewFactory(s)
		if err != nil {
			if s.Optional {
				log.Warn("skipping optional simulator", zap.String("simulator", s.Name), zap.Error(err))
				continue
			}
			return nil, err
		}
		r.Register(s.Name, f)
		r.mu.Lock()
		r.specs[s.Name] = s
		r.mu.Unlock()
		log.Debug("registered simulator", zap.String("simulator", s.Name))
	}
	if len(r.Tags()) == 0 {
		return nil, ErrNoSimulators
	}
	return r, nil
}
