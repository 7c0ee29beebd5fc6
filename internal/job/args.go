package job

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/eliotheinrich/pysims/internal/checkpoint"
)

// Args is the content of an argument file: everything a child process needs
// to execute one node at one stage.
type Args struct {
	Submission string               `json:"submission,omitempty"`
	Context    Context              `json:"context"`
	Data       Data                 `json:"data"`
	Callback   *checkpoint.Callback `json:"callback,omitempty"`
	Node       int                  `json:"node"`
	Stage      int                  `json:"stage"`
}

// WriteArgs stores args at path.
func WriteArgs(path string, args *Args) error {
	data, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling args: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating args dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadArgs loads an argument file written by WriteArgs.
func ReadArgs(path string) (*Args, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading args: %w", err)
	}
	var args Args
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("parsing args %s: %w", path, err)
	}
	for _, p := range args.Data.Params {
		p.Normalize()
	}
	if err := args.Context.Validate(); err != nil {
		return nil, fmt.Errorf("args %s: %w", path, err)
	}
	return &args, nil
}

// Run is the child process entry point: it executes the argument file at
// argFile and writes the result to runName's file in the job directory.
func Run(ctx context.Context, env Env, runName, argFile string) (string, error) {
	args, err := ReadArgs(argFile)
	if err != nil {
		return "", err
	}
	return RunArgs(ctx, env, runName, args)
}

// RunArgs is Run with the arguments already loaded.
func RunArgs(ctx context.Context, env Env, runName string, args *Args) (string, error) {
	if env.Log == nil {
		env.Log = zap.NewNop()
	}
	log := env.Log.With(zap.String("job", args.Context.Name), zap.Int("node", args.Node), zap.Int("stage", args.Stage))
	env.Log = log
	log.Info("executing")
	f, err := args.Context.Execute(ctx, env, args.Data, args.Callback)
	if err != nil {
		return "", fmt.Errorf("executing %s: %w", runName, err)
	}
	path := args.Context.Path(runName)
	if err := f.Write(path); err != nil {
		return "", err
	}
	log.Info("wrote result", zap.String("file", path), zap.Int("slides", f.Len()))
	return path, nil
}
