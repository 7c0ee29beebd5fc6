package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/eliotheinrich/pysims/internal/param"
	"github.com/eliotheinrich/pysims/internal/simulator"
)

// ErrDryRun reports a generator that failed to build a configuration in an
// isolated process.
var ErrDryRun = errors.New("config generator dry run failed")

// Probe builds exactly one configuration from record in a separate process
// before anything is submitted. command is the probe entry point; the
// argument file path is appended to it. The child's output is returned in
// the error on failure.
func (c *Context) Probe(ctx context.Context, record param.Record, command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("%w: no probe command", ErrDryRun)
	}
	dir, err := os.MkdirTemp("", "pysims-probe-")
	if err != nil {
		return fmt.Errorf("creating probe dir: %w", err)
	}
	defer os.RemoveAll(dir)

	argFile := filepath.Join(dir, "probe.json")
	if err := WriteArgs(argFile, &Args{Context: *c, Data: Data{Params: []param.Record{record}}}); err != nil {
		return err
	}
	argv := append(append([]string(nil), command[1:]...), argFile)
	cmd := exec.CommandContext(ctx, command[0], argv...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %v\n%s", ErrDryRun, c.Generator, err, strings.TrimSpace(out.String()))
	}
	return nil
}

// ProbeArgs is the child side of Probe: it resolves the generator from the
// argument file and builds one configuration without running it.
func ProbeArgs(argFile string) error {
	args, err := ReadArgs(argFile)
	if err != nil {
		return err
	}
	if len(args.Data.Params) == 0 {
		return fmt.Errorf("probe %s: no parameter record", argFile)
	}
	f, err := simulator.NewFactory(args.Context.Simulator)
	if err != nil {
		return err
	}
	r := simulator.NewRegistry()
	r.Register(args.Context.Generator, f)
	_, err = r.Build(args.Context.Generator, args.Data.Params[0])
	return err
}

// SelfProbeCommand returns the probe command of the running binary.
func SelfProbeCommand() ([]string, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable: %w", err)
	}
	return []string{exe, "probe"}, nil
}
