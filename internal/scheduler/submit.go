package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrDependencyUnavailable reports a job whose dependency was never
// submitted.
var ErrDependencyUnavailable = errors.New("dependency was not submitted")

// Submitter queues a script and returns the scheduler's job ID. The job
// starts only after every job in deps has reached a terminal state,
// whatever its exit status.
type Submitter interface {
	Submit(ctx context.Context, script string, deps []string) (string, error)
}

// Sbatch submits with SLURM's sbatch.
type Sbatch struct {
	// Command is the submit command; the default is sbatch.
	Command []string
}

// DependencyFlag renders the afterany dependency option for deps.
func DependencyFlag(deps []string) string {
	return "--dependency=afterany:" + strings.Join(deps, ":")
}

func (s Sbatch) Submit(ctx context.Context, script string, deps []string) (string, error) {
	command := s.Command
	if len(command) == 0 {
		command = []string{"sbatch"}
	}
	args := append([]string(nil), command[1:]...)
	if len(deps) > 0 {
		args = append(args, DependencyFlag(deps))
	}
	args = append(args, script)

	cmd := exec.CommandContext(ctx, command[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("submitting %s: %w: %s", script, err, strings.TrimSpace(stderr.String()))
	}
	fields := strings.Fields(stdout.String())
	if len(fields) == 0 {
		return "", fmt.Errorf("submitting %s: no job id in output", script)
	}
	return fields[len(fields)-1], nil
}
