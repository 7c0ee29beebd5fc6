package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
)

// IODir is where the exchange directory is mounted inside a simulator
// container. The container reads request.json and writes response.json.
const IODir = "/io"

// ContainerOpts configures one container run.
type ContainerOpts struct {
	Image       string
	Command     []string
	IODir       string
	Env         map[string]string
	Timeout     time.Duration
	CPULimit    float64
	MemoryLimit int64
}

// ContainerResult is the outcome of a container run.
type ContainerResult struct {
	ExitCode int
	TimedOut bool
	Duration time.Duration
	Logs     string
}

// RunContainer starts a container with the exchange directory bind-mounted
// at IODir, waits for it to exit and removes it.
func RunContainer(ctx context.Context, opts *ContainerOpts) (*ContainerResult, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	defer cli.Close()

	env := []string{"PYSIMS_IO=" + IODir}
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	initTrue := true
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: opts.IODir,
			Target: IODir,
		}},
		Init: &initTrue,
	}
	if opts.CPULimit > 0 {
		hostCfg.NanoCPUs = int64(opts.CPULimit * 1e9)
	}
	if opts.MemoryLimit > 0 {
		hostCfg.Memory = opts.MemoryLimit
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config: &container.Config{
			Image:  opts.Image,
			Cmd:    opts.Command,
			Env:    env,
			Labels: map[string]string{"pysims": "true"},
		},
		HostConfig: hostCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	containerID := createResp.ID
	defer func() {
		cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
	}()

	start := time.Now()
	if _, err := cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("starting container: %w", err)
	}

	waitCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	logs := func() string {
		r, _ := cli.ContainerLogs(context.Background(), containerID, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true, Tail: "100"})
		if r == nil {
			return ""
		}
		defer r.Close()
		data, _ := io.ReadAll(r)
		return string(data)
	}

	wait := cli.ContainerWait(waitCtx, containerID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
	for {
		select {
		case err := <-wait.Error:
			if err != nil {
				cli.ContainerKill(context.Background(), containerID, client.ContainerKillOptions{Signal: "SIGKILL"})
				if !IsWaitTimeout(ctx, err) {
					return nil, fmt.Errorf("waiting for container: %w", err)
				}
				return &ContainerResult{
					ExitCode: 124,
					TimedOut: true,
					Duration: time.Since(start),
					Logs:     logs(),
				}, nil
			}
		case status := <-wait.Result:
			return &ContainerResult{
				ExitCode: int(status.StatusCode),
				Duration: time.Since(start),
				Logs:     logs(),
			}, nil
		}
	}
}

// IsWaitTimeout reports whether a wait error is the run's own deadline
// expiring rather than a cancelled parent or a daemon failure.
func IsWaitTimeout(parent context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil
}

// containerConfig runs one container per run.
type containerConfig struct {
	base
	spec Spec
}

func (c *containerConfig) Run(ctx context.Context, meta RunMeta) (*Response, error) {
	dir, err := os.MkdirTemp("", "pysims-io-")
	if err != nil {
		return nil, fmt.Errorf("creating exchange dir: %w", err)
	}
	defer os.RemoveAll(dir)

	req, err := json.Marshal(c.request(meta))
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "request.json"), req, 0o644); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	res, err := RunContainer(ctx, &ContainerOpts{
		Image:       c.spec.Image,
		IODir:       dir,
		Env:         c.spec.Env,
		Timeout:     c.spec.Timeout(),
		CPULimit:    c.spec.CPULimit,
		MemoryLimit: c.spec.MemoryLimit,
	})
	if err != nil {
		return nil, err
	}
	if res.TimedOut {
		return nil, fmt.Errorf("%s timed out after %s: %s", c.tag, res.Duration.Round(time.Second), res.Logs)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("%s exited with code %d: %s", c.tag, res.ExitCode, res.Logs)
	}
	data, err := os.ReadFile(filepath.Join(dir, "response.json"))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return DecodeResponse(data)
}
