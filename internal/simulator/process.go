package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// processConfig runs a local executable once per run. The request is
// written to stdin and the response read from stdout.
type processConfig struct {
	base
	path string
	args []string
	spec Spec
}

func (c *processConfig) Run(ctx context.Context, meta RunMeta) (*Response, error) {
	if t := c.spec.Timeout(); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	req, err := json.Marshal(c.request(meta))
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	cmd := exec.CommandContext(ctx, c.path, c.args...)
	cmd.Stdin = bytes.NewReader(req)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = os.Environ()
	for k, v := range c.spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("running %s: %w: %s", c.tag, err, strings.TrimSpace(stderr.String()))
	}
	return DecodeResponse(stdout.Bytes())
}
