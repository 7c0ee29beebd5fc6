//go:build integration

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/eliotheinrich/pysims/internal/frame"
	"github.com/eliotheinrich/pysims/internal/result"
)

const simulatorScript = `#!/bin/sh
cat > /dev/null
echo '{"data": {"x": [1.5]}}'
`

const siteConfig = `simulators:
  - name: constant
    command: [sh, %s]
ledger:
  enabled: true
`

const jobFile = `name: e2e
generator: constant
ext: json
nodes: 2
metaparams:
  runs: 2
params:
  p: [0.1, 0.2, 0.3]
checkpoints:
  - op: noop
`

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// buildBinary compiles the CLI so the probe and child entry points are the
// real ones.
func buildBinary(t *testing.T) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "pysims")
	c := exec.Command("go", "build", "-o", bin, ".")
	if out, err := c.CombinedOutput(); err != nil {
		t.Fatalf("go build: %v\n%s", err, out)
	}
	return bin
}

func TestLocalSubmissionEndToEnd(t *testing.T) {
	bin := buildBinary(t)
	work := t.TempDir()

	script := filepath.Join(work, "constant.sh")
	write(t, script, simulatorScript)
	cfgPath := filepath.Join(work, "pysims.yaml")
	write(t, cfgPath, "working_dir: "+work+"\n"+fmt.Sprintf(siteConfig, script))
	jobPath := filepath.Join(work, "job.yaml")
	write(t, jobPath, jobFile)

	c := exec.Command(bin, "--config", cfgPath, "submit", "--local", jobPath)
	if out, err := c.CombinedOutput(); err != nil {
		t.Fatalf("submit: %v\n%s", err, out)
	}

	f, err := frame.Read(filepath.Join(result.DataDir(work), "e2e.json"))
	if err != nil {
		t.Fatalf("reading aggregate: %v", err)
	}
	if f.Len() != 3 {
		t.Fatalf("expected 3 slides, got %d", f.Len())
	}
	for i, s := range f.Slides {
		samples := s.Data["x"]
		if len(samples) != 2 {
			t.Errorf("slide %d: expected 2 runs, got %d", i, len(samples))
			continue
		}
		if got := samples[0].Mean; len(got) != 2 || got[0] != 1.5 || got[1] != 1.5 {
			t.Errorf("slide %d: expected extended series [1.5 1.5], got %v", i, got)
		}
	}
	if _, err := os.Stat(result.CaseDir(work, "e2e")); !os.IsNotExist(err) {
		t.Errorf("expected case dir to be removed, stat err = %v", err)
	}

	c = exec.Command(bin, "--config", cfgPath, "status", "e2e")
	out, err := c.CombinedOutput()
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
}
