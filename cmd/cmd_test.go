package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eliotheinrich/pysims/internal/config"
	"github.com/eliotheinrich/pysims/internal/frame"
	"github.com/eliotheinrich/pysims/internal/param"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestApplyOverrides(t *testing.T) {
	tests := []struct {
		name      string
		local     bool
		nodes     int
		noCleanup bool
		wantLocal bool
		wantNodes int
		wantClean bool
	}{
		{"no flags", false, 0, false, false, 2, true},
		{"local", true, 0, false, true, 2, true},
		{"nodes", false, 8, false, false, 8, true},
		{"no cleanup", false, 0, true, false, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &config.JobDef{}
			def.Resources.Nodes = 2
			applyOverrides(def, tt.local, tt.nodes, tt.noCleanup)
			if def.Local != tt.wantLocal {
				t.Errorf("Local = %v, want %v", def.Local, tt.wantLocal)
			}
			if def.Resources.Nodes != tt.wantNodes {
				t.Errorf("Nodes = %d, want %d", def.Resources.Nodes, tt.wantNodes)
			}
			if def.ShouldCleanup() != tt.wantClean {
				t.Errorf("ShouldCleanup() = %v, want %v", def.ShouldCleanup(), tt.wantClean)
			}
		})
	}
}

func TestExpandCommand(t *testing.T) {
	out, err := execute(t, "expand", "../testdata/jobs/blocksim.yaml")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if !strings.Contains(out, "node 1:") {
		t.Errorf("expected two nodes in output:\n%s", out)
	}
	if !strings.HasSuffix(out, "8 records\n") {
		t.Errorf("expected record count in output:\n%s", out)
	}

	out, err = execute(t, "expand", "--nodes", "1", "../testdata/jobs/blocksim.yaml")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if strings.Contains(out, "node 1:") {
		t.Errorf("expected a single node with --nodes 1:\n%s", out)
	}
}

func TestExpandResumedJob(t *testing.T) {
	if _, err := execute(t, "expand", "../testdata/jobs/resume.yaml"); err == nil {
		t.Error("expected error for a job without a bundle")
	}
}

func TestListCommand(t *testing.T) {
	t.Setenv(config.WorkingDirEnv, t.TempDir())
	out, err := execute(t, "--config", "../testdata/minimal.yaml", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "blocksim (command: [sh])") {
		t.Errorf("expected blocksim in output:\n%s", out)
	}
}

func writeResult(t *testing.T, path string, p float64) {
	t.Helper()
	s := &frame.Slide{Params: param.Record{"p": p}, Data: map[string][]frame.Sample{"x": {frame.NewSample(p)}}}
	f, err := frame.FromSlides(frame.Metadata{NumJobs: 1, NumRuns: 1}, s)
	if err != nil {
		t.Fatalf("FromSlides: %v", err)
	}
	if err := f.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestCombineAndReportCommands(t *testing.T) {
	dir := t.TempDir()
	writeResult(t, filepath.Join(dir, "sweep_0.json"), 0.1)
	writeResult(t, filepath.Join(dir, "sweep_1.json"), 0.2)
	writeResult(t, filepath.Join(dir, "other_0.json"), 0.3)

	if _, err := execute(t, "--config", filepath.Join(dir, "missing.yaml"),
		"combine", "--job", "sweep", "--dir", dir, "--ext", "json"); err != nil {
		t.Fatalf("combine: %v", err)
	}
	dst := filepath.Join(dir, "sweep.json")
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("expected aggregate at %s: %v", dst, err)
	}

	out, err := execute(t, "report", dst, "--format", "markdown")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.Contains(out, "2 slides, 2 jobs") {
		t.Errorf("unexpected report:\n%s", out)
	}
}

func TestCombineNeedsInput(t *testing.T) {
	if _, err := execute(t, "combine"); err == nil {
		t.Error("expected error without --plan or --job/--dir")
	}
}
