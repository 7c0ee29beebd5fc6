package report_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eliotheinrich/pysims/internal/frame"
	"github.com/eliotheinrich/pysims/internal/param"
	"github.com/eliotheinrich/pysims/internal/report"
)

func writeFrame(t *testing.T, path string) {
	t.Helper()
	a := &frame.Slide{
		Params: param.Record{"L": 16.0, "p": 0.1},
		Data:   map[string][]frame.Sample{"entropy": {frame.NewSample(1, 2), frame.NewSample(3, 4)}},
		State:  []byte{1},
	}
	b := &frame.Slide{
		Params: param.Record{"L": 16.0, "p": 0.2},
		Data:   map[string][]frame.Sample{"entropy": {frame.NewSample(5, 6)}},
	}
	f, err := frame.FromSlides(frame.Metadata{TotalTime: 2, NumJobs: 1, NumThreads: 4, NumRuns: 2}, a, b)
	if err != nil {
		t.Fatalf("FromSlides: %v", err)
	}
	if err := f.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestGenerateTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.eve")
	writeFrame(t, path)

	var buf bytes.Buffer
	if err := report.Generate(path, "table", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "2 slides") {
		t.Errorf("expected slide count in output:\n%s", output)
	}
	if !strings.Contains(output, "shared: L=16") {
		t.Errorf("expected shared params in output:\n%s", output)
	}
	if !strings.Contains(output, "p=0.2") {
		t.Errorf("expected p=0.2 in output:\n%s", output)
	}
}

func TestGenerateMarkdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.json")
	writeFrame(t, path)

	var buf bytes.Buffer
	if err := report.Generate(path, "markdown", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(buf.String(), "| 0 | p=0.1 | 2 | 2 | entropy |") {
		t.Errorf("unexpected markdown:\n%s", buf.String())
	}
}

func TestGenerateJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.eve")
	writeFrame(t, path)

	var buf bytes.Buffer
	if err := report.Generate(path, "json", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var s report.Summary
	if err := json.Unmarshal(buf.Bytes(), &s); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if len(s.Slides) != 2 || s.Slides[0].Runs != 2 || !s.Slides[0].HasState {
		t.Errorf("unexpected summary %+v", s)
	}
	if s.Metadata.NumRuns != 2 {
		t.Errorf("expected num_runs 2, got %d", s.Metadata.NumRuns)
	}
}

func TestGenerateMissing(t *testing.T) {
	if err := report.Generate(filepath.Join(t.TempDir(), "none.eve"), "table", &bytes.Buffer{}); err == nil {
		t.Error("expected error for missing file")
	}
}
