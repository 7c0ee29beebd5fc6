package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CaseDir returns the working directory of job under base.
func CaseDir(base, job string) string {
	return filepath.Join(base, "cases", job+"_case")
}

// DataDir returns the shared data directory under base.
func DataDir(base string) string {
	return filepath.Join(base, "data")
}

// PrepareCaseDir removes any previous working directory of job and creates
// an empty one. Results of an earlier run under the same name are lost.
func PrepareCaseDir(base, job string) (string, error) {
	dir, err := filepath.Abs(CaseDir(base, job))
	if err != nil {
		return "", fmt.Errorf("resolving case dir: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("removing case dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating case dir: %w", err)
	}
	if err := os.MkdirAll(DataDir(base), 0o755); err != nil {
		return "", fmt.Errorf("creating data dir: %w", err)
	}
	return dir, nil
}

// WritePlan stores p as JSON at path.
func WritePlan(path string, p *Plan) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling plan: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadPlan loads a plan written by WritePlan.
func ReadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	return &p, nil
}
