package scheduler

import (
	"fmt"
	"os"
	"strings"
	"text/template"
)

// Script is a batch job script: resource directives followed by setup lines
// and one command.
type Script struct {
	Name      string
	Partition string
	Cores     int
	Memory    string
	Time      string
	Output    string
	Shell     string
	Setup     []string
	Command   []string
}

var scriptTmpl = template.Must(template.New("script").Funcs(template.FuncMap{
	"quote": shellJoin,
}).Parse(`#!{{.Shell}}
#SBATCH --job-name={{.Name}}
{{- if .Partition}}
#SBATCH --partition={{.Partition}}
{{- end}}
#SBATCH --nodes=1
#SBATCH --ntasks=1
#SBATCH --cpus-per-task={{.Cores}}
{{- if .Memory}}
#SBATCH --mem={{.Memory}}
{{- end}}
{{- if .Time}}
#SBATCH --time={{.Time}}
{{- end}}
{{- if .Output}}
#SBATCH --output={{.Output}}
{{- end}}
{{range .Setup}}
{{.}}
{{- end}}
{{quote .Command}}
`))

// Render returns the script text.
func (s *Script) Render() (string, error) {
	if s.Shell == "" {
		s.Shell = "/bin/bash"
	}
	if s.Cores < 1 {
		s.Cores = 1
	}
	var sb strings.Builder
	if err := scriptTmpl.Execute(&sb, s); err != nil {
		return "", fmt.Errorf("rendering script %s: %w", s.Name, err)
	}
	return sb.String(), nil
}

// Write renders s to path.
func (s *Script) Write(path string) error {
	text, err := s.Render()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(text), 0o755)
}

func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:,+@%", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
