// Package report summarizes a result file for a terminal or a notebook.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/eliotheinrich/pysims/internal/frame"
	"github.com/eliotheinrich/pysims/internal/param"
)

type SlideSummary struct {
	Params      param.Record `json:"params"`
	Runs        int          `json:"runs"`
	Observables []string     `json:"observables"`
	Width       int          `json:"width"`
	HasState    bool         `json:"has_state"`
}

type Summary struct {
	File     string         `json:"file"`
	Params   param.Record   `json:"params"`
	Metadata frame.Metadata `json:"metadata"`
	Slides   []SlideSummary `json:"slides"`
}

// Generate reads the frame at path and writes a summary in format.
func Generate(path, format string, w io.Writer) error {
	f, err := frame.Read(path)
	if err != nil {
		return err
	}
	s := Summarize(f)
	s.File = path

	switch format {
	case "markdown":
		return writeMarkdown(s, w)
	case "json":
		return writeJSON(s, w)
	default:
		return writeTable(s, w)
	}
}

func Summarize(f *frame.Frame) *Summary {
	s := &Summary{Params: f.Params, Metadata: f.Metadata}
	for _, sl := range f.Slides {
		keys := make([]string, 0, len(sl.Data))
		width := 0
		for k, samples := range sl.Data {
			keys = append(keys, k)
			if len(samples) > 0 {
				width = max(width, len(samples[0].Mean))
			}
		}
		sort.Strings(keys)
		s.Slides = append(s.Slides, SlideSummary{
			Params:      sl.Params,
			Runs:        sl.Runs(),
			Observables: keys,
			Width:       width,
			HasState:    len(sl.State) > 0,
		})
	}
	return s
}

func formatParams(r param.Record) string {
	keys := r.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, r[k])
	}
	return strings.Join(parts, " ")
}

func writeTable(s *Summary, w io.Writer) error {
	m := s.Metadata
	fmt.Fprintf(w, "%s: %d slides, %d jobs, %d threads, %d runs, %.1fs\n",
		s.File, len(s.Slides), m.NumJobs, m.NumThreads, m.NumRuns, m.TotalTime)
	if len(s.Params) > 0 {
		fmt.Fprintf(w, "shared: %s\n", formatParams(s.Params))
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLIDE\tPARAMS\tRUNS\tWIDTH\tOBSERVABLES")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for i, sl := range s.Slides {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n",
			i, formatParams(sl.Params), sl.Runs, sl.Width, strings.Join(sl.Observables, ","))
	}
	return tw.Flush()
}

func writeMarkdown(s *Summary, w io.Writer) error {
	m := s.Metadata
	fmt.Fprintf(w, "**%s**: %d slides, %d jobs, %d runs, %.1fs\n\n", s.File, len(s.Slides), m.NumJobs, m.NumRuns, m.TotalTime)
	fmt.Fprintln(w, "| Slide | Params | Runs | Width | Observables |")
	fmt.Fprintln(w, "|---|---|---|---|---|")
	for i, sl := range s.Slides {
		fmt.Fprintf(w, "| %d | %s | %d | %d | %s |\n",
			i, formatParams(sl.Params), sl.Runs, sl.Width, strings.Join(sl.Observables, ", "))
	}
	return nil
}

func writeJSON(s *Summary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
