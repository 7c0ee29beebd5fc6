package result

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/eliotheinrich/pysims/internal/frame"
	"github.com/eliotheinrich/pysims/internal/publish"
)

// ErrNoResults reports an aggregation that found no usable file.
var ErrNoResults = errors.New("no result files to combine")

// Match is one result file found for a job.
type Match struct {
	Path  string
	Node  int
	Stage int // -1 when the name carries no stage
}

// Pattern returns the file name pattern of job. With checkpoints >= 0 only
// names of the final stage, or with no stage, match.
func Pattern(job string, checkpoints int) *regexp.Regexp {
	stage := `(\d+)`
	if checkpoints >= 0 {
		stage = `(` + strconv.Itoa(checkpoints) + `)`
	}
	return regexp.MustCompile(`^` + regexp.QuoteMeta(job) + `_(\d+)(?:_` + stage + `)?\.(json|eve)$`)
}

// Scan lists the result files of job in dir, ordered by node then stage.
func Scan(dir, job string, checkpoints int) ([]Match, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	re := Pattern(job, checkpoints)
	var matches []Match
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		node, _ := strconv.Atoi(m[1])
		stage := -1
		if m[2] != "" {
			stage, _ = strconv.Atoi(m[2])
		}
		matches = append(matches, Match{Path: filepath.Join(dir, e.Name()), Node: node, Stage: stage})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Node != matches[j].Node {
			return matches[i].Node < matches[j].Node
		}
		if matches[i].Stage != matches[j].Stage {
			return matches[i].Stage < matches[j].Stage
		}
		return matches[i].Path < matches[j].Path
	})
	return matches, nil
}

// Combine reads and combines files. A file that cannot be read or combined
// is logged and skipped. With average set every file is reduced on its own
// and the total is reduced once at the end, so the result depends only on
// the set of files and not on the order they are passed in.
func Combine(files []string, average bool, log *zap.Logger) (*frame.Frame, int) {
	if log == nil {
		log = zap.NewNop()
	}
	total := frame.New()
	used := 0
	for _, path := range files {
		f, err := frame.Read(path)
		if err != nil {
			log.Warn("skipping unreadable result", zap.String("file", path), zap.Error(err))
			continue
		}
		if average {
			if err := f.Reduce(); err != nil {
				log.Warn("skipping irreducible result", zap.String("file", path), zap.Error(err))
				continue
			}
		}
		next, err := frame.Combine(total, f)
		if err != nil {
			log.Warn("skipping incompatible result", zap.String("file", path), zap.Error(err))
			continue
		}
		total = next
		used++
	}
	if average {
		if err := total.Reduce(); err != nil {
			log.Error("reducing combined results", zap.Error(err))
		}
	}
	return total, used
}

// Aggregate combines every eligible result file of the plan.
func (p *Plan) Aggregate(log *zap.Logger) (*frame.Frame, error) {
	matches, err := Scan(p.Dir, p.Job, p.Checkpoints)
	if err != nil {
		return nil, err
	}
	files := make([]string, len(matches))
	for i, m := range matches {
		files[i] = m.Path
	}
	f, used := Combine(files, p.Average, log)
	if used == 0 {
		return nil, fmt.Errorf("%w: job %s in %s", ErrNoResults, p.Job, p.Dir)
	}
	return f, nil
}

// Finalize aggregates the plan, writes {Job}.{Ext} into the case directory,
// publishes it and, if requested, removes the case directory. It returns the
// published location.
func (p *Plan) Finalize(ctx context.Context, sink publish.Sink, log *zap.Logger) (string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if sink == nil {
		sink = publish.DirSink{Dir: p.DataDir}
	}
	f, err := p.Aggregate(log)
	if err != nil {
		return "", err
	}
	out := filepath.Join(p.Dir, p.Job+"."+p.Ext)
	if err := f.Write(out); err != nil {
		return "", err
	}
	dst, err := sink.Publish(ctx, out)
	if err != nil {
		return "", err
	}
	log.Info("aggregate published",
		zap.String("job", p.Job),
		zap.String("file", dst),
		zap.Int("slides", f.Len()),
		zap.Int("num_jobs", f.Metadata.NumJobs),
		zap.Float64("total_time", f.Metadata.TotalTime))
	if p.Cleanup {
		if err := os.RemoveAll(p.Dir); err != nil {
			return dst, fmt.Errorf("removing case dir: %w", err)
		}
	}
	return dst, nil
}
