// Package ledger keeps a SQLite record of batch submissions so their
// scheduler IDs can be looked up after the controller has exited.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/eliotheinrich/pysims/internal/scheduler"
)

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	id           TEXT PRIMARY KEY,
	submission   TEXT NOT NULL,
	job          TEXT NOT NULL,
	name         TEXT NOT NULL,
	node         INTEGER NOT NULL,
	stage        INTEGER NOT NULL,
	scheduler_id TEXT NOT NULL DEFAULT '',
	deps         TEXT NOT NULL DEFAULT '[]',
	script       TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS submissions_job ON submissions(job, created_at);
`

// Entry is one recorded job.
type Entry struct {
	Key        string
	Submission string
	JobName    string
	Job        scheduler.Job
	CreatedAt  time.Time
}

// Ledger is an open submission database.
type Ledger struct {
	db  *sql.DB
	job string
	now func() time.Time
}

// NewSubmissionID returns a fresh submission identifier.
func NewSubmissionID() string {
	return uuid.NewString()
}

// Open opens or creates the ledger at path. Jobs recorded through it are
// filed under jobName.
func Open(path, jobName string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return &Ledger{db: db, job: jobName, now: time.Now}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record stores j under submission.
func (l *Ledger) Record(ctx context.Context, submission string, j *scheduler.Job) error {
	deps, err := json.Marshal(j.Deps)
	if err != nil {
		return err
	}
	if j.Deps == nil {
		deps = []byte("[]")
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO submissions (id, submission, job, name, node, stage, scheduler_id, deps, script, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), submission, l.job, j.Name, j.Node, j.Stage, j.ID, string(deps), j.Script, j.Status,
		l.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("recording %s: %w", j.Name, err)
	}
	return nil
}

// List returns the entries of job, or of every job when job is empty, oldest
// first.
func (l *Ledger) List(ctx context.Context, job string) ([]Entry, error) {
	q := `SELECT id, submission, job, name, node, stage, scheduler_id, deps, script, status, created_at
		FROM submissions`
	var args []any
	if job != "" {
		q += ` WHERE job = ?`
		args = append(args, job)
	}
	q += ` ORDER BY created_at, rowid`
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			deps    string
			created string
		)
		if err := rows.Scan(&e.Key, &e.Submission, &e.JobName, &e.Job.Name, &e.Job.Node, &e.Job.Stage,
			&e.Job.ID, &deps, &e.Job.Script, &e.Job.Status, &created); err != nil {
			return nil, fmt.Errorf("scanning submission: %w", err)
		}
		if err := json.Unmarshal([]byte(deps), &e.Job.Deps); err != nil {
			return nil, fmt.Errorf("decoding deps of %s: %w", e.Job.Name, err)
		}
		at, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("decoding time of %s: %w", e.Job.Name, err)
		}
		e.CreatedAt = at
		out = append(out, e)
	}
	return out, rows.Err()
}
