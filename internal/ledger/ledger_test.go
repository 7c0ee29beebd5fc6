package ledger_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/eliotheinrich/pysims/internal/ledger"
	"github.com/eliotheinrich/pysims/internal/scheduler"
	"github.com/stretchr/testify/require"
)

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "ledger.db")

	l, err := ledger.Open(path, "sweep")
	require.NoError(t, err)
	sub := ledger.NewSubmissionID()
	require.NoError(t, l.Record(ctx, sub, &scheduler.Job{Name: "sweep_0_0", Node: 0, Stage: 0, ID: "101", Script: "/w/sweep_0_0.sh", Status: scheduler.StatusSubmitted}))
	require.NoError(t, l.Record(ctx, sub, &scheduler.Job{Name: "sweep_0_1", Node: 0, Stage: 1, ID: "102", Deps: []string{"101"}, Status: scheduler.StatusSubmitted}))
	require.NoError(t, l.Close())

	other, err := ledger.Open(path, "other")
	require.NoError(t, err)
	defer other.Close()
	require.NoError(t, other.Record(ctx, ledger.NewSubmissionID(), &scheduler.Job{Name: "other", Node: -1, Stage: -1, Status: scheduler.StatusSkipped}))

	entries, err := other.List(ctx, "sweep")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, sub, entries[0].Submission)
	require.Equal(t, "sweep", entries[0].JobName)
	require.Equal(t, "101", entries[0].Job.ID)
	require.Empty(t, entries[0].Job.Deps)
	require.Equal(t, []string{"101"}, entries[1].Job.Deps)
	require.False(t, entries[1].CreatedAt.IsZero())

	all, err := other.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}
