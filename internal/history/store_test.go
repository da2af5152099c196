package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/rapture-inbox/internal/inbox"
	"github.com/teemow/rapture-inbox/internal/instrumentation"
)

func openTestStore(t *testing.T, retention int) *Store {
	t.Helper()

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "history.db"), Options{Retention: retention})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func runAt(start time.Time, result inbox.Result) inbox.Run {
	return inbox.Run{
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Outcome:    inbox.Outcome(result),
		Result:     result,
	}
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(ctx, path, Options{})
	require.NoError(t, err)
	require.NoError(t, s.RecordRun(ctx, runAt(time.Now(), inbox.Result{})))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, Options{})
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRecordRun_RoundTrip(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	result := inbox.Result{
		FilesDownloaded: 2,
		Errors:          []string{"Failed to delete c.md from Drive"},
		Files: []inbox.Transfer{
			{FileID: "a", Name: "a.md", Path: "Rapture/a.md"},
			{FileID: "b", Name: "b.md", Path: "Rapture/b-1.md"},
		},
	}
	require.NoError(t, s.RecordRun(ctx, runAt(start, result)))

	runs, err := s.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got := runs[0]
	assert.NotZero(t, got.ID)
	assert.Equal(t, start, got.StartedAt)
	assert.Equal(t, 1500*time.Millisecond, got.Duration())
	assert.Equal(t, instrumentation.RunResultPartial, got.Outcome)
	assert.True(t, got.Success)
	assert.Equal(t, 2, got.FilesDownloaded)
	assert.Equal(t, result.Errors, got.Errors)
	assert.Equal(t, result.Files, got.Files)
}

func TestRecentRuns_NewestFirstWithLimit(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	for i := range 5 {
		require.NoError(t, s.RecordRun(ctx, runAt(base.Add(time.Duration(i)*time.Minute), inbox.Result{FilesDownloaded: i})))
	}

	runs, err := s.RecentRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, 4, runs[0].FilesDownloaded)
	assert.Equal(t, 3, runs[1].FilesDownloaded)
	assert.Equal(t, 2, runs[2].FilesDownloaded)
	assert.Empty(t, runs[0].Errors)
}

func TestRecordRun_PrunesBeyondRetention(t *testing.T) {
	s := openTestStore(t, 2)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	for i := range 4 {
		require.NoError(t, s.RecordRun(ctx, runAt(base.Add(time.Duration(i)*time.Minute), inbox.Result{
			FilesDownloaded: 1,
			Files:           []inbox.Transfer{{FileID: "f", Name: "n.md", Path: "Rapture/n.md"}},
		})))
	}

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, base.Add(3*time.Minute), runs[0].StartedAt)

	var orphans int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transferred_files WHERE run_id NOT IN (SELECT id FROM sync_runs)`).Scan(&orphans))
	assert.Zero(t, orphans, "file rows cascade with their run")
}
