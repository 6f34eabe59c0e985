package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "data", "affsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	started := time.Date(2017, 9, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, l.StartRun(ctx, Run{ID: "run-1", Scope: "all", StartedAt: started}))

	run, err := l.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.True(t, started.Equal(run.StartedAt))
	assert.False(t, run.FinishedAt.Valid)
	assert.Zero(t, run.Duration())

	finished := started.Add(90 * time.Second)
	require.NoError(t, l.FinishRun(ctx, Run{
		ID:          "run-1",
		Status:      StatusSucceeded,
		FinishedAt:  sql.NullTime{Time: finished, Valid: true},
		Entrants:    2250,
		Commissions: 342,
	}))

	run, err = l.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)
	assert.Equal(t, 2250, run.Entrants)
	assert.Equal(t, 342, run.Commissions)
	assert.Equal(t, 90*time.Second, run.Duration())
	assert.Empty(t, run.Error)
}

func TestFinishUnknownRun(t *testing.T) {
	l := openTestLedger(t)

	err := l.FinishRun(context.Background(), Run{ID: "missing", Status: StatusFailed})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	base := time.Date(2017, 9, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, l.StartRun(ctx, Run{ID: id, Scope: "all", StartedAt: base.Add(time.Duration(i) * time.Hour)}))
	}
	require.NoError(t, l.FinishRun(ctx, Run{ID: "b", Status: StatusFailed, Error: "HTTP 502: upstream returned an unsuccessful status"}))

	runs, err := l.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.Equal(t, StatusFailed, runs[1].Status)
	assert.Contains(t, runs[1].Error, "HTTP 502")

	all, err := l.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTabWrites(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	require.NoError(t, l.StartRun(ctx, Run{ID: "run-1", Scope: "commissions"}))
	require.NoError(t, l.RecordTabWrite(ctx, TabWrite{RunID: "run-1", Tab: "August", Rows: 2, Created: true, HeaderWritten: true}))
	require.NoError(t, l.RecordTabWrite(ctx, TabWrite{RunID: "run-1", Tab: "September", Rows: 1}))

	writes, err := l.TabWrites(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, writes, 2)
	assert.Equal(t, "August", writes[0].Tab)
	assert.Equal(t, 2, writes[0].Rows)
	assert.True(t, writes[0].Created)
	assert.True(t, writes[0].HeaderWritten)
	assert.Equal(t, "September", writes[1].Tab)
	assert.False(t, writes[1].Created)
	assert.False(t, writes[1].WrittenAt.IsZero())

	none, err := l.TabWrites(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMarkers(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	_, err := l.GetMarker(ctx, "entrants")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, l.SetMarker(ctx, Marker{Source: "entrants", Value: `["a@example.com","Ann"]`, RunID: "run-1"}))
	require.NoError(t, l.SetMarker(ctx, Marker{Source: "entrants", Value: `["b@example.com","Bob"]`, RunID: "run-2"}))

	m, err := l.GetMarker(ctx, "entrants")
	require.NoError(t, err)
	assert.Equal(t, `["b@example.com","Bob"]`, m.Value)
	assert.Equal(t, "run-2", m.RunID)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "affsync.db")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.StartRun(context.Background(), Run{ID: "run-1", Scope: "all"}))
	require.NoError(t, l.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.GetRun(context.Background(), "run-1")
	assert.NoError(t, err)
}
