package printlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/five82/moonterm/internal/state"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "nested", "prints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLog_AppendAndRecent(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, l.Append(ctx, Entry{Filename: "a.gcode", Duration: 90 * time.Minute, FilamentUsed: 1234.5, Status: Completed, RecordedAt: at}))
	require.NoError(t, l.Append(ctx, Entry{Filename: "b.gcode", Duration: time.Minute, Status: Cancelled, RecordedAt: at.Add(time.Hour)}))

	got, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "b.gcode", got[0].Filename, "newest first")
	require.Equal(t, Cancelled, got[0].Status)
	require.Equal(t, 90*time.Minute, got[1].Duration)
	require.InDelta(t, 1234.5, got[1].FilamentUsed, 1e-9)
	require.True(t, got[1].RecordedAt.Equal(at))

	got, err = l.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestLog_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prints.db")
	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(context.Background(), Entry{Filename: "a.gcode", Status: Completed}))
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()
	got, err := l.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.False(t, got[0].RecordedAt.IsZero())
}

type memAppender struct {
	entries []Entry
}

func (m *memAppender) Append(_ context.Context, e Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func TestTracker_RecordsOncePerTransition(t *testing.T) {
	mem := &memAppender{}
	tr := NewTracker(mem, nil)

	printing := state.Snapshot{JobState: "printing", Filename: "cube.gcode", PrintDuration: time.Hour}
	complete := printing
	complete.JobState = "complete"
	complete.FilamentUsed = state.Known(500)

	tr.Observe(state.Snapshot{JobState: "standby"}, printing)
	tr.Observe(printing, printing)
	tr.Observe(printing, complete)
	tr.Observe(complete, complete)

	require.Len(t, mem.entries, 1)
	require.Equal(t, Entry{Filename: "cube.gcode", Duration: time.Hour, FilamentUsed: 500, Status: Completed}, mem.entries[0])
}

func TestTracker_Cancelled(t *testing.T) {
	mem := &memAppender{}
	var recorded []Entry
	tr := NewTracker(mem, nil)
	tr.OnRecord = func(e Entry) { recorded = append(recorded, e) }

	paused := state.Snapshot{JobState: "paused", Filename: "x.gcode"}
	cancelled := state.Snapshot{JobState: "cancelled"}
	tr.Observe(paused, cancelled)

	require.Len(t, mem.entries, 1)
	require.Equal(t, Cancelled, mem.entries[0].Status)
	require.Equal(t, "x.gcode", mem.entries[0].Filename, "falls back to the previous filename")
	require.Len(t, recorded, 1)
}

func TestTracker_IgnoresOtherTransitions(t *testing.T) {
	mem := &memAppender{}
	tr := NewTracker(mem, nil)
	tr.Observe(state.Snapshot{JobState: "standby"}, state.Snapshot{JobState: "complete"})
	tr.Observe(state.Snapshot{JobState: "printing"}, state.Snapshot{JobState: "error"})
	require.Empty(t, mem.entries)

	var nilTracker *Tracker
	nilTracker.Observe(state.Snapshot{}, state.Snapshot{})
}
