package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/simcampaign/internal/events"
)

// testStore creates an in-memory store with a controllable clock.
func testStore(t *testing.T) (*SQLiteStore, *time.Time) {
	t.Helper()
	store, err := NewMemoryStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, &now
}

func TestRunLifecycle(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()

	store, now := testStore(t)

	run, err := store.StartRun(ctx, "gap_sweep", "cluster")
	require.NoError(err)
	assert.Len(run.ID, 26)
	assert.Equal(RunRunning, run.Status)

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(err)
	assert.Equal(run.ID, got.ID)
	assert.Equal("gap_sweep", got.Campaign)
	assert.Equal("cluster", got.Mode)
	assert.True(got.StartedAt.Equal(*now))
	assert.True(got.FinishedAt.IsZero())

	*now = now.Add(90 * time.Minute)
	require.NoError(store.FinishRun(ctx, run.ID, nil))

	got, err = store.GetRun(ctx, run.ID)
	require.NoError(err)
	assert.Equal(RunSucceeded, got.Status)
	assert.Empty(got.Err)
	assert.Equal(90*time.Minute, got.FinishedAt.Sub(got.StartedAt))
}

func TestFinishRunStatus(t *testing.T) {
	tests := map[string]struct {
		err        error
		wantStatus string
		wantErr    string
	}{
		"success": {
			wantStatus: RunSucceeded,
		},
		"interrupted": {
			err:        context.Canceled,
			wantStatus: RunInterrupted,
			wantErr:    "context canceled",
		},
		"failed": {
			err:        errors.New("missing resources"),
			wantStatus: RunFailed,
			wantErr:    "missing resources",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store, _ := testStore(t)

			run, err := store.StartRun(ctx, "c", "local")
			require.NoError(t, err)
			require.NoError(t, store.FinishRun(ctx, run.ID, test.err))

			got, err := store.GetRun(ctx, run.ID)
			require.NoError(t, err)
			assert.Equal(t, test.wantStatus, got.Status)
			assert.Equal(t, test.wantErr, got.Err)
		})
	}
}

func TestUnknownRun(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t)

	_, err := store.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, store.FinishRun(ctx, "nope", nil), ErrRunNotFound)
}

func TestListRunsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	store, now := testStore(t)

	first, err := store.StartRun(ctx, "a", "local")
	require.NoError(t, err)
	*now = now.Add(time.Second)
	second, err := store.StartRun(ctx, "b", "local")
	require.NoError(t, err)

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)
}

func TestRecordEventAndHistory(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()

	store, now := testStore(t)
	run, err := store.StartRun(ctx, "c", "cluster")
	require.NoError(err)

	evs := []events.Event{
		events.StepDispatchedEvent{Task: "O2", Step: "sweep", Mode: "cluster", JobID: "4242", Tracked: true, Attempt: 1, Timestamp: *now},
		events.StatusLineEvent{Task: "O2", Line: "Executing sweep", Timestamp: *now},
		events.StepRequeuedEvent{Task: "O2", Step: "sweep", Attempt: 1, RetryAt: now.Add(time.Minute), Timestamp: *now},
		events.StepDispatchedEvent{Task: "O3", Step: "prep", Mode: "cluster", JobID: "no job id in: closed", Attempt: 1, Timestamp: *now},
		events.StepCompletedEvent{Task: "O2", Step: "sweep", Findings: 2, Timestamp: *now},
		events.ProgressEvent{Round: 1, Total: 2},
		events.TaskDoneEvent{Task: "O2", Report: "O2|sweep|O|", Timestamp: *now},
	}
	for _, ev := range evs {
		require.NoError(store.RecordEvent(ctx, run.ID, ev))
	}

	all, err := store.History(ctx, run.ID, "")
	require.NoError(err)
	require.Len(all, 5)

	o2, err := store.History(ctx, run.ID, "O2")
	require.NoError(err)
	require.Len(o2, 4)

	var types []string
	for _, r := range o2 {
		types = append(types, r.Type)
	}
	assert.Equal([]string{
		events.EventTypeStepDispatched,
		events.EventTypeStepRequeued,
		events.EventTypeStepCompleted,
		events.EventTypeTaskDone,
	}, types)

	assert.Equal("4242", o2[0].JobID)
	assert.Equal(1, o2[0].Attempt)
	assert.Equal("cluster", o2[0].Detail)
	assert.Equal("findings=2", o2[2].Detail)
	assert.Equal("done O2|sweep|O|", o2[3].Detail)

	o3, err := store.History(ctx, run.ID, "O3")
	require.NoError(err)
	require.Len(o3, 1)
	assert.Equal("cluster untracked", o3[0].Detail)
}

func TestRecordEventRequiresRun(t *testing.T) {
	store, _ := testStore(t)
	err := store.RecordEvent(context.Background(), "missing", events.TaskDoneEvent{Task: "x"})
	assert.Error(t, err)
}

func TestFileStoreCreatesParents(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "journal.db")

	store, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	run, err := store.StartRun(ctx, "c", "local")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "c", got.Campaign)
}
