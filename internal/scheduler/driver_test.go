package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/simcampaign/internal/backend"
	"github.com/aristath/simcampaign/internal/events"
)

func driverTask(t *testing.T, name string, b backend.Backend, retry RetryConfig, deps ...string) *Task {
	t.Helper()
	task, err := NewTask(TaskConfig{
		Project:   name,
		WorkDir:   t.TempDir(),
		DependsOn: deps,
		Backend:   b,
		Retry:     retry,
	})
	require.NoError(t, err)
	require.NoError(t, task.AddStep(scriptStep(t, "prep")))
	return task
}

func newTestDriver(t *testing.T, tasks []*Task, tweak func(*DriverConfig)) (*Driver, *recorder) {
	t.Helper()
	c := NewCampaign()
	for _, task := range tasks {
		require.NoError(t, c.Add(task))
	}
	rec := &recorder{}
	cfg := DriverConfig{
		Campaign:  c,
		Publisher: rec,
		Sleep:     func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
	if tweak != nil {
		tweak(&cfg)
	}
	d, err := NewDriver(cfg)
	require.NoError(t, err)
	return d, rec
}

func progressEvents(r *recorder) []events.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.ProgressEvent
	for _, ev := range r.events {
		if p, ok := ev.(events.ProgressEvent); ok {
			out = append(out, p)
		}
	}
	return out
}

func TestNewDriverValidation(t *testing.T) {
	_, err := NewDriver(DriverConfig{})
	assert.Error(t, err)

	c := NewCampaign()
	b := &fakeBackend{}
	require.NoError(t, c.Add(driverTask(t, "A", b, RetryConfig{}, "B")))
	require.NoError(t, c.Add(driverTask(t, "B", b, RetryConfig{}, "A")))
	_, err = NewDriver(DriverConfig{Campaign: c})
	assert.ErrorContains(t, err, "cycle")
}

func TestDriverWaitsForDependencies(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	b := &fakeBackend{writeLog: "[info] ok\n"}
	a := driverTask(t, "A", b, RetryConfig{})
	dep := driverTask(t, "B", b, RetryConfig{}, "A")
	d, _ := newTestDriver(t, []*Task{dep, a}, nil)

	ctx := context.Background()

	// Round 1 dispatches A, round 2 completes it. B is not touched.
	for range 2 {
		remaining, err := d.Tick(ctx)
		require.NoError(err)
		assert.Equal(2, remaining)
	}
	require.Len(b.jobs, 1)
	assert.Equal("A.aedt", b.jobs[0].ProjectFile)

	// Round 3 finishes A and gives B its first visit.
	remaining, err := d.Tick(ctx)
	require.NoError(err)
	assert.Equal(1, remaining)
	assert.True(a.Done())
	require.Len(b.jobs, 2)
	assert.Equal("B.aedt", b.jobs[1].ProjectFile)
}

func TestDriverRunsCampaignToCompletion(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	b := &fakeBackend{writeLog: "[info] ok\n"}
	tasks := []*Task{
		driverTask(t, "A", b, RetryConfig{}),
		driverTask(t, "B", b, RetryConfig{}, "A"),
		driverTask(t, "C", b, RetryConfig{}),
	}
	snapshot := filepath.Join(t.TempDir(), "task_status.txt")
	var sleeps int
	d, rec := newTestDriver(t, tasks, func(cfg *DriverConfig) {
		cfg.SnapshotPath = snapshot
		cfg.Interval = time.Minute
		cfg.Sleep = func(_ context.Context, d time.Duration) error {
			assert.Equal(time.Minute, d)
			sleeps++
			return nil
		}
	})

	require.NoError(d.Run(context.Background()))

	for _, task := range tasks {
		assert.True(task.Done(), task.Name())
	}
	assert.Equal(4, sleeps)

	data, err := os.ReadFile(snapshot)
	require.NoError(err)
	assert.ElementsMatch(
		[]string{"A|prep display|O|", "B|prep display|O|", "C|prep display|O|"},
		splitLines(string(data)),
	)

	progress := progressEvents(rec)
	require.Len(progress, 5)
	last := progress[len(progress)-1]
	assert.Equal(5, last.Round)
	assert.Equal(3, last.Total)
	assert.Equal(3, last.Done)
	assert.Zero(last.Failed)

	first := progress[0]
	assert.Equal(2, first.Active)
	assert.Equal(1, first.Waiting)
}

func TestDriverSkipsDependentsOfFailedTask(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	locked := &fakeBackend{writeLog: lockSyndrome}
	ok := &fakeBackend{writeLog: "[info] ok\n"}
	a := driverTask(t, "A", locked, RetryConfig{MaxAttempts: 1})
	b := driverTask(t, "B", ok, RetryConfig{}, "A")
	c := driverTask(t, "C", ok, RetryConfig{}, "B")
	e := driverTask(t, "E", ok, RetryConfig{})
	d, rec := newTestDriver(t, []*Task{a, b, c, e}, func(cfg *DriverConfig) {
		cfg.Sleep = func(context.Context, time.Duration) error { return nil }
	})

	require.NoError(d.Run(context.Background()))

	assert.True(a.Failed())
	assert.True(b.Skipped())
	assert.True(c.Skipped())
	assert.True(e.Done())
	assert.Len(locked.jobs, 2)
	for _, job := range ok.jobs {
		assert.Equal("E.aedt", job.ProjectFile)
	}

	var done []events.TaskDoneEvent
	for _, ev := range rec.events {
		if td, isDone := ev.(events.TaskDoneEvent); isDone {
			done = append(done, td)
		}
	}
	require.Len(done, 4)

	progress := progressEvents(rec)
	last := progress[len(progress)-1]
	assert.Equal(1, last.Done)
	assert.Equal(3, last.Failed)
}

func TestDriverStopsOnContextCancel(t *testing.T) {
	b := &fakeBackend{}
	ctx, cancel := context.WithCancel(context.Background())
	d, _ := newTestDriver(t, []*Task{driverTask(t, "A", b, RetryConfig{})}, func(cfg *DriverConfig) {
		cfg.Sleep = func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}
	})

	err := d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, b.jobs, 1)
}

func TestDriverReturnsConfigurationErrors(t *testing.T) {
	b := &fakeBackend{err: backend.ErrMissingResources}
	d, _ := newTestDriver(t, []*Task{driverTask(t, "A", b, RetryConfig{})}, nil)

	err := d.Run(context.Background())
	assert.ErrorIs(t, err, backend.ErrMissingResources)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleep(context.Background(), time.Millisecond))
}

func splitLines(s string) []string {
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
