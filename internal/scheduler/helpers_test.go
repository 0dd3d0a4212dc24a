package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aristath/simcampaign/internal/backend"
	"github.com/aristath/simcampaign/internal/events"
	"github.com/aristath/simcampaign/internal/status"
)

const lockSyndrome = "[error] Project may be opened in another instance of the application.\n"

// fakeBackend records jobs. When writeLog is set, dispatch writes the job's
// log as the application would.
type fakeBackend struct {
	mode     string
	writeLog string
	err      error
	noJobID  bool

	jobs   []backend.Job
	nextID int
}

func (f *fakeBackend) Mode() string {
	if f.mode == "" {
		return backend.ModeLocal
	}
	return f.mode
}

func (f *fakeBackend) Dispatch(_ context.Context, job backend.Job) (backend.Result, error) {
	f.jobs = append(f.jobs, job)
	if f.err != nil {
		return backend.Result{}, f.err
	}
	if f.writeLog != "" {
		if err := os.WriteFile(filepath.Join(job.WorkDir, job.LogFileName), []byte(f.writeLog), 0o644); err != nil {
			return backend.Result{}, err
		}
	}
	if f.Mode() == backend.ModeLocal {
		return backend.Result{JobID: backend.LocalJobID}, nil
	}
	if f.noJobID {
		return backend.Result{JobID: "no job id in: queue closed"}, nil
	}
	f.nextID++
	return backend.Result{JobID: strconv.Itoa(4241 + f.nextID), Tracked: true}, nil
}

// recorder is an events.Publisher keeping every event.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.EventType())
	}
	return out
}

type fakeClock struct{ now time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type taskFixture struct {
	task    *Task
	backend *fakeBackend
	sink    *status.Buffer
	events  *recorder
	clock   *fakeClock
	dir     string
}

func newTaskFixture(t *testing.T, b *fakeBackend, tweak func(*TaskConfig), steps ...*Step) *taskFixture {
	t.Helper()
	f := &taskFixture{
		backend: b,
		sink:    &status.Buffer{},
		events:  &recorder{},
		clock:   newFakeClock(),
		dir:     t.TempDir(),
	}
	cfg := TaskConfig{
		Project:   "O2_qb_gap_20",
		WorkDir:   f.dir,
		Backend:   b,
		Sink:      f.sink,
		Publisher: f.events,
		Now:       f.clock.Now,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	task, err := NewTask(cfg)
	require.NoError(t, err)
	for _, s := range steps {
		require.NoError(t, task.AddStep(s))
	}
	f.task = task
	return f
}

func (f *taskFixture) path(name string) string { return filepath.Join(f.dir, name) }

func (f *taskFixture) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.path(name), []byte(content), 0o644))
}

func (f *taskFixture) exec(t *testing.T) {
	t.Helper()
	require.NoError(t, f.task.ExecuteStep(context.Background()))
}

func scriptStep(t *testing.T, name string) *Step {
	t.Helper()
	s, err := NewStep(name, name+" display", Script{Path: name + ".vbs"}, backend.Resources{})
	require.NoError(t, err)
	return s
}

func analysisStep(t *testing.T, name string, cores int) *Step {
	t.Helper()
	res, err := backend.NewResources(cores, 10*time.Hour, backend.WithMemory(6400))
	require.NoError(t, err)
	s, err := NewStep(name, name, Analysis{Design: "qubit", Setup: "Setup1", LogFile: name + ".log"}, res)
	require.NoError(t, err)
	return s
}

func computeStep(t *testing.T, name string, fn ComputeFunc) *Step {
	t.Helper()
	s, err := NewStep(name, name, Compute{Func: fn, Args: map[string]any{"n": 1}}, backend.Resources{})
	require.NoError(t, err)
	return s
}
