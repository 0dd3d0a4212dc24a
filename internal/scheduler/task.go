package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aristath/simcampaign/internal/backend"
	"github.com/aristath/simcampaign/internal/detector"
	"github.com/aristath/simcampaign/internal/events"
	"github.com/aristath/simcampaign/internal/log"
	"github.com/aristath/simcampaign/internal/recovery"
	"github.com/aristath/simcampaign/internal/status"
)

// ErrTaskStarted is returned when steps are added to a task already polled.
var ErrTaskStarted = errors.New("steps cannot be added once polling started")

// TaskConfig is the configuration of a Task.
type TaskConfig struct {
	// Project is the unit of work, the project file name without extension.
	Project string
	// Name identifies the task in the campaign, Project when empty.
	Name string
	// WorkDir holds the project and every side-effect file of the task. It must
	// not be shared with another task.
	WorkDir string
	// Extension of the project file, ".aedt" when empty.
	Extension string
	// DependsOn names tasks that must be done before this one is polled.
	DependsOn []string

	Backend  backend.Backend
	Detector *detector.Detector
	Sink     status.Sink
	Retry    RetryConfig
	// StaleAfter reports a dispatched step once when it produced no evidence
	// for that long. Zero disables the check.
	StaleAfter      time.Duration
	DisplayWarnings bool
	// ArchivePrefix names scheduler reports once renamed, "lsf_" when empty.
	ArchivePrefix string

	Publisher events.Publisher
	Logger    log.Logger
	Now       func() time.Time
}

func (c *TaskConfig) defaults() error {
	if c.Project == "" {
		return fmt.Errorf("project is required")
	}
	if c.Name == "" {
		c.Name = c.Project
	}
	if c.WorkDir == "" {
		c.WorkDir = "."
	}
	if c.Extension == "" {
		c.Extension = ".aedt"
	}
	if c.Backend == nil {
		return fmt.Errorf("backend is required")
	}
	if c.Detector == nil {
		c.Detector = detector.New(detector.Config{})
	}
	if c.Sink == nil {
		c.Sink = status.Discard
	}
	c.Retry.defaults()
	if c.Publisher == nil {
		c.Publisher = events.Discard
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "scheduler.Task", "task": c.Name})
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

// Task is an ordered sequence of steps run against one project. A single
// cursor addresses the current step; it only moves forward, once the step
// under it is done.
type Task struct {
	cfg     TaskConfig
	steps   []*Step
	cursor  int
	done    bool
	failed  bool
	skipped bool
	started bool
}

// NewTask creates a task without steps.
func NewTask(cfg TaskConfig) (*Task, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid task config: %w", err)
	}
	return &Task{cfg: cfg}, nil
}

// AddStep appends a step. Steps cannot be added once polling started.
func (t *Task) AddStep(s *Step) error {
	if t.started {
		return ErrTaskStarted
	}
	if s == nil {
		return fmt.Errorf("%w: nil step", ErrInvalidStep)
	}
	for _, existing := range t.steps {
		if existing == s {
			return fmt.Errorf("%w: step %q added twice", ErrInvalidStep, s.name)
		}
	}
	t.steps = append(t.steps, s)
	return nil
}

// Name returns the task name.
func (t *Task) Name() string { return t.cfg.Name }

// Project returns the unit of work.
func (t *Task) Project() string { return t.cfg.Project }

// WorkDir returns the task's working directory.
func (t *Task) WorkDir() string { return t.cfg.WorkDir }

// Mode returns the execution mode of the task's backend.
func (t *Task) Mode() string { return t.cfg.Backend.Mode() }

// DependsOn returns the names of the tasks this one waits for.
func (t *Task) DependsOn() []string { return append([]string(nil), t.cfg.DependsOn...) }

// Cursor returns the index of the current step.
func (t *Task) Cursor() int { return t.cursor }

// Done reports whether every step is done.
func (t *Task) Done() bool { return t.done }

// Failed reports whether a step failed terminally.
func (t *Task) Failed() bool { return t.failed }

// Skipped reports whether the task was abandoned because a dependency failed.
func (t *Task) Skipped() bool { return t.skipped }

// Finished reports whether the task no longer needs polling.
func (t *Task) Finished() bool { return t.done || t.failed || t.skipped }

// Steps returns a snapshot of the steps.
func (t *Task) Steps() []StepInfo {
	infos := make([]StepInfo, len(t.steps))
	for i, s := range t.steps {
		infos[i] = s.info()
	}
	return infos
}

// Report renders the task state as "project|display|O|display|X|": O for a
// done step, X otherwise.
func (t *Task) Report() string {
	var sb strings.Builder
	sb.WriteString(t.cfg.Name)
	for _, s := range t.steps {
		sb.WriteString("|")
		sb.WriteString(s.display)
		sb.WriteString("|")
		if s.state == StateDone {
			sb.WriteString("O")
		} else {
			sb.WriteString("X")
		}
	}
	sb.WriteString("|")
	return sb.String()
}

func (t *Task) skip() { t.skipped = true }

func (t *Task) projectFile() string { return t.cfg.Project + t.cfg.Extension }

func (t *Task) cleanOptions() recovery.CleanOptions {
	return recovery.CleanOptions{Extension: t.cfg.Extension}
}

// ExecuteStep works on the step under the cursor and returns after at most one
// state transition. It never waits for the external application, except while
// the local backend runs it. Only configuration errors are returned; every
// other problem is reported to the sink and retried on a later call.
func (t *Task) ExecuteStep(ctx context.Context) error {
	t.started = true
	if t.Finished() {
		return nil
	}
	if t.cursor >= len(t.steps) {
		t.done = true
		return nil
	}

	step := t.steps[t.cursor]
	switch step.state {
	case StateDone:
		t.advance()
		return nil
	case StateFailed:
		t.failed = true
		return nil
	}

	if step.Kind() == KindCompute {
		t.runCompute(ctx, step)
		return nil
	}
	if step.state == StatePending {
		return t.dispatch(ctx, step)
	}
	t.poll(step)
	return nil
}

func (t *Task) advance() {
	t.cursor++
	if t.cursor >= len(t.steps) {
		t.cursor = len(t.steps)
		t.done = true
	}
}

func (t *Task) dispatch(ctx context.Context, step *Step) error {
	now := t.cfg.Now()
	if now.Before(step.notBefore) {
		return nil
	}

	logName := step.LogFileName()
	removed, err := removeIfExists(filepath.Join(t.cfg.WorkDir, logName))
	if err != nil {
		t.report(step, fmt.Errorf("could not remove previous log: %w", err))
		return nil
	}
	if removed {
		t.cfg.Sink.Update("Pre existing log file removed")
	}
	t.cfg.Sink.Update("Executing " + strings.TrimSuffix(logName, filepath.Ext(logName)))

	res, err := t.cfg.Backend.Dispatch(ctx, step.job(t.cfg.WorkDir, t.projectFile()))
	if err != nil {
		if backend.IsFatal(err) {
			return fmt.Errorf("task %s step %s: %w", t.cfg.Name, step.name, err)
		}
		t.report(step, fmt.Errorf("dispatch failed: %w", err))
		return nil
	}

	step.state = StateDispatched
	step.dispatches++
	step.dispatchedAt = now
	if t.cfg.Backend.Mode() == backend.ModeCluster {
		step.jobID, step.hasJob, step.tracked = res.JobID, true, res.Tracked
		t.cfg.Sink.Update(fmt.Sprintf("Job ID: %s associated to the step: %s", res.JobID, step.name))
		if !res.Tracked {
			t.cfg.Sink.Update(fmt.Sprintf("Completion of %s will not wait for a scheduler report", step.name))
		}
	}

	t.cfg.Logger.Debugf("step %s dispatched (job %q)", step.name, res.JobID)
	t.cfg.Publisher.Publish(events.StepDispatchedEvent{
		Task:      t.cfg.Name,
		Step:      step.name,
		Mode:      t.cfg.Backend.Mode(),
		JobID:     step.jobID,
		Tracked:   step.tracked,
		Attempt:   step.dispatches,
		Timestamp: now,
	})
	return nil
}

func (t *Task) poll(step *Step) {
	target := detector.Target{LogFileName: step.LogFileName(), JobID: step.jobID, Tracked: step.tracked}
	outcome, err := t.cfg.Detector.Probe(target, t.cfg.WorkDir)
	if err != nil {
		t.cfg.Logger.Warningf("probe of %s failed: %v", step.name, err)
		return
	}

	switch outcome {
	case detector.LockError:
		t.recoverLock(step)
	case detector.Completed:
		t.complete(step)
	default:
		t.checkStale(step)
	}
}

func (t *Task) recoverLock(step *Step) {
	sink := t.cfg.Sink
	sink.Update("Error lock syndrome detected")
	sink.Update("Check and remove potential completion and lock files")
	if err := recovery.CleanProject(t.cfg.WorkDir, t.cfg.Project, t.cleanOptions(), sink); err != nil {
		t.cfg.Logger.Warningf("cleanup after lock error: %v", err)
	}
	if _, err := removeIfExists(filepath.Join(t.cfg.WorkDir, step.LogFileName())); err != nil {
		t.cfg.Logger.Warningf("could not remove locked log: %v", err)
	}

	step.requeue()
	step.lockErrors++

	now := t.cfg.Now()
	delay, ok := t.cfg.Retry.nextRetry(step)
	if !ok {
		step.state = StateFailed
		step.err = fmt.Errorf("%w (%d lock errors)", ErrLockRetriesExhausted, step.lockErrors)
		t.failed = true
		sink.Update(fmt.Sprintf("Step %s abandoned: %v", step.name, step.err))
		t.cfg.Publisher.Publish(events.StepFailedEvent{
			Task: t.cfg.Name, Step: step.name, Err: step.err, Terminal: true, Timestamp: now,
		})
		return
	}

	step.notBefore = now.Add(delay)
	t.cfg.Publisher.Publish(events.StepRequeuedEvent{
		Task:      t.cfg.Name,
		Step:      step.name,
		Attempt:   step.lockErrors,
		RetryAt:   step.notBefore,
		Timestamp: now,
	})
}

func (t *Task) complete(step *Step) {
	sink := t.cfg.Sink
	sink.Update("No error lock syndrome detected")

	logName := step.LogFileName()
	findings, err := recovery.ScanLog(filepath.Join(t.cfg.WorkDir, logName), sink, t.cfg.DisplayWarnings)
	if err != nil {
		t.cfg.Logger.Warningf("log scan of %s: %v", step.name, err)
	}

	if step.tracked {
		report := t.cfg.Detector.ReportName(step.jobID)
		archive := recovery.ReportArchiveName(t.cfg.ArchivePrefix, logName)
		if err := recovery.RenameReport(t.cfg.WorkDir, report, archive, sink); err != nil {
			t.report(step, err)
		}
	} else if step.hasJob {
		sink.Update(fmt.Sprintf("Scheduler report not verified for %s", step.name))
	}

	sink.Update("Preventive cleaning")
	if err := recovery.CleanProject(t.cfg.WorkDir, t.cfg.Project, t.cleanOptions(), sink); err != nil {
		t.cfg.Logger.Warningf("preventive cleaning: %v", err)
	}
	sink.Update("script execution completed")
	sink.Elapsed()

	now := t.cfg.Now()
	step.state = StateDone
	t.cfg.Publisher.Publish(events.StepCompletedEvent{
		Task:      t.cfg.Name,
		Step:      step.name,
		Findings:  findings,
		Duration:  now.Sub(step.dispatchedAt),
		Timestamp: now,
	})
}

func (t *Task) checkStale(step *Step) {
	if t.cfg.StaleAfter <= 0 || step.staleReported {
		return
	}
	now := t.cfg.Now()
	if now.Sub(step.dispatchedAt) < t.cfg.StaleAfter {
		return
	}

	step.staleReported = true
	t.cfg.Sink.Update(fmt.Sprintf("Step %s has shown no completion evidence for %s (job %s)",
		step.name, now.Sub(step.dispatchedAt).Round(time.Second), step.jobID))
	t.cfg.Publisher.Publish(events.StepStaleEvent{
		Task:      t.cfg.Name,
		Step:      step.name,
		JobID:     step.jobID,
		Since:     step.dispatchedAt,
		Timestamp: now,
	})
}

// runCompute invokes the compute function. A failing function never blocks the
// task: its error is recorded on the step, which is done either way.
func (t *Task) runCompute(ctx context.Context, step *Step) {
	c := step.payload.(Compute)
	t.cfg.Sink.Update("Executing compute step: " + step.name)

	start := t.cfg.Now()
	err := callCompute(ctx, c.Func, ComputeCall{
		Task:      t.cfg.Name,
		Step:      step.name,
		WorkDir:   t.cfg.WorkDir,
		Project:   t.cfg.Project,
		Extension: t.cfg.Extension,
		Args:      c.Args,
		Sink:      t.cfg.Sink,
	})
	step.dispatches++
	step.err = err
	step.state = StateDone

	if err != nil {
		t.report(step, err)
	}
	now := t.cfg.Now()
	t.cfg.Publisher.Publish(events.StepCompletedEvent{
		Task:      t.cfg.Name,
		Step:      step.name,
		Err:       err,
		Duration:  now.Sub(start),
		Timestamp: now,
	})
}

func callCompute(ctx context.Context, fn ComputeFunc, call ComputeCall) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compute step panicked: %v", r)
		}
	}()
	return fn(ctx, call)
}

// report surfaces a recoverable problem of step.
func (t *Task) report(step *Step, err error) {
	t.cfg.Sink.Update(fmt.Sprintf("Error in step %s: %v", step.name, err))
	t.cfg.Logger.Warningf("step %s: %v", step.name, err)
	t.cfg.Publisher.Publish(events.StepFailedEvent{
		Task:      t.cfg.Name,
		Step:      step.name,
		Err:       err,
		Timestamp: t.cfg.Now(),
	})
}

func removeIfExists(path string) (bool, error) {
	err := os.Remove(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
