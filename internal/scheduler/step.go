package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aristath/simcampaign/internal/backend"
	"github.com/aristath/simcampaign/internal/detector"
	"github.com/aristath/simcampaign/internal/status"
)

var (
	// ErrUnknownStepKind is returned for a step whose payload is not one of
	// Script, Analysis or Compute.
	ErrUnknownStepKind = errors.New("unknown step kind")
	// ErrInvalidStep is returned when a step payload misses a required field.
	ErrInvalidStep = errors.New("invalid step")
)

// StepKind is the variant of a step.
type StepKind int

const (
	KindScript   StepKind = iota // control script run against the project
	KindAnalysis                 // solve of one design/setup
	KindCompute                  // in-process function
)

func (k StepKind) String() string {
	switch k {
	case KindScript:
		return "script"
	case KindAnalysis:
		return "analysis"
	case KindCompute:
		return "compute"
	default:
		return fmt.Sprintf("StepKind(%d)", int(k))
	}
}

// StepState is the progress of a step. States only move forward, except for
// the Dispatched -> Pending edge taken after a lock error.
type StepState int

const (
	StatePending    StepState = iota // not dispatched yet
	StateDispatched                  // handed to a backend, waiting for evidence
	StateDone                        // completed, terminal
	StateFailed                      // lock retries exhausted, terminal
)

func (s StepState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDispatched:
		return "dispatched"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("StepState(%d)", int(s))
	}
}

// Payload is the kind-specific part of a step: Script, Analysis or Compute.
type Payload interface {
	kind() StepKind
}

// Script runs a control script. The application writes its log next to the
// project, named after the script.
type Script struct {
	Path      string
	BatchFile string // cluster submission script name, derived from the step name when empty
}

// Analysis solves one setup of a design.
type Analysis struct {
	Design    string
	Setup     string
	LogFile   string
	BatchFile string
}

// ComputeCall is what a compute function receives.
type ComputeCall struct {
	Task      string
	Step      string
	WorkDir   string
	Project   string
	Extension string
	Args      map[string]any
	Sink      status.Sink
}

// ComputeFunc is an in-process step.
type ComputeFunc func(ctx context.Context, call ComputeCall) error

// Compute runs Func synchronously on the first visit of the step.
type Compute struct {
	Func ComputeFunc
	Args map[string]any
}

func (Script) kind() StepKind   { return KindScript }
func (Analysis) kind() StepKind { return KindAnalysis }
func (Compute) kind() StepKind  { return KindCompute }

// Step is the atomic unit of work of a Task. Its fields are only mutated by
// the owning Task.
type Step struct {
	name      string
	display   string
	payload   Payload
	resources backend.Resources

	state   StepState
	jobID   string
	hasJob  bool
	tracked bool
	err     error

	dispatches    int
	lockErrors    int
	retry         backoff.BackOff
	notBefore     time.Time
	dispatchedAt  time.Time
	staleReported bool
}

// NewStep validates and builds a step. Resources may be zero for local runs
// and compute steps; the cluster backend rejects a zero request at dispatch.
func NewStep(name, display string, payload Payload, res backend.Resources) (*Step, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidStep)
	}
	if display == "" {
		display = name
	}

	switch p := payload.(type) {
	case Script:
		if p.Path == "" {
			return nil, fmt.Errorf("%w: script step %q has no script", ErrInvalidStep, name)
		}
	case Analysis:
		if p.Design == "" || p.Setup == "" {
			return nil, fmt.Errorf("%w: analysis step %q needs a design and a setup", ErrInvalidStep, name)
		}
		if p.LogFile == "" {
			return nil, fmt.Errorf("%w: analysis step %q needs a log file name", ErrInvalidStep, name)
		}
	case Compute:
		if p.Func == nil {
			return nil, fmt.Errorf("%w: compute step %q has no function", ErrInvalidStep, name)
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownStepKind, payload)
	}

	return &Step{name: name, display: display, payload: payload, resources: res}, nil
}

// Name returns the step identity.
func (s *Step) Name() string { return s.name }

// Display returns the name used in status reports.
func (s *Step) Display() string { return s.display }

// Kind returns the step variant.
func (s *Step) Kind() StepKind { return s.payload.kind() }

// State returns the current state.
func (s *Step) State() StepState { return s.state }

// JobID returns the scheduler job identifier. It is only set for steps
// dispatched through the cluster backend.
func (s *Step) JobID() (string, bool) { return s.jobID, s.hasJob }

// Err returns the error recorded by a compute step or a terminal failure.
func (s *Step) Err() error { return s.err }

// Dispatches returns how many times the step was handed to a backend.
func (s *Step) Dispatches() int { return s.dispatches }

// LogFileName returns the log the application writes for the step, empty for
// compute steps.
func (s *Step) LogFileName() string {
	switch p := s.payload.(type) {
	case Script:
		return detector.LogName(p.Path)
	case Analysis:
		return p.LogFile
	default:
		return ""
	}
}

// job builds the backend request for the step.
func (s *Step) job(workDir, projectFile string) backend.Job {
	job := backend.Job{
		Name:        s.name,
		WorkDir:     workDir,
		ProjectFile: projectFile,
		LogFileName: s.LogFileName(),
		Resources:   s.resources,
	}
	switch p := s.payload.(type) {
	case Script:
		job.ScriptPath = p.Path
		job.BatchFileName = p.BatchFile
	case Analysis:
		job.DesignName = p.Design
		job.SetupName = p.Setup
		job.BatchFileName = p.BatchFile
	}
	return job
}

// requeue clears the dispatch so the next visit dispatches from scratch.
// Identity and log file name are kept.
func (s *Step) requeue() {
	s.state = StatePending
	s.jobID, s.hasJob, s.tracked = "", false, false
	s.dispatchedAt = time.Time{}
	s.staleReported = false
}

// StepInfo is a read-only snapshot of a step.
type StepInfo struct {
	Name       string
	Display    string
	Kind       StepKind
	State      StepState
	JobID      string
	Dispatches int
	LockErrors int
	Err        error
}

func (s *Step) info() StepInfo {
	return StepInfo{
		Name:       s.name,
		Display:    s.display,
		Kind:       s.Kind(),
		State:      s.state,
		JobID:      s.jobID,
		Dispatches: s.dispatches,
		LockErrors: s.lockErrors,
		Err:        s.err,
	}
}
