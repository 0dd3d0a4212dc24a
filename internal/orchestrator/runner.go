package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/aristath/simcampaign/internal/backend"
	"github.com/aristath/simcampaign/internal/config"
	"github.com/aristath/simcampaign/internal/detector"
	"github.com/aristath/simcampaign/internal/events"
	"github.com/aristath/simcampaign/internal/log"
	"github.com/aristath/simcampaign/internal/scheduler"
	"github.com/aristath/simcampaign/internal/status"
	"github.com/aristath/simcampaign/internal/workspace"
)

// BackendFactory creates the job dispatcher shared by every task.
type BackendFactory func(cfg backend.Config, pm *backend.ProcessManager) (backend.Backend, error)

// RunnerConfig configures the campaign runner.
type RunnerConfig struct {
	Config   *config.Config
	Campaign *config.Campaign
	// Root is the campaign directory; task folders are created below it.
	Root string

	ProcessManager *backend.ProcessManager
	BackendFactory BackendFactory // defaults to backend.New
	Registry       *Registry      // defaults to the built-in compute steps
	Publisher      events.Publisher
	Logger         log.Logger

	// MirrorStatus also writes every status line to the logger.
	MirrorStatus bool

	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

func (c *RunnerConfig) defaults() error {
	if c.Config == nil {
		c.Config = config.DefaultConfig()
	}
	if c.Campaign == nil {
		return fmt.Errorf("campaign is required")
	}
	if c.Root == "" {
		c.Root = "."
	}
	if c.ProcessManager == nil {
		c.ProcessManager = backend.NewProcessManager()
	}
	if c.BackendFactory == nil {
		c.BackendFactory = backend.New
	}
	if c.Registry == nil {
		c.Registry = NewRegistry()
	}
	if c.Publisher == nil {
		c.Publisher = events.Discard
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "orchestrator.Runner", "campaign": c.Campaign.Name})
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

// Runner turns a campaign definition into scheduler tasks and polls them.
type Runner struct {
	cfg       RunnerConfig
	backend   backend.Backend
	workspace *workspace.Manager
	campaign  *scheduler.Campaign
	sinks     map[string]*status.LogText
	driver    *scheduler.Driver
}

// NewRunner builds every task of the campaign: the task folders are created
// and claimed, the status files truncated and the steps validated. Nothing is
// dispatched before Run.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid runner config: %w", err)
	}
	if err := cfg.Config.Validate(); err != nil {
		return nil, err
	}

	b, err := cfg.BackendFactory(cfg.Config.BackendConfig(cfg.Logger), cfg.ProcessManager)
	if err != nil {
		return nil, fmt.Errorf("creating %s backend: %w", cfg.Config.Backend.Mode, err)
	}
	ws, err := workspace.NewManager(workspace.ManagerConfig{Root: cfg.Root})
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:       cfg,
		backend:   b,
		workspace: ws,
		campaign:  scheduler.NewCampaign(),
		sinks:     make(map[string]*status.LogText),
	}

	det := detector.New(detector.Config{ReportPrefix: cfg.Config.Backend.ReportPrefix})
	for _, spec := range cfg.Campaign.Tasks {
		task, err := r.buildTask(spec, det)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", spec.TaskName(), err)
		}
		if err := r.campaign.Add(task); err != nil {
			return nil, err
		}
	}

	snapshot := ""
	if cfg.Config.TaskStatusFile != "" {
		snapshot = filepath.Join(ws.Root(), cfg.Config.TaskStatusPath(cfg.Campaign.Name))
	}
	r.driver, err = scheduler.NewDriver(scheduler.DriverConfig{
		Campaign:     r.campaign,
		Interval:     cfg.Config.Polling.Interval,
		SnapshotPath: snapshot,
		Publisher:    cfg.Publisher,
		Logger:       cfg.Logger,
		Sleep:        cfg.Sleep,
		Now:          cfg.Now,
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Run polls the campaign until every task is finished, ctx is done or a
// configuration error stops it. Processes still running when Run returns
// early are killed.
func (r *Runner) Run(ctx context.Context) error {
	r.cfg.Logger.Infof("running %d task(s) with the %s backend", r.campaign.Len(), r.backend.Mode())

	err := r.driver.Run(ctx)
	if err != nil {
		if n := r.cfg.ProcessManager.Count(); n > 0 {
			r.cfg.Logger.Warningf("killing %d running process(es)", n)
			r.cfg.ProcessManager.KillAll()
		}
		return err
	}

	for _, name := range r.taskNames() {
		if sink, ok := r.sinks[name]; ok {
			sink.Separator()
		}
	}
	return nil
}

// Campaign returns the scheduler campaign built from the definition.
func (r *Runner) Campaign() *scheduler.Campaign { return r.campaign }

// Backend returns the dispatcher shared by the tasks.
func (r *Runner) Backend() backend.Backend { return r.backend }

// Workspaces returns the task folders.
func (r *Runner) Workspaces() []workspace.Info { return r.workspace.List() }

// StatusFile returns the status file of a task.
func (r *Runner) StatusFile(task string) (string, bool) {
	sink, ok := r.sinks[task]
	if !ok {
		return "", false
	}
	return sink.Path(), true
}

func (r *Runner) taskNames() []string {
	names := make([]string, 0, len(r.cfg.Campaign.Tasks))
	for _, spec := range r.cfg.Campaign.Tasks {
		names = append(names, spec.TaskName())
	}
	return names
}

func (r *Runner) buildTask(spec config.TaskSpec, det *detector.Detector) (*scheduler.Task, error) {
	cfg := r.cfg.Config
	name := spec.TaskName()

	ws, err := r.workspace.Create(name, spec.Project, spec.SubFolder)
	if err != nil {
		return nil, err
	}

	sink, err := r.newSink(name, ws.Path)
	if err != nil {
		return nil, err
	}

	task, err := scheduler.NewTask(scheduler.TaskConfig{
		Project:         spec.Project,
		Name:            name,
		WorkDir:         ws.Path,
		Extension:       cfg.Backend.ProjectExtension,
		DependsOn:       spec.DependsOn,
		Backend:         r.backend,
		Detector:        det,
		Sink:            sink,
		Retry:           cfg.RetryConfig(),
		StaleAfter:      cfg.Polling.StaleAfter,
		DisplayWarnings: cfg.DisplayWarnings,
		ArchivePrefix:   cfg.Backend.ArchivePrefix,
		Publisher:       r.cfg.Publisher,
		Logger:          r.cfg.Logger,
		Now:             r.cfg.Now,
	})
	if err != nil {
		return nil, err
	}

	for _, s := range spec.Steps {
		step, err := r.buildStep(s)
		if err != nil {
			return nil, err
		}
		if err := task.AddStep(step); err != nil {
			return nil, err
		}
	}
	return task, nil
}

// newSink creates the status file of a task and fans its lines out to the
// event bus and, optionally, the logger.
func (r *Runner) newSink(task, dir string) (status.Sink, error) {
	file := r.cfg.Config.StatusFile
	if file == "" {
		file = "status.txt"
	}
	text, err := status.NewLogText(status.LogTextConfig{Path: filepath.Join(dir, file), Now: r.cfg.Now})
	if err != nil {
		return nil, err
	}
	r.sinks[task] = text

	sinks := []status.Sink{
		text,
		status.Func(func(line string) {
			r.cfg.Publisher.Publish(events.StatusLineEvent{Task: task, Line: line, Timestamp: r.cfg.Now()})
		}),
	}
	if r.cfg.MirrorStatus {
		sinks = append(sinks, status.Logger(r.cfg.Logger.WithValues(log.Kv{"task": task})))
	}
	return status.Multi(sinks...), nil
}

func (r *Runner) buildStep(s config.StepSpec) (*scheduler.Step, error) {
	var (
		payload scheduler.Payload
		profile = s.Profile
	)
	switch s.Kind {
	case config.KindScript:
		payload = scheduler.Script{Path: s.Script, BatchFile: s.BashFile}
		if profile == "" {
			profile = config.ProfileScript
		}
	case config.KindAnalysis:
		logFile := s.LogFile
		if logFile == "" {
			logFile = s.Name + ".log"
		}
		payload = scheduler.Analysis{Design: s.Design, Setup: s.Setup, LogFile: logFile, BatchFile: s.BashFile}
		if profile == "" {
			profile = config.ProfileSweep
		}
	case config.KindCompute:
		fn, ok := r.cfg.Registry.Lookup(s.Func)
		if !ok {
			return nil, fmt.Errorf("%w: step %q uses unknown func %q (known: %v)", config.ErrNotValid, s.Name, s.Func, r.cfg.Registry.Names())
		}
		return scheduler.NewStep(s.Name, s.Display, scheduler.Compute{Func: fn, Args: s.Args}, backend.Resources{})
	default:
		return nil, fmt.Errorf("%w: step %q has unknown kind %q", scheduler.ErrUnknownStepKind, s.Name, s.Kind)
	}

	res, err := r.cfg.Config.Profile(profile)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", s.Name, err)
	}
	return scheduler.NewStep(s.Name, s.Display, payload, res)
}
