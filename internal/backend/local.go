package backend

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/aristath/simcampaign/internal/log"
)

// LocalBackend runs the desktop application synchronously on this machine.
// Dispatch blocks until the application exits.
type LocalBackend struct {
	cfg    Config
	pm     *ProcessManager
	logger log.Logger
}

// NewLocalBackend creates a local backend. Config.Executable is required.
func NewLocalBackend(cfg Config, pm *ProcessManager) (*LocalBackend, error) {
	cfg.defaults()
	if cfg.Executable == "" {
		return nil, ErrMissingExecutable
	}
	return &LocalBackend{
		cfg:    cfg,
		pm:     pm,
		logger: cfg.Logger.WithValues(log.Kv{"svc": "backend.Local"}),
	}, nil
}

// Mode implements Backend.
func (b *LocalBackend) Mode() string { return ModeLocal }

// Args returns the command-line arguments passed to the application for job.
func (b *LocalBackend) Args(job Job) ([]string, error) {
	kind, err := job.Kind()
	if err != nil {
		return nil, err
	}

	args := append([]string(nil), b.cfg.LocalFlags...)
	switch kind {
	case JobScript:
		args = append(args, "-runscriptandexit", job.ScriptPath, job.ProjectFile)
	case JobAnalysis:
		args = append(args, "-monitor", "-logfile", job.logFileName(), "-batchsolve", job.Target(), job.ProjectFile)
	}
	return args, nil
}

// Dispatch implements Backend. The exit status of the application is not
// consulted: completion is decided from the files it leaves behind.
func (b *LocalBackend) Dispatch(ctx context.Context, job Job) (Result, error) {
	args, err := b.Args(job)
	if err != nil {
		return Result{}, err
	}

	logger := b.logger.WithValues(log.Kv{"job": job.Name})
	logger.Debugf("running %s %s", b.cfg.Executable, strings.Join(args, " "))

	cmd := newCommand(ctx, job.WorkDir, b.cfg.Executable, args...)
	stdout, _, err := executeCommand(ctx, cmd, b.pm)
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("could not run %s: %w", b.cfg.Executable, err)
		}
		logger.Warningf("application exited with status %d", exitErr.ExitCode())
	}

	return Result{JobID: LocalJobID, Output: string(stdout)}, nil
}
