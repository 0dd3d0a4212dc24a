package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aristath/simcampaign/internal/backend"
	"github.com/aristath/simcampaign/internal/log"
	"github.com/aristath/simcampaign/internal/scheduler"
)

// Validate checks the configuration up front so that a bad mode or resource
// profile is reported before anything is dispatched.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend.Mode {
	case backend.ModeLocal:
		if c.Backend.Executable == "" {
			errs = append(errs, fmt.Errorf("backend.executable is required in local mode"))
		}
	case backend.ModeCluster:
		if c.Backend.SubmitCommand == "" {
			errs = append(errs, fmt.Errorf("backend.submit_command is required in cluster mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("backend.mode must be %q or %q, got %q", backend.ModeLocal, backend.ModeCluster, c.Backend.Mode))
	}
	if ext := c.Backend.ProjectExtension; ext != "" && !strings.HasPrefix(ext, ".") {
		errs = append(errs, fmt.Errorf("backend.project_extension must start with a dot, got %q", ext))
	}

	if c.Polling.Interval <= 0 {
		errs = append(errs, fmt.Errorf("polling.interval must be positive"))
	}
	if c.Polling.StaleAfter < 0 {
		errs = append(errs, fmt.Errorf("polling.stale_after cannot be negative"))
	}

	r := c.LockRetry
	if r.MaxAttempts < 0 || r.InitialInterval < 0 || r.MaxInterval < 0 {
		errs = append(errs, fmt.Errorf("lock_retry values cannot be negative"))
	}
	if r.Multiplier != 0 && r.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("lock_retry.multiplier must be at least 1, got %g", r.Multiplier))
	}
	if c.Breaker.OpenTimeout < 0 {
		errs = append(errs, fmt.Errorf("breaker.open_timeout cannot be negative"))
	}

	names := make([]string, 0, len(c.Resources))
	for name := range c.Resources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := c.Resources[name].Resources(); err != nil {
			errs = append(errs, fmt.Errorf("resources.%s: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrNotValid, errors.Join(errs...))
	}
	return nil
}

// Resources builds the backend request of a profile.
func (p ResourceProfile) Resources() (backend.Resources, error) {
	wall, err := backend.ParseWallTime(p.WallTime)
	if err != nil {
		return backend.Resources{}, err
	}
	return backend.NewResources(p.Cores, wall, backend.WithMemory(p.MemoryMB), backend.WithScratch(p.ScratchMB))
}

// Profile returns the resources of a named profile.
func (c *Config) Profile(name string) (backend.Resources, error) {
	p, ok := c.Resources[name]
	if !ok {
		return backend.Resources{}, fmt.Errorf("%w: unknown resource profile %q", ErrNotValid, name)
	}
	return p.Resources()
}

// BackendConfig maps the configuration onto the dispatcher's.
func (c *Config) BackendConfig(logger log.Logger) backend.Config {
	b := c.Backend
	return backend.Config{
		Type:              b.Mode,
		Executable:        b.Executable,
		LocalFlags:        append([]string(nil), b.LocalFlags...),
		ModulePreamble:    b.ModulePreamble,
		SubmitCommand:     b.SubmitCommand,
		ClusterExecutable: b.ClusterExecutable,
		JobMarker:         b.JobMarker,
		Breaker: backend.BreakerConfig{
			ConsecutiveFailures: c.Breaker.ConsecutiveFailures,
			OpenTimeout:         c.Breaker.OpenTimeout,
		},
		Logger: logger,
	}
}

// RetryConfig maps the lock retry settings onto the scheduler's.
func (c *Config) RetryConfig() scheduler.RetryConfig {
	return scheduler.RetryConfig{
		MaxAttempts:     c.LockRetry.MaxAttempts,
		InitialInterval: c.LockRetry.InitialInterval,
		MaxInterval:     c.LockRetry.MaxInterval,
		Multiplier:      c.LockRetry.Multiplier,
	}
}

// TaskStatusPath returns the snapshot file name for a campaign.
func (c *Config) TaskStatusPath(campaign string) string {
	return strings.ReplaceAll(c.TaskStatusFile, "<campaign>", campaign)
}
