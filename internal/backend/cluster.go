package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sony/gobreaker"

	"github.com/aristath/simcampaign/internal/log"
)

// ClusterBackend submits jobs to a batch scheduler through a generated
// submission script. Dispatch returns once the scheduler acknowledged the job.
type ClusterBackend struct {
	cfg     Config
	pm      *ProcessManager
	breaker *gobreaker.CircuitBreaker
	logger  log.Logger
}

// NewClusterBackend creates a cluster backend.
func NewClusterBackend(cfg Config, pm *ProcessManager) (*ClusterBackend, error) {
	cfg.defaults()
	logger := cfg.Logger.WithValues(log.Kv{"svc": "backend.Cluster"})
	return &ClusterBackend{
		cfg:     cfg,
		pm:      pm,
		breaker: newBreaker("cluster-submit", cfg.Breaker, logger),
		logger:  logger,
	}, nil
}

// Mode implements Backend.
func (b *ClusterBackend) Mode() string { return ModeCluster }

// Script returns the submission script that Dispatch would write for job.
func (b *ClusterBackend) Script(job Job) (string, error) {
	kind, err := b.validate(job)
	if err != nil {
		return "", err
	}
	return renderSubmission(b.cfg, job, kind), nil
}

func (b *ClusterBackend) validate(job Job) (JobKind, error) {
	kind, err := job.Kind()
	if err != nil {
		return 0, err
	}
	if job.Resources.IsZero() {
		return 0, ErrMissingResources
	}
	return kind, nil
}

// Dispatch implements Backend. A missing job identifier in the scheduler
// output is not an error: the result carries a diagnostic instead and is not
// tracked through a report file.
func (b *ClusterBackend) Dispatch(ctx context.Context, job Job) (Result, error) {
	kind, err := b.validate(job)
	if err != nil {
		return Result{}, err
	}
	logger := b.logger.WithValues(log.Kv{"job": job.Name})

	if needsBatchConfig(kind, job.Resources) {
		cfgPath := filepath.Join(job.WorkDir, b.cfg.BatchConfigName)
		if err := os.WriteFile(cfgPath, []byte(batchConfig), 0o644); err != nil {
			return Result{}, fmt.Errorf("could not write %s: %w", cfgPath, err)
		}
	}

	name := job.batchFileName()
	scriptPath := filepath.Join(job.WorkDir, name)
	if err := os.WriteFile(scriptPath, []byte(renderSubmission(b.cfg, job, kind)), 0o755); err != nil {
		return Result{}, fmt.Errorf("could not write %s: %w", scriptPath, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(scriptPath, 0o755); err != nil {
		return Result{}, fmt.Errorf("could not make %s executable: %w", scriptPath, err)
	}

	stdout, err := throughBreaker(b.breaker, func() ([]byte, error) {
		cmd := newCommand(ctx, job.WorkDir, "/bin/sh", "-c", "./"+name)
		out, _, err := executeCommand(ctx, cmd, b.pm)
		return out, err
	})
	if err != nil {
		return Result{}, fmt.Errorf("submission of %s failed: %w", name, err)
	}

	output := string(stdout)
	id, found := ParseJobID(output, b.cfg.JobMarker)
	if !found {
		logger.Warningf("scheduler acknowledgement carried no job id: %q", output)
	} else {
		logger.Debugf("submitted as job %s", id)
	}

	return Result{JobID: id, Tracked: found, Output: output}, nil
}
