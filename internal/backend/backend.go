package backend

import (
	"context"
	"fmt"
)

// Backend dispatches one job to an execution context.
type Backend interface {
	// Dispatch starts the job. Local backends block until the application exits;
	// cluster backends return once the scheduler acknowledged the submission.
	Dispatch(ctx context.Context, job Job) (Result, error)

	// Mode returns ModeLocal or ModeCluster.
	Mode() string
}

// New creates a backend for cfg.Type. The ProcessManager is optional; when set,
// every spawned process is tracked so it can be killed on shutdown.
func New(cfg Config, pm *ProcessManager) (Backend, error) {
	switch cfg.Type {
	case ModeLocal:
		b, err := NewLocalBackend(cfg, pm)
		if err != nil {
			return nil, err
		}
		return b, nil
	case ModeCluster:
		return NewClusterBackend(cfg, pm)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Type)
	}
}
