package config

import (
	"errors"
	"time"
)

// ErrNotValid is returned for a configuration or campaign file that cannot be
// used.
var ErrNotValid = errors.New("configuration not valid")

// Config is the engine configuration.
type Config struct {
	Backend   BackendConfig              `yaml:"backend"`
	Polling   PollingConfig              `yaml:"polling"`
	LockRetry LockRetryConfig            `yaml:"lock_retry"`
	Breaker   BreakerConfig              `yaml:"breaker"`
	Resources map[string]ResourceProfile `yaml:"resources"` // named profiles; a profile given in a file replaces the default one

	DisplayWarnings bool   `yaml:"display_warnings"`
	StatusFile      string `yaml:"status_file"`      // status sink file name, per task folder
	TaskStatusFile  string `yaml:"task_status_file"` // snapshot of every task report, "<campaign>" is replaced
	JournalPath     string `yaml:"journal_path"`     // SQLite run journal, disabled when empty
}

// BackendConfig selects and configures the job dispatcher.
type BackendConfig struct {
	Mode              string   `yaml:"mode"`                  // "local" or "cluster"
	Executable        string   `yaml:"executable"`            // desktop application for local runs
	LocalFlags        []string `yaml:"local_flags,omitempty"` // flags before every local invocation
	ModulePreamble    string   `yaml:"module_preamble"`       // first line of submission scripts
	SubmitCommand     string   `yaml:"submit_command"`        // e.g. "bsub"
	ClusterExecutable string   `yaml:"cluster_executable"`    // application name on cluster nodes
	JobMarker         string   `yaml:"job_marker"`            // word before the job id in the submit output
	ReportPrefix      string   `yaml:"report_prefix"`         // scheduler report file prefix, "lsf.o"
	ArchivePrefix     string   `yaml:"archive_prefix"`        // prefix of renamed reports, "lsf_"
	ProjectExtension  string   `yaml:"project_extension"`     // ".aedt"
}

// PollingConfig controls the polling driver.
type PollingConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"` // 0 disables staleness reports
}

// LockRetryConfig controls re-dispatch after a lock error.
type LockRetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"` // 0 for unbounded
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
}

// BreakerConfig guards the scheduler submission command.
type BreakerConfig struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
}

// ResourceProfile is a named resource request.
type ResourceProfile struct {
	Cores     int    `yaml:"cores"`
	WallTime  string `yaml:"wall_time"` // "H:MM"
	MemoryMB  int    `yaml:"memory_mb,omitempty"`
	ScratchMB int    `yaml:"scratch_mb,omitempty"`
}
