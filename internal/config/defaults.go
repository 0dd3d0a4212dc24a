package config

import "time"

// Resource profile names every configuration carries.
const (
	ProfileScript       = "script"
	ProfileOptimization = "optimization"
	ProfileSweep        = "sweep"
)

// DefaultConfig returns the default configuration: local runs, a 2 second
// polling interval, unbounded immediate lock retries and the three standard
// resource profiles.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Mode:              "local",
			Executable:        "ansysedt",
			LocalFlags:        []string{"-features=beta", "-ng"},
			ModulePreamble:    "module load ansys_em/19.5",
			SubmitCommand:     "bsub",
			ClusterExecutable: "ansysedt",
			JobMarker:         "Job",
			ReportPrefix:      "lsf.o",
			ArchivePrefix:     "lsf_",
			ProjectExtension:  ".aedt",
		},
		Polling: PollingConfig{
			Interval: 2 * time.Second,
		},
		LockRetry: LockRetryConfig{
			MaxInterval: 5 * time.Minute,
			Multiplier:  2,
		},
		Breaker: BreakerConfig{
			ConsecutiveFailures: 5,
			OpenTimeout:         30 * time.Second,
		},
		Resources: map[string]ResourceProfile{
			ProfileScript: {
				Cores:    1,
				WallTime: "0:15",
				MemoryMB: 5000,
			},
			ProfileOptimization: {
				Cores:     1,
				WallTime:  "20:00",
				MemoryMB:  5000,
				ScratchMB: 10000,
			},
			ProfileSweep: {
				Cores:     5,
				WallTime:  "10:00",
				MemoryMB:  6400,
				ScratchMB: 25000,
			},
		},
		StatusFile:     "status.txt",
		TaskStatusFile: "<campaign>_task_status.txt",
		JournalPath:    ".simcampaign/journal.db",
	}
}
