package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/simcampaign/internal/backend"
	"github.com/aristath/simcampaign/internal/log"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	sweep, err := cfg.Profile(ProfileSweep)
	require.NoError(t, err)
	assert.Equal(t, 5, sweep.Cores())
	assert.Equal(t, 10*time.Hour, sweep.WallTime())
	scratch, ok := sweep.Scratch()
	assert.True(t, ok)
	assert.Equal(t, 25000, scratch)

	script, err := cfg.Profile(ProfileScript)
	require.NoError(t, err)
	_, ok = script.Scratch()
	assert.False(t, ok)
}

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		global  string
		project string
		check   func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		"no files gives the defaults": {
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultConfig(), cfg)
			},
		},
		"project overrides global": {
			global: `
backend:
  mode: cluster
polling:
  interval: 30s
`,
			project: `
polling:
  interval: 1m
  stale_after: 12h
display_warnings: true
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, backend.ModeCluster, cfg.Backend.Mode)
				assert.Equal(t, "bsub", cfg.Backend.SubmitCommand)
				assert.Equal(t, time.Minute, cfg.Polling.Interval)
				assert.Equal(t, 12*time.Hour, cfg.Polling.StaleAfter)
				assert.True(t, cfg.DisplayWarnings)
			},
		},
		"profiles merge by name": {
			project: `
resources:
  sweep:
    cores: 8
    wall_time: "4:00"
  mesh:
    cores: 2
    wall_time: "1:30"
    memory_mb: 8000
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Len(t, cfg.Resources, 4)
				assert.Equal(t, ResourceProfile{Cores: 8, WallTime: "4:00"}, cfg.Resources[ProfileSweep])
				assert.Equal(t, 5000, cfg.Resources[ProfileScript].MemoryMB)
				mesh, err := cfg.Profile("mesh")
				require.NoError(t, err)
				assert.Equal(t, 90*time.Minute, mesh.WallTime())
			},
		},
		"empty file keeps defaults": {
			project: "",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultConfig(), cfg)
			},
		},
		"malformed yaml": {
			project: "backend: [",
			wantErr: true,
		},
		"unknown key": {
			project: "polling:\n  intervall: 3s\n",
			wantErr: true,
		},
		"invalid mode": {
			project: "backend:\n  mode: grid\n",
			wantErr: true,
		},
		"invalid profile": {
			project: "resources:\n  sweep:\n    cores: 0\n    wall_time: \"1:00\"\n",
			wantErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			globalPath := filepath.Join(dir, "missing-global.yaml")
			projectPath := filepath.Join(dir, "missing-project.yaml")
			if test.global != "" {
				globalPath = writeFile(t, dir, "global/config.yaml", test.global)
			}
			if test.project != "" || name == "empty file keeps defaults" {
				projectPath = writeFile(t, dir, "project/config.yaml", test.project)
			}

			cfg, err := Load(globalPath, projectPath)
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			test.check(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate  func(c *Config)
		wantMsg string
	}{
		"local without executable": {
			mutate:  func(c *Config) { c.Backend.Executable = "" },
			wantMsg: "backend.executable",
		},
		"cluster without submit command": {
			mutate: func(c *Config) {
				c.Backend.Mode = backend.ModeCluster
				c.Backend.SubmitCommand = ""
			},
			wantMsg: "backend.submit_command",
		},
		"extension without dot": {
			mutate:  func(c *Config) { c.Backend.ProjectExtension = "aedt" },
			wantMsg: "project_extension",
		},
		"zero interval": {
			mutate:  func(c *Config) { c.Polling.Interval = 0 },
			wantMsg: "polling.interval",
		},
		"shrinking backoff": {
			mutate:  func(c *Config) { c.LockRetry.Multiplier = 0.5 },
			wantMsg: "lock_retry.multiplier",
		},
		"negative retries": {
			mutate:  func(c *Config) { c.LockRetry.MaxAttempts = -1 },
			wantMsg: "lock_retry",
		},
		"bad wall time": {
			mutate: func(c *Config) {
				c.Resources["script"] = ResourceProfile{Cores: 1, WallTime: "1:75"}
			},
			wantMsg: "resources.script",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			test.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotValid)
			assert.Contains(t, err.Error(), test.wantMsg)
		})
	}
}

func TestProfileUnknown(t *testing.T) {
	_, err := DefaultConfig().Profile("huge")
	assert.ErrorIs(t, err, ErrNotValid)
}

func TestBackendAndRetryMapping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.Mode = backend.ModeCluster
	cfg.LockRetry.MaxAttempts = 3
	cfg.LockRetry.InitialInterval = time.Minute

	b := cfg.BackendConfig(log.Noop)
	assert.Equal(t, backend.ModeCluster, b.Type)
	assert.Equal(t, "module load ansys_em/19.5", b.ModulePreamble)
	assert.Equal(t, uint32(5), b.Breaker.ConsecutiveFailures)
	assert.Equal(t, []string{"-features=beta", "-ng"}, b.LocalFlags)

	r := cfg.RetryConfig()
	assert.Equal(t, 3, r.MaxAttempts)
	assert.Equal(t, time.Minute, r.InitialInterval)
	assert.Equal(t, 5*time.Minute, r.MaxInterval)

	assert.Equal(t, "gap_sweep_task_status.txt", cfg.TaskStatusPath("gap_sweep"))
}
