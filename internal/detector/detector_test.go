package detector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lockedLog = "[info] Project O2_qb_gap_20 opening\n" +
	"[error] Project O2_qb_gap_20 may be opened in another instance of the application.\n"

func TestProbe(t *testing.T) {
	tests := map[string]struct {
		files  map[string]string
		target Target
		want   Outcome
	}{
		"no log": {
			target: Target{LogFileName: "prep.log"},
			want:   NotStarted,
		},
		"local log complete": {
			files:  map[string]string{"prep.log": "[info] Script completed\n"},
			target: Target{LogFileName: "prep.log", JobID: "0"},
			want:   Completed,
		},
		"empty log is complete": {
			files:  map[string]string{"prep.log": ""},
			target: Target{LogFileName: "prep.log"},
			want:   Completed,
		},
		"lock syndrome": {
			files:  map[string]string{"prep.log": lockedLog},
			target: Target{LogFileName: "prep.log"},
			want:   LockError,
		},
		"cluster log without report": {
			files:  map[string]string{"sweep.log": "[info] Solved\n"},
			target: Target{LogFileName: "sweep.log", JobID: "4242", Tracked: true},
			want:   NotStarted,
		},
		"cluster log with report": {
			files:  map[string]string{"sweep.log": "[info] Solved\n", "lsf.o4242": "Successfully completed.\n"},
			target: Target{LogFileName: "sweep.log", JobID: "4242", Tracked: true},
			want:   Completed,
		},
		"cluster report of another job": {
			files:  map[string]string{"sweep.log": "[info] Solved\n", "lsf.o4241": ""},
			target: Target{LogFileName: "sweep.log", JobID: "4242", Tracked: true},
			want:   NotStarted,
		},
		"lock syndrome wins over report": {
			files:  map[string]string{"sweep.log": lockedLog, "lsf.o4242": ""},
			target: Target{LogFileName: "sweep.log", JobID: "4242", Tracked: true},
			want:   LockError,
		},
		"untracked cluster job completes on log": {
			files:  map[string]string{"sweep.log": "[info] Solved\n"},
			target: Target{LogFileName: "sweep.log", JobID: "no job id in: queue closed"},
			want:   Completed,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range test.files {
				require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
			}

			got, err := New(Config{}).Probe(test.target, dir)
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

func TestProbeCustomConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.log"), []byte("project busy\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "slurm-7.out"), nil, 0o644))

	d := New(Config{ReportPrefix: "slurm-", LockSyndrome: "project busy"})
	got, err := d.Probe(Target{LogFileName: "a.log", JobID: "7", Tracked: true}, dir)
	require.NoError(t, err)
	assert.Equal(t, LockError, got)
	assert.Equal(t, "slurm-7", d.ReportName("7"))
}

func TestProbeDoesNotModifyDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.log"), []byte(lockedLog), 0o644))

	d := New(Config{})
	for range 3 {
		got, err := d.Probe(Target{LogFileName: "a.log"}, dir)
		require.NoError(t, err)
		assert.Equal(t, LockError, got)
	}
	assert.FileExists(t, filepath.Join(dir, "a.log"))
}

func TestLogName(t *testing.T) {
	tests := map[string]string{
		"prep.vbs":             "prep.log",
		"scripts/O2_sweep.vbs": "O2_sweep.log",
		"noext":                "noext.log",
		"a.b.vbs":              "a.b.log",
	}
	for in, want := range tests {
		assert.Equal(t, want, LogName(in), in)
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "lockError", LockError.String())
	assert.Equal(t, "Outcome(9)", Outcome(9).String())
}
