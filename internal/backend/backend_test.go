package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := map[string]struct {
		cfg      Config
		wantMode string
		wantErr  error
	}{
		"local": {
			cfg:      Config{Type: ModeLocal, Executable: "/opt/app/ansysedt"},
			wantMode: ModeLocal,
		},
		"local without executable": {
			cfg:     Config{Type: ModeLocal},
			wantErr: ErrMissingExecutable,
		},
		"cluster": {
			cfg:      Config{Type: ModeCluster},
			wantMode: ModeCluster,
		},
		"unknown": {
			cfg:     Config{Type: "euler"},
			wantErr: ErrUnknownBackend,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			b, err := New(test.cfg, NewProcessManager())
			if test.wantErr != nil {
				require.ErrorIs(err, test.wantErr)
				assert.True(t, IsFatal(err))
				return
			}
			require.NoError(err)
			assert.Equal(t, test.wantMode, b.Mode())
		})
	}
}

func TestJobKind(t *testing.T) {
	tests := map[string]struct {
		job      Job
		wantKind JobKind
		wantErr  error
	}{
		"script": {
			job:      Job{ScriptPath: "prep.vbs"},
			wantKind: JobScript,
		},
		"analysis": {
			job:      Job{DesignName: "qubit", SetupName: "Setup1"},
			wantKind: JobAnalysis,
		},
		"script and design": {
			job:     Job{ScriptPath: "prep.vbs", DesignName: "qubit"},
			wantErr: ErrConflictingPayload,
		},
		"script and setup": {
			job:     Job{ScriptPath: "prep.vbs", SetupName: "Setup1"},
			wantErr: ErrConflictingPayload,
		},
		"design without setup": {
			job:     Job{DesignName: "qubit"},
			wantErr: ErrMissingPayload,
		},
		"empty": {
			wantErr: ErrMissingPayload,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			kind, err := test.job.Kind()
			if test.wantErr != nil {
				assert.ErrorIs(t, err, test.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.wantKind, kind)
		})
	}
}

func TestJobDefaultFileNames(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("job.log", Job{}.logFileName())
	assert.Equal("sweep.log", Job{LogFileName: "sweep.log"}.logFileName())
	assert.Equal("temporary_bash_file.sh", Job{}.batchFileName())
	assert.Equal("freq_sweep.sh", Job{Name: "freq sweep"}.batchFileName())
	assert.Equal("run.sh", Job{Name: "x", BatchFileName: "run.sh"}.batchFileName())
}
