package status

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/simcampaign/internal/log"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestLogTextTruncatesAndAppends(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "status.txt")
	require.NoError(os.WriteFile(path, []byte("previous campaign\n"), 0o644))

	lt, err := NewLogText(LogTextConfig{Path: path})
	require.NoError(err)
	assert.Empty(t, readFile(t, path))

	lt.Update("Executing prep")
	lt.Separator()
	lt.Update("Job ID: 42 associated to the step: sweep")

	assert.Equal(t, "Executing prep\n"+strings.Repeat("-", 25)+"\nJob ID: 42 associated to the step: sweep\n", readFile(t, path))
}

func TestLogTextElapsed(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	now := start
	clock := func() time.Time { return now }

	path := filepath.Join(t.TempDir(), "status.txt")
	lt, err := NewLogText(LogTextConfig{Path: path, Now: clock})
	require.NoError(t, err)

	now = start.Add(26*time.Hour + 3*time.Minute + 7*time.Second)
	lt.Elapsed()

	assert.Equal(t, "26:03:07\n", readFile(t, path))
}

func TestLogTextRequiresPath(t *testing.T) {
	_, err := NewLogText(LogTextConfig{})
	assert.Error(t, err)
}

func TestFormatElapsed(t *testing.T) {
	tests := map[string]struct {
		in   time.Duration
		want string
	}{
		"zero":     {in: 0, want: "00:00:00"},
		"seconds":  {in: 59 * time.Second, want: "00:00:59"},
		"hours":    {in: 3*time.Hour + 4*time.Minute, want: "03:04:00"},
		"negative": {in: -time.Second, want: "00:00:00"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.want, FormatElapsed(test.in))
		})
	}
}

func TestMultiFansOut(t *testing.T) {
	var a, b Buffer
	var seen []string

	sink := Multi(&a, &b, Func(func(msg string) { seen = append(seen, msg) }), Logger(log.Noop), Discard)
	sink.Update("one")
	sink.Elapsed()
	sink.Update("two")

	assert.Equal(t, []string{"one", "two"}, a.Lines())
	assert.Equal(t, []string{"one", "two"}, b.Lines())
	assert.Equal(t, []string{"one", "two"}, seen)
}

func TestWriteSnapshotReplacesContent(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "campaign_task_status.txt")

	require.NoError(WriteSnapshot(path, []string{"prep|Prep|X|"}))
	require.NoError(WriteSnapshot(path, []string{"prep|Prep|O|", "proj|Sweep|X|"}))

	assert.Equal(t, "prep|Prep|O|\nproj|Sweep|X|\n", readFile(t, path))

	entries, err := os.ReadDir(dir)
	require.NoError(err)
	assert.Len(t, entries, 1)
}
