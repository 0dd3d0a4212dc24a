package tui

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/simcampaign/internal/config"
	"github.com/aristath/simcampaign/internal/events"
)

func newTestModel(t *testing.T) (Model, *events.EventBus) {
	t.Helper()
	bus := events.NewEventBus()
	t.Cleanup(bus.Close)
	dir := t.TempDir()
	m := New(bus, Options{
		Campaign:          "gap_sweep",
		Tasks:             []string{"prep", "O2_qb_gap_20"},
		Config:            config.DefaultConfig(),
		GlobalConfigPath:  filepath.Join(dir, "global.yaml"),
		ProjectConfigPath: filepath.Join(dir, "project.yaml"),
	})
	return m, bus
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	got, ok := next.(Model)
	require.True(t, ok)
	return got, cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case KeyTab:
		return tea.KeyMsg{Type: tea.KeyTab}
	case KeyEsc:
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestTaskStatesFollowEvents(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	m, _ := newTestModel(t)

	st, ok := m.Tasks().Task("O2_qb_gap_20")
	require.True(ok)
	assert.Equal(StateWaiting, st.Status)

	m, _ = update(t, m, events.StepDispatchedEvent{Task: "O2_qb_gap_20", Step: "sweep", JobID: "4242", Attempt: 1})
	m, _ = update(t, m, events.StatusLineEvent{Task: "O2_qb_gap_20", Line: "Executing sweep\n"})
	m, _ = update(t, m, events.StepFailedEvent{Task: "O2_qb_gap_20", Step: "sweep", Err: errors.New("project locked")})

	st, _ = m.Tasks().Task("O2_qb_gap_20")
	assert.Equal(StateRunning, st.Status)
	assert.Equal("sweep", st.Step)
	assert.Equal("4242", st.JobID)
	assert.Equal([]string{"Executing sweep", "[sweep: project locked]"}, st.Lines)

	m, _ = update(t, m, events.TaskDoneEvent{Task: "O2_qb_gap_20", Failed: true, Report: "O2_qb_gap_20|sweep|X|"})
	m, _ = update(t, m, events.TaskDoneEvent{Task: "late", Skipped: true})

	st, _ = m.Tasks().Task("O2_qb_gap_20")
	assert.Equal(StateFailed, st.Status)
	assert.Empty(st.Step)

	st, ok = m.Tasks().Task("late")
	require.True(ok)
	assert.Equal(StateSkipped, st.Status)
}

func TestEventsKeepTheSubscriptionAlive(t *testing.T) {
	m, bus := newTestModel(t)

	_, cmd := update(t, m, events.StatusLineEvent{Task: "prep", Line: "x"})
	require.NotNil(t, cmd)

	bus.Publish(events.ProgressEvent{Round: 1, Total: 2})
	assert.Equal(t, events.ProgressEvent{Round: 1, Total: 2}, waitForEvent(m.eventSub)())
}

func TestWaitForEventReportsClosedBus(t *testing.T) {
	ch := make(chan events.Event)
	close(ch)
	assert.Equal(t, busClosedMsg{}, waitForEvent(ch)())
}

func TestCampaignProgress(t *testing.T) {
	assert := assert.New(t)

	m, _ := newTestModel(t)
	assert.Zero(m.Campaign().Percent())

	m, _ = update(t, m, events.ProgressEvent{Round: 3, Total: 4, Done: 2, Failed: 1, Active: 1})
	assert.InDelta(0.75, m.Campaign().Percent(), 1e-9)

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m, _ = update(t, m, busClosedMsg{})
	assert.Contains(m.View(), "Polling stopped")
	assert.Contains(m.View(), "Campaign gap_sweep")
}

func TestFocusAndQuit(t *testing.T) {
	assert := assert.New(t)

	m, _ := newTestModel(t)
	assert.Equal(PaneTasks, m.focusedPane)

	m, _ = update(t, m, key(KeyTab))
	assert.Equal(PaneCampaign, m.focusedPane)
	m, _ = update(t, m, key(KeyTab))
	assert.Equal(PaneTasks, m.focusedPane)
	m, _ = update(t, m, key(KeyPane2))
	assert.Equal(PaneCampaign, m.focusedPane)

	m, cmd := update(t, m, key(KeyQuit))
	assert.NotNil(cmd)
	assert.Equal("Goodbye!\n", m.View())
}

func TestSettingsOverlay(t *testing.T) {
	assert := assert.New(t)

	m, _ := newTestModel(t)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	m, _ = update(t, m, key(KeySettings))
	assert.True(m.showSettings)
	assert.Contains(m.View(), "Settings")

	m, _ = update(t, m, key(KeyEsc))
	assert.False(m.showSettings)
	assert.False(m.quitting)
}

func TestApplySettings(t *testing.T) {
	tests := map[string]struct {
		fields  settingsFields
		wantErr bool
		check   func(t *testing.T, cfg *config.Config)
	}{
		"all fields": {
			fields: settingsFields{mode: "cluster", interval: "30s", staleAfter: "2h", maxAttempts: "5", displayWarnings: true},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "cluster", cfg.Backend.Mode)
				assert.Equal(t, 30*time.Second, cfg.Polling.Interval)
				assert.Equal(t, 2*time.Hour, cfg.Polling.StaleAfter)
				assert.Equal(t, 5, cfg.LockRetry.MaxAttempts)
				assert.True(t, cfg.DisplayWarnings)
			},
		},
		"bad interval": {
			fields:  settingsFields{mode: "local", interval: "soon", staleAfter: "0s", maxAttempts: "0"},
			wantErr: true,
		},
		"bad attempts": {
			fields:  settingsFields{mode: "local", interval: "1s", staleAfter: "0s", maxAttempts: "many"},
			wantErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			err := applySettings(cfg, &test.fields)
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			test.check(t, cfg)
		})
	}
}

func TestSettingsSave(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	m := NewSettingsPaneModel(cfg, filepath.Join(dir, "global.yaml"), filepath.Join(dir, "project.yaml"))
	m.fields.interval = "45s"
	m.fields.maxAttempts = "3"

	require.NoError(m.save())
	assert.Equal(45*time.Second, cfg.Polling.Interval)

	loaded, err := config.Load(filepath.Join(dir, "global.yaml"), filepath.Join(dir, "project.yaml"))
	require.NoError(err)
	assert.Equal(45*time.Second, loaded.Polling.Interval)
	assert.Equal(3, loaded.LockRetry.MaxAttempts)
}

func TestSettingsSaveRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	m := NewSettingsPaneModel(cfg, filepath.Join(dir, "global.yaml"), filepath.Join(dir, "project.yaml"))
	m.fields.interval = "0s"

	err := m.save()
	assert.ErrorIs(t, err, config.ErrNotValid)
	assert.Equal(t, 2*time.Second, cfg.Polling.Interval)
	assert.NoFileExists(t, filepath.Join(dir, "project.yaml"))
}
