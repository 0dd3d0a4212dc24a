package tui

import (
	"fmt"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/simcampaign/internal/backend"
	"github.com/aristath/simcampaign/internal/config"
)

const (
	targetGlobal  = "global"
	targetProject = "project"
)

// settingsFields holds the form bindings. The form keeps pointers into it, so
// it lives behind a pointer that survives model copies.
type settingsFields struct {
	saveTarget      string
	mode            string
	interval        string
	staleAfter      string
	maxAttempts     string
	displayWarnings bool
}

// SettingsPaneModel manages the settings form overlay. Changes are written to
// a config file and apply to the next run.
type SettingsPaneModel struct {
	form        *huh.Form
	fields      *settingsFields
	config      *config.Config
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.Config, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
	}
	m.buildForm()
	return m
}

func fieldsFrom(cfg *config.Config) *settingsFields {
	return &settingsFields{
		saveTarget:      targetProject,
		mode:            cfg.Backend.Mode,
		interval:        cfg.Polling.Interval.String(),
		staleAfter:      cfg.Polling.StaleAfter.String(),
		maxAttempts:     strconv.Itoa(cfg.LockRetry.MaxAttempts),
		displayWarnings: cfg.DisplayWarnings,
	}
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("cannot be negative")
	}
	return nil
}

func validateCount(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not a number")
	}
	if n < 0 {
		return fmt.Errorf("cannot be negative")
	}
	return nil
}

func (m *SettingsPaneModel) buildForm() {
	m.fields = fieldsFrom(m.config)
	f := m.fields

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Project (.simcampaign/config.yaml)", targetProject),
					huh.NewOption("Global (~/.simcampaign/config.yaml)", targetGlobal),
				).
				Value(&f.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Key("mode").
				Title("Dispatch Mode").
				Options(
					huh.NewOption("Local workstation", backend.ModeLocal),
					huh.NewOption("Cluster (batch scheduler)", backend.ModeCluster),
				).
				Value(&f.mode),

			huh.NewInput().
				Key("interval").
				Title("Poll Interval").
				Value(&f.interval).
				Validate(validateDuration).
				Placeholder("2s"),

			huh.NewInput().
				Key("staleAfter").
				Title("Report Stale Steps After").
				Description("0s disables the report").
				Value(&f.staleAfter).
				Validate(validateDuration).
				Placeholder("0s"),

			huh.NewInput().
				Key("maxAttempts").
				Title("Lock Retry Attempts").
				Description("0 retries forever").
				Value(&f.maxAttempts).
				Validate(validateCount).
				Placeholder("0"),

			huh.NewConfirm().
				Key("displayWarnings").
				Title("Display Warnings").
				Value(&f.displayWarnings),
		).Title("Polling"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == KeyEsc {
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.err = m.save()
		m.saved = m.err == nil
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// save applies the form to a copy of the configuration and writes it when the
// result is valid.
func (m *SettingsPaneModel) save() error {
	next := *m.config
	if err := applySettings(&next, m.fields); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}

	target := m.projectPath
	if m.fields.saveTarget == targetGlobal {
		target = m.globalPath
	}
	if err := config.Save(&next, target); err != nil {
		return err
	}
	*m.config = next
	return nil
}

func applySettings(cfg *config.Config, f *settingsFields) error {
	interval, err := time.ParseDuration(f.interval)
	if err != nil {
		return fmt.Errorf("poll interval: %w", err)
	}
	stale, err := time.ParseDuration(f.staleAfter)
	if err != nil {
		return fmt.Errorf("stale limit: %w", err)
	}
	attempts, err := strconv.Atoi(f.maxAttempts)
	if err != nil {
		return fmt.Errorf("lock retry attempts: %w", err)
	}

	cfg.Backend.Mode = f.mode
	cfg.Polling.Interval = interval
	cfg.Polling.StaleAfter = stale
	cfg.LockRetry.MaxAttempts = attempts
	cfg.DisplayWarnings = f.displayWarnings
	return nil
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	switch {
	case m.err != nil:
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true).
			Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	default:
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings (next run)")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form = m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane. Showing it rebuilds the form
// from the current configuration.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil
	if v {
		m.buildForm()
		if m.width > 0 {
			m.form = m.form.WithWidth(m.width - 8).WithHeight(m.height - 8)
		}
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

// Saved reports whether the last form submission was written.
func (m SettingsPaneModel) Saved() bool {
	return m.saved
}
