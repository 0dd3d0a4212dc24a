package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/simcampaign/internal/config"
	"github.com/aristath/simcampaign/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneCampaign
	paneCount
)

// busClosedMsg is delivered once the event bus is closed: the polling loop
// has stopped.
type busClosedMsg struct{}

// Options configures the dashboard.
type Options struct {
	Campaign          string
	Tasks             []string // task names, in display order
	Config            *config.Config
	GlobalConfigPath  string
	ProjectConfigPath string
}

// Model is the root Bubble Tea model for the campaign dashboard.
type Model struct {
	tasksPane    TasksPaneModel
	campaignPane CampaignPaneModel
	settingsPane SettingsPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	width        int
	height       int
	quitting     bool
	showSettings bool
}

// New creates the dashboard model. It subscribes to every topic of the bus.
func New(eventBus *events.EventBus, opts Options) Model {
	m := Model{
		tasksPane:    NewTasksPaneModel(opts.Tasks),
		campaignPane: NewCampaignPaneModel(opts.Campaign),
		settingsPane: NewSettingsPaneModel(opts.Config, opts.GlobalConfigPath, opts.ProjectConfigPath),
		focusedPane:  PaneTasks,
		eventSub:     eventBus.SubscribeAll(256),
	}
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return busClosedMsg{}
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// The settings form is modal.
		if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
			if !m.settingsPane.IsVisible() {
				m.showSettings = false
			}
			return m, tea.Batch(cmds...)
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneCampaign
			m.updateFocusStates()

		default:
			if m.focusedPane == PaneTasks {
				var cmd tea.Cmd
				m.tasksPane, cmd = m.tasksPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case tickMsg:
		var cmd tea.Cmd
		m.tasksPane, cmd = m.tasksPane.Update(msg)
		cmds = append(cmds, cmd)

	case events.ProgressEvent:
		var cmd tea.Cmd
		m.campaignPane, cmd = m.campaignPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.Event:
		var cmd tea.Cmd
		m.tasksPane, cmd = m.tasksPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case busClosedMsg:
		m.campaignPane, _ = m.campaignPane.Update(msg)

	default:
		// Form internals (cursor blink and friends).
		if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.showSettings {
		return m.settingsPane.View()
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.tasksPane.View(), m.campaignPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, body, HelpView())
}

// computeLayout gives the tasks pane 65% of the width.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 65) / 100
	availableHeight := m.height - 1 // help bar

	m.tasksPane.SetSize(leftWidth, availableHeight)
	m.campaignPane.SetSize(m.width-leftWidth, availableHeight)
	m.updateFocusStates()
}

func (m *Model) updateFocusStates() {
	m.tasksPane.SetFocused(m.focusedPane == PaneTasks)
	m.campaignPane.SetFocused(m.focusedPane == PaneCampaign)
}

// Tasks exposes the task states shown by the dashboard.
func (m Model) Tasks() TasksPaneModel {
	return m.tasksPane
}

// Campaign exposes the campaign progress shown by the dashboard.
func (m Model) Campaign() CampaignPaneModel {
	return m.campaignPane
}
