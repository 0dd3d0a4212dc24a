package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/simcampaign/internal/events"
)

// Task display states.
const (
	StateWaiting = "waiting"
	StateRunning = "running"
	StateDone    = "done"
	StateFailed  = "failed"
	StateSkipped = "skipped"
)

const taskListWidth = 28

// TaskState is what the dashboard knows about one task.
type TaskState struct {
	Name    string
	Status  string
	Step    string // step currently dispatched
	JobID   string
	Attempt int
	Lines   []string
}

// TasksPaneModel lists the campaign tasks next to the status lines of the
// selected one.
type TasksPaneModel struct {
	tasks       map[string]*TaskState
	order       []string
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int
}

// NewTasksPaneModel creates the pane with the known task names in the
// waiting state.
func NewTasksPaneModel(names []string) TasksPaneModel {
	m := TasksPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
	}
	for _, n := range names {
		m.ensure(n)
	}
	m.updateViewportContent()
	return m
}

// tickMsg debounces viewport refreshes while status lines stream in.
type tickMsg struct {
	tag int
}

// Update handles messages for the tasks pane.
func (m TasksPaneModel) Update(msg tea.Msg) (TasksPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.StepDispatchedEvent:
		t := m.ensure(msg.Task)
		t.Status = StateRunning
		t.Step = msg.Step
		t.JobID = msg.JobID
		t.Attempt = msg.Attempt
		return m, m.refresh(msg.Task)

	case events.StepRequeuedEvent:
		t := m.ensure(msg.Task)
		t.Lines = append(t.Lines, fmt.Sprintf("[%s requeued, retry at %s]", msg.Step, msg.RetryAt.Format(time.TimeOnly)))
		return m, m.refresh(msg.Task)

	case events.StepFailedEvent:
		t := m.ensure(msg.Task)
		t.Lines = append(t.Lines, fmt.Sprintf("[%s: %v]", msg.Step, msg.Err))
		return m, m.refresh(msg.Task)

	case events.StepStaleEvent:
		t := m.ensure(msg.Task)
		t.Lines = append(t.Lines, fmt.Sprintf("[%s has shown no progress since %s]", msg.Step, msg.Since.Format(time.TimeOnly)))
		return m, m.refresh(msg.Task)

	case events.StepCompletedEvent:
		t := m.ensure(msg.Task)
		t.Step = ""
		t.JobID = ""

	case events.StatusLineEvent:
		t := m.ensure(msg.Task)
		t.Lines = append(t.Lines, strings.TrimRight(msg.Line, "\n"))
		return m, m.refresh(msg.Task)

	case events.TaskDoneEvent:
		t := m.ensure(msg.Task)
		switch {
		case msg.Skipped:
			t.Status = StateSkipped
		case msg.Failed:
			t.Status = StateFailed
		default:
			t.Status = StateDone
		}
		t.Step = ""
		t.Lines = append(t.Lines, fmt.Sprintf("[%s: %s]", t.Status, msg.Report))
		if m.SelectedTask() == msg.Task {
			m.updateViewportContent()
		}

	case tickMsg:
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// refresh schedules a debounced redraw when the task is the selected one.
func (m *TasksPaneModel) refresh(task string) tea.Cmd {
	if m.SelectedTask() != task {
		return nil
	}
	m.updateTag++
	tag := m.updateTag
	return tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{tag: tag}
	})
}

func (m *TasksPaneModel) ensure(name string) *TaskState {
	if t, ok := m.tasks[name]; ok {
		return t
	}
	t := &TaskState{Name: name, Status: StateWaiting}
	m.tasks[name] = t
	m.order = append(m.order, name)
	return t
}

// View renders the tasks pane.
func (m TasksPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(taskListWidth),
		lipgloss.NewStyle().
			Width(m.width-taskListWidth-4).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TasksPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, name := range m.order {
		t := m.tasks[name]
		label := name
		if t.Step != "" {
			label += " · " + t.Step
		}
		if len(label) > width-4 {
			label = label[:width-7] + "..."
		}
		line := fmt.Sprintf("%s %s", StatusIcon(t.Status), label)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case StateRunning:
		return StyleStatusRunning.Render("●")
	case StateDone:
		return StyleStatusComplete.Render("✓")
	case StateFailed:
		return StyleStatusFailed.Render("✗")
	case StateSkipped:
		return StyleStatusFailed.Render("-")
	default:
		return StyleStatusPending.Render("○")
	}
}

// SelectedTask returns the name of the selected task.
func (m TasksPaneModel) SelectedTask() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

// Task returns the state of a task.
func (m TasksPaneModel) Task(name string) (TaskState, bool) {
	t, ok := m.tasks[name]
	if !ok {
		return TaskState{}, false
	}
	return *t, true
}

func (m *TasksPaneModel) updateViewportContent() {
	t, ok := m.tasks[m.SelectedTask()]
	if !ok {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	var b strings.Builder
	if t.JobID != "" {
		fmt.Fprintf(&b, "job %s, attempt %d\n\n", t.JobID, t.Attempt)
	}
	b.WriteString(strings.Join(t.Lines, "\n"))
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// SetSize updates the pane dimensions.
func (m *TasksPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(w-taskListWidth-4, 10)
	m.viewport.Height = max(h-4, 5)
}

// SetFocused updates the focus state.
func (m *TasksPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
