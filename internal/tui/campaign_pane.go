package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/simcampaign/internal/events"
)

// CampaignPaneModel shows the counters of the last polling round.
type CampaignPaneModel struct {
	name     string
	last     events.ProgressEvent
	finished bool
	bar      progress.Model
	width    int
	height   int
	focused  bool
}

// NewCampaignPaneModel creates the campaign progress pane.
func NewCampaignPaneModel(name string) CampaignPaneModel {
	return CampaignPaneModel{
		name: name,
		bar:  progress.New(progress.WithDefaultGradient()),
	}
}

// Update handles messages for the campaign pane.
func (m CampaignPaneModel) Update(msg tea.Msg) (CampaignPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
	case events.ProgressEvent:
		m.last = msg
	case busClosedMsg:
		m.finished = true
	}
	return m, nil
}

// Percent is the share of tasks that left the active set.
func (m CampaignPaneModel) Percent() float64 {
	if m.last.Total == 0 {
		return 0
	}
	return float64(m.last.Done+m.last.Failed) / float64(m.last.Total)
}

// View renders the campaign pane.
func (m CampaignPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Campaign " + m.name)
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	p := m.last
	fmt.Fprintf(&b, "Round:   %d\n", p.Round)
	fmt.Fprintf(&b, "Total:   %d\n", p.Total)
	fmt.Fprintf(&b, "Done:    %s\n", StyleStatusComplete.Render(fmt.Sprint(p.Done)))
	fmt.Fprintf(&b, "Active:  %s\n", StyleStatusRunning.Render(fmt.Sprint(p.Active)))
	fmt.Fprintf(&b, "Waiting: %s\n", StyleStatusPending.Render(fmt.Sprint(p.Waiting)))
	fmt.Fprintf(&b, "Failed:  %s\n", StyleStatusFailed.Render(fmt.Sprint(p.Failed)))
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(m.Percent()))
	if m.finished {
		b.WriteString("\n\n")
		b.WriteString(StyleStatusComplete.Render("Polling stopped"))
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *CampaignPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.bar.Width = min(max(w-6, 10), 60)
}

// SetFocused updates the focus state.
func (m *CampaignPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
