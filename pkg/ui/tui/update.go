package tui

import (
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"igfetch/pkg/models"
	"igfetch/pkg/scraper"
)

// StateMsg reports a sequencer state change
type StateMsg struct {
	Transition scraper.Transition
}

// CandidatesMsg carries the links collected from the result page
type CandidatesMsg struct {
	Links []models.CandidateLink
}

// LinkMsg carries one processed link
type LinkMsg struct {
	Link models.CandidateLink
}

// FinishedMsg ends the view with the run's report
type FinishedMsg struct {
	Report *models.RunReport
}

// Init starts the spinner
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if w := msg.Width - 20; w > 10 && w < 60 {
			m.bar.Width = w
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		updated, cmd := m.bar.Update(msg)
		if bar, ok := updated.(progress.Model); ok {
			m.bar = bar
		}
		return m, cmd

	case StateMsg:
		m.setPhase(msg.Transition)
		return m, nil

	case CandidatesMsg:
		m.setCandidates(msg.Links)
		return m, nil

	case LinkMsg:
		m.linkDone(msg.Link)
		return m, nil

	case FinishedMsg:
		m.report = msg.Report
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c", "esc":
		m.quitting = true
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit
	}
	return m, nil
}
