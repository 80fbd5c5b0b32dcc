// Package tui renders a live terminal view of one extraction run.
package tui

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"igfetch/pkg/models"
	"igfetch/pkg/scraper"
)

// TUI is a scraper.Observer that drives a bubbletea program
type TUI struct {
	program *tea.Program
	model   *Model
}

// New creates a TUI for req writing to out. cancel is called when the user
// quits before the run finished.
func New(req models.ScrapeRequest, cancel func(), in io.Reader, out io.Writer) *TUI {
	model := NewModel(req, cancel)
	program := tea.NewProgram(&model, tea.WithInput(in), tea.WithOutput(out))

	return &TUI{
		program: program,
		model:   &model,
	}
}

// Run blocks until the run finished or the user quit
func (t *TUI) Run() error {
	_, err := t.program.Run()
	return err
}

// Report returns the final report shown, nil if the user quit first
func (t *TUI) Report() *models.RunReport {
	return t.model.Report()
}

func (t *TUI) StateChanged(tr scraper.Transition) {
	t.program.Send(StateMsg{Transition: tr})
}

func (t *TUI) CandidatesFound(links []models.CandidateLink) {
	t.program.Send(CandidatesMsg{Links: links})
}

func (t *TUI) LinkProcessed(link models.CandidateLink) {
	t.program.Send(LinkMsg{Link: link})
}

func (t *TUI) RunFinished(report *models.RunReport) {
	t.program.Send(FinishedMsg{Report: report})
}

var _ scraper.Observer = (*TUI)(nil)
