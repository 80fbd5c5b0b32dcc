package tui

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"

	"igfetch/pkg/models"
	"igfetch/pkg/scraper"
)

// maxRows is how many links the view lists before eliding
const maxRows = 12

// phases are shown in protocol order; the stories tab and pagination only
// apply to stories runs
var phases = []scraper.State{
	scraper.StateOpened,
	scraper.StateConsentHandled,
	scraper.StateTargetSubmitted,
	scraper.StateTabSelected,
	scraper.StatePaginated,
	scraper.StateCollected,
}

// Model is the live view of a single extraction run
type Model struct {
	spinner spinner.Model
	bar     progress.Model

	kind   models.Kind
	target string

	phase     scraper.State
	phaseErr  error
	links     []models.CandidateLink
	processed map[int]bool
	valid     int
	failed    int
	saved     int
	dupes     int

	report   *models.RunReport
	started  time.Time
	width    int
	quitting bool

	// cancel aborts the run when the user quits early
	cancel func()
}

// NewModel creates the view for req
func NewModel(req models.ScrapeRequest, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	return Model{
		spinner:   s,
		bar:       bar,
		kind:      req.Kind(),
		target:    req.Target(),
		phase:     scraper.StateInit,
		processed: map[int]bool{},
		started:   time.Now(),
		cancel:    cancel,
	}
}

// Report returns the final report once the run finished, nil before
func (m *Model) Report() *models.RunReport {
	return m.report
}

// setPhase keeps the last good phase on failure so the view shows where the run stopped
func (m *Model) setPhase(tr scraper.Transition) {
	if tr.To == scraper.StateFailed {
		m.phaseErr = tr.Err
		if m.phaseErr == nil {
			m.phaseErr = errors.New("run failed")
		}
		return
	}
	m.phase = tr.To
}

func (m *Model) setCandidates(links []models.CandidateLink) {
	m.links = append([]models.CandidateLink(nil), links...)
	m.processed = map[int]bool{}
	m.valid, m.failed, m.saved, m.dupes = 0, 0, 0, 0
}

func (m *Model) linkDone(l models.CandidateLink) {
	i := l.Ordinal - 1
	if i < 0 || i >= len(m.links) || m.processed[l.Ordinal] {
		return
	}
	m.links[i] = l
	m.processed[l.Ordinal] = true

	switch {
	case !l.Status.IsValid():
		m.failed++
	case l.Duplicate:
		m.valid++
		m.dupes++
	case l.SavedPath != "":
		m.valid++
		m.saved++
	default:
		m.valid++
	}
}

// percent is the share of candidates processed so far
func (m *Model) percent() float64 {
	if len(m.links) == 0 {
		return 0
	}
	return float64(len(m.processed)) / float64(len(m.links))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	mins := d / time.Minute
	d -= mins * time.Minute
	sec := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, mins, sec)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm %ds", mins, sec)
	}
	return fmt.Sprintf("%ds", sec)
}
