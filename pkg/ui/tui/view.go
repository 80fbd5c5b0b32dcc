package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"igfetch/pkg/models"
	"igfetch/pkg/scraper"
)

// View renders the run
func (m *Model) View() string {
	sections := []string{
		m.renderHeader(),
		m.renderPhases(),
	}
	if len(m.links) > 0 {
		sections = append(sections, m.renderLinks())
	}
	sections = append(sections, m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func (m *Model) renderHeader() string {
	title := titleStyle.Render(fmt.Sprintf(" %s ", strings.ToUpper(string(m.kind))))
	elapsed := time.Since(m.started)
	if m.report != nil {
		elapsed = m.report.Duration
	}
	return fmt.Sprintf("%s %s  %s",
		title,
		statsValueStyle.Render(m.target),
		phaseStyle.Render(formatDuration(elapsed)))
}

func (m *Model) renderPhases() string {
	reached := map[scraper.State]bool{}
	after := false
	for i := len(phases) - 1; i >= 0; i-- {
		if phases[i] == m.phase || m.phase == scraper.StateDone {
			after = true
		}
		reached[phases[i]] = after
	}

	var parts []string
	for _, p := range phases {
		if m.kind == models.KindReel && p == scraper.StateTabSelected {
			continue
		}
		label := strings.ReplaceAll(string(p), "_", " ")
		switch {
		case p == m.phase:
			parts = append(parts, phaseActiveStyle.Render(label))
		case reached[p]:
			parts = append(parts, successStyle.Render("✓ ")+phaseStyle.Render(label))
		default:
			parts = append(parts, pendingStyle.Render(label))
		}
	}

	line := strings.Join(parts, phaseStyle.Render(" › "))
	if m.phaseErr != nil {
		line += "\n" + errorStyle.Render("✗ "+m.phaseErr.Error())
	}
	return line
}

func (m *Model) renderLinks() string {
	stats := fmt.Sprintf("%s %s  %s %s  %s %s",
		statsLabelStyle.Render("Found:"), statsValueStyle.Render(fmt.Sprint(len(m.links))),
		statsLabelStyle.Render("Valid:"), successStyle.Render(fmt.Sprint(m.valid)),
		statsLabelStyle.Render("Failed:"), errorStyle.Render(fmt.Sprint(m.failed)))
	if m.saved > 0 || m.dupes > 0 {
		stats += fmt.Sprintf("  %s %s  %s %s",
			statsLabelStyle.Render("Saved:"), statsValueStyle.Render(fmt.Sprint(m.saved)),
			statsLabelStyle.Render("Skipped:"), statsValueStyle.Render(fmt.Sprint(m.dupes)))
	}

	rows := []string{stats, m.bar.ViewAs(m.percent())}
	for i, l := range m.links {
		if i == maxRows {
			rows = append(rows, pendingStyle.Render(fmt.Sprintf("  … %d more", len(m.links)-maxRows)))
			break
		}
		rows = append(rows, m.renderLink(l))
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderLink(l models.CandidateLink) string {
	prefix := fmt.Sprintf("%3d. ", l.Ordinal)
	if !m.processed[l.Ordinal] {
		return pendingStyle.Render(prefix + "pending")
	}
	if !l.Status.IsValid() {
		return errorStyle.Render(prefix + "✗ " + l.Status.String())
	}

	detail := l.Status.String()
	if l.Extension != "" {
		detail += " " + l.Extension
	}
	if mb := l.SizeMB(); mb >= 0 {
		detail += fmt.Sprintf(" %.2f MB", mb)
	}
	switch {
	case l.Duplicate:
		detail += warningStyle.Render(" (already downloaded)")
	case l.SavedPath != "":
		detail += phaseStyle.Render(" → " + l.SavedPath)
	}
	return successStyle.Render(prefix+"✓ ") + detail
}

func (m *Model) renderFooter() string {
	switch {
	case m.report != nil:
		return statsLabelStyle.Render("Outcome: ") + statsValueStyle.Render(string(m.report.Outcome))
	case m.quitting:
		return warningStyle.Render("Cancelling…")
	default:
		return m.spinner.View() + " " + helpStyle.Render("working, press q to cancel")
	}
}
