package ui

import (
	"fmt"
	"strings"
	"time"

	"igfetch/pkg/models"
)

// Report prints the outcome of one run: every link with its status, then counts
func (p *Printer) Report(r *models.RunReport) {
	title := fmt.Sprintf("[%s %s]", strings.ToUpper(string(r.Request.Kind())), r.Request.Target())
	fmt.Fprintln(p.out)
	p.Highlight(title)

	for _, l := range r.Candidates {
		fmt.Fprintln(p.out, p.linkLine(l))
	}

	fmt.Fprintf(p.out, "\n%s %s  %s %s  %s %s  %s %s\n",
		p.Cyan("Found:"), p.Yellow(fmt.Sprint(len(r.Candidates))),
		p.Cyan("Valid:"), p.Green(fmt.Sprint(len(r.Valid))),
		p.Cyan("Failed:"), p.Red(fmt.Sprint(len(r.Failed))),
		p.Cyan("Time:"), p.Yellow(FormatDuration(r.Duration)),
	)
	if r.PaginationClicks > 0 {
		p.Info("Pages loaded", fmt.Sprint(r.PaginationClicks+1))
	}

	switch r.Outcome {
	case models.OutcomeCompleted:
		p.Success(fmt.Sprintf("%d valid links", len(r.Valid)))
	case models.OutcomeNoContent:
		p.Warning("No content available")
	case models.OutcomeCancelled:
		p.Warning("Cancelled, partial results shown")
	case models.OutcomeFailed:
		p.Error("Extraction failed")
	}
	if r.Err != nil {
		p.Error("Error", r.Err)
	}
}

func (p *Printer) linkLine(l models.CandidateLink) string {
	prefix := fmt.Sprintf("%3d.", l.Ordinal)
	switch {
	case l.Status.State == models.StatePending:
		return p.Dim(fmt.Sprintf("%s - not checked  %s", prefix, l.URL))
	case !l.Status.IsValid():
		return fmt.Sprintf("%s %s %s  %s", prefix, p.Red("✗"), p.Red(l.Status.String()), p.Dim(l.URL))
	}

	var detail []string
	if l.Extension != "" {
		detail = append(detail, l.Extension)
	}
	if mb := l.SizeMB(); mb >= 0 {
		detail = append(detail, fmt.Sprintf("%.2f MB", mb))
	}
	switch {
	case l.Duplicate:
		detail = append(detail, p.Yellow("already downloaded"))
	case l.SavedPath != "":
		detail = append(detail, "saved "+l.SavedPath)
	}

	line := fmt.Sprintf("%s %s", prefix, p.Green("✓"))
	if len(detail) > 0 {
		line += " " + strings.Join(detail, ", ")
	}
	return line + "  " + l.URL
}

// Stats prints the session counters
func (p *Printer) Stats(s models.StatsSnapshot) {
	fmt.Fprintln(p.out)
	p.Highlight("[SESSION STATISTICS]")
	p.Info("Stories runs", fmt.Sprint(s.StoriesRuns))
	p.Info("Reel runs", fmt.Sprint(s.ReelsRuns))
	p.Info("Total links found", fmt.Sprint(s.TotalLinksFound))
	p.Info("Session started", s.SessionStart.Format("2006-01-02 15:04:05"))
	p.Info("Session duration", FormatDuration(s.Elapsed))
}

// History prints the recorded runs, oldest first
func (p *Printer) History(entries []models.HistoryEntry) {
	fmt.Fprintln(p.out)
	p.Highlight("[DOWNLOAD HISTORY]")
	if len(entries) == 0 {
		p.Warning("No runs yet")
		return
	}
	for i, e := range entries {
		fmt.Fprintf(p.out, "%3d. %s  %s %s  %s %s\n",
			i+1,
			p.Dim(e.Timestamp.Format("2006-01-02 15:04:05")),
			p.Cyan(string(e.Kind)),
			e.Target,
			p.Yellow(fmt.Sprintf("%d links", e.LinksFound)),
			p.Dim("("+string(e.Outcome)+")"),
		)
	}
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
