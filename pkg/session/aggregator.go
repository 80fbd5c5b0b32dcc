package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"igfetch/pkg/models"
	"igfetch/pkg/storage"
)

// ErrNothingToExport is returned when no run has been recorded yet
var ErrNothingToExport = errors.New("no runs recorded yet")

// Aggregator accumulates counters and run history for the lifetime of the process
type Aggregator struct {
	mu      sync.Mutex
	stats   models.SessionStats
	history []models.HistoryEntry
	now     func() time.Time
}

// NewAggregator starts a session now
func NewAggregator() *Aggregator {
	return newAggregator(time.Now)
}

func newAggregator(now func() time.Time) *Aggregator {
	return &Aggregator{
		stats: models.SessionStats{SessionStart: now()},
		now:   now,
	}
}

// RecordRun adds one run with its links to the history and bumps the
// counters. Every run counts, including failed and empty ones.
func (a *Aggregator) RecordRun(kind models.Kind, target string, links []models.CandidateLink, outcome models.RunOutcome) models.HistoryEntry {
	entry := models.HistoryEntry{
		RunID:      uuid.NewString(),
		Kind:       kind,
		Target:     target,
		LinksFound: len(links),
		Links:      copyLinks(links),
		Outcome:    outcome,
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry.Timestamp = a.now()
	switch kind {
	case models.KindStories:
		a.stats.StoriesRuns++
	case models.KindReel:
		a.stats.ReelsRuns++
	}
	a.stats.TotalLinksFound += len(links)
	a.history = append(a.history, entry)
	return entry
}

// Snapshot returns the counters and the time elapsed since the session started
func (a *Aggregator) Snapshot() models.StatsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return models.StatsSnapshot{
		SessionStats: a.stats,
		Elapsed:      a.now().Sub(a.stats.SessionStart),
	}
}

// History returns a copy of the recorded runs, oldest first
func (a *Aggregator) History() []models.HistoryEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.historyLocked()
}

func (a *Aggregator) historyLocked() []models.HistoryEntry {
	out := make([]models.HistoryEntry, len(a.history))
	for i, e := range a.history {
		e.Links = copyLinks(e.Links)
		out[i] = e
	}
	return out
}

func copyLinks(links []models.CandidateLink) []models.CandidateLink {
	out := make([]models.CandidateLink, len(links))
	for i, l := range links {
		if l.SizeBytes != nil {
			size := *l.SizeBytes
			l.SizeBytes = &size
		}
		out[i] = l
	}
	return out
}

// ExportDocument is the JSON layout of a session export
type ExportDocument struct {
	SessionStats    exportStats           `json:"session_stats"`
	DownloadHistory []models.HistoryEntry `json:"download_history"`
	ExportTimestamp string                `json:"export_timestamp"`
	TotalEntries    int                   `json:"total_entries"`
}

type exportStats struct {
	StoriesRuns     int    `json:"stories_downloaded"`
	ReelsRuns       int    `json:"reels_downloaded"`
	TotalLinksFound int    `json:"total_links"`
	SessionStart    string `json:"session_start"`
}

// Export builds the export document
func (a *Aggregator) Export() ExportDocument {
	a.mu.Lock()
	defer a.mu.Unlock()

	history := a.historyLocked()
	return ExportDocument{
		SessionStats: exportStats{
			StoriesRuns:     a.stats.StoriesRuns,
			ReelsRuns:       a.stats.ReelsRuns,
			TotalLinksFound: a.stats.TotalLinksFound,
			SessionStart:    a.stats.SessionStart.Format(time.RFC3339),
		},
		DownloadHistory: history,
		ExportTimestamp: a.now().Format(time.RFC3339),
		TotalEntries:    len(history),
	}
}

// WriteExport writes the export document to path atomically
func (a *Aggregator) WriteExport(path string) (ExportDocument, error) {
	doc := a.Export()
	if doc.TotalEntries == 0 {
		return doc, ErrNothingToExport
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return doc, fmt.Errorf("failed to encode export: %w", err)
	}
	if err := storage.WriteFileAtomic(path, data); err != nil {
		return doc, fmt.Errorf("failed to write export: %w", err)
	}
	return doc, nil
}

// DefaultExportName is the file name used when the caller gives none
func DefaultExportName(at time.Time) string {
	return fmt.Sprintf("igfetch_session_%s.json", at.Format("20060102_150405"))
}
