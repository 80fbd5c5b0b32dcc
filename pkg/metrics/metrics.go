// Package metrics exposes prometheus instrumentation for extraction runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"igfetch/pkg/models"
)

const namespace = "igfetch"

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	PaginationClicks prometheus.Histogram
	CandidatesTotal  *prometheus.CounterVec
	ChecksTotal      *prometheus.CounterVec
	CheckDuration    prometheus.Histogram
	MediaSavedTotal  prometheus.Counter
	DuplicatesTotal  prometheus.Counter
	LedgerErrors     prometheus.Counter
	WorkersBusy      prometheus.Gauge
}

// New creates and registers all collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Extraction runs by kind and outcome.",
		}, []string{"kind", "outcome"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of extraction runs.",
			Buckets:   []float64{5, 10, 20, 30, 60, 120, 300},
		}, []string{"kind"}),
		PaginationClicks: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pagination_clicks",
			Help:      "Number of \"see more\" clicks per stories run.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),
		CandidatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Candidate links discovered on result pages.",
		}, []string{"kind"}),
		ChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Link validations by resulting state.",
		}, []string{"state"}),
		CheckDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Duration of link validation requests.",
			Buckets:   prometheus.DefBuckets,
		}),
		MediaSavedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_saved_total",
			Help:      "Media files written to disk.",
		}),
		DuplicatesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_skipped_total",
			Help:      "Valid links skipped because the ledger already had them.",
		}),
		LedgerErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_errors_total",
			Help:      "Ledger lookups or writes that failed.",
		}),
		WorkersBusy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_busy",
			Help:      "Candidate workers currently processing a link.",
		}),
	}
}

func (m *Metrics) ObserveRun(kind models.Kind, outcome models.RunOutcome, d time.Duration, clicks int) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(string(kind), string(outcome)).Inc()
	m.RunDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
	if kind == models.KindStories {
		m.PaginationClicks.Observe(float64(clicks))
	}
}

func (m *Metrics) ObserveCandidates(kind models.LinkKind, n int) {
	if m == nil {
		return
	}
	m.CandidatesTotal.WithLabelValues(string(kind)).Add(float64(n))
}

func (m *Metrics) ObserveCheck(state models.ValidationState, d time.Duration) {
	if m == nil {
		return
	}
	m.ChecksTotal.WithLabelValues(string(state)).Inc()
	m.CheckDuration.Observe(d.Seconds())
}

func (m *Metrics) MediaSaved() {
	if m != nil {
		m.MediaSavedTotal.Inc()
	}
}

func (m *Metrics) DuplicateSkipped() {
	if m != nil {
		m.DuplicatesTotal.Inc()
	}
}

func (m *Metrics) LedgerError() {
	if m != nil {
		m.LedgerErrors.Inc()
	}
}

func (m *Metrics) WorkerStarted() {
	if m != nil {
		m.WorkersBusy.Inc()
	}
}

func (m *Metrics) WorkerFinished() {
	if m != nil {
		m.WorkersBusy.Dec()
	}
}
