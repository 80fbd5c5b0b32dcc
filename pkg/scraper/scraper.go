package scraper

import (
	"context"
	"net/http"
	"time"

	"igfetch/internal/downloader"
	"igfetch/pkg/browser"
	"igfetch/pkg/config"
	"igfetch/pkg/errors"
	"igfetch/pkg/instagram"
	"igfetch/pkg/ledger"
	"igfetch/pkg/logger"
	"igfetch/pkg/metrics"
	"igfetch/pkg/models"
	"igfetch/pkg/ratelimit"
	"igfetch/pkg/session"
	"igfetch/pkg/storage"
	"igfetch/pkg/validator"
)

// Observer receives progress of a run as it happens. Methods may be called
// from several goroutines.
type Observer interface {
	StateChanged(tr Transition)
	CandidatesFound(links []models.CandidateLink)
	LinkProcessed(link models.CandidateLink)
	RunFinished(report *models.RunReport)
}

// Launcher starts a browser session for one run
type Launcher func(ctx context.Context) (browser.Session, error)

// Scraper runs extraction requests end to end: browser protocol, link
// validation, optional persistence and session bookkeeping
type Scraper struct {
	config     *config.Config
	logger     logger.Logger
	launch     Launcher
	validator  *validator.Validator
	storage    *storage.Manager
	ledger     ledger.Ledger
	ownsLedger bool
	locks      *ledger.KeyLocks
	aggregator *session.Aggregator
	metrics    *metrics.Metrics
	observer   Observer
	now        func() time.Time
}

// Option configures a Scraper
type Option func(*Scraper)

// WithLauncher replaces the browser launch strategies
func WithLauncher(l Launcher) Option {
	return func(s *Scraper) { s.launch = l }
}

// WithValidator replaces the link validator
func WithValidator(v *validator.Validator) Option {
	return func(s *Scraper) { s.validator = v }
}

// WithLedger uses an already opened ledger. The caller keeps ownership.
func WithLedger(l ledger.Ledger) Option {
	return func(s *Scraper) { s.ledger = l }
}

// WithAggregator shares a session aggregator
func WithAggregator(a *session.Aggregator) Option {
	return func(s *Scraper) { s.aggregator = a }
}

// WithMetrics records run metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scraper) { s.metrics = m }
}

// WithObserver reports run progress to o
func WithObserver(o Observer) Option {
	return func(s *Scraper) { s.observer = o }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(s *Scraper) { s.logger = l }
}

// New creates a Scraper from cfg. In persist mode the output directory is
// created and the configured ledger opened.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Scraper, error) {
	s := &Scraper{
		config: cfg,
		logger: logger.GetLogger(),
		locks:  ledger.NewKeyLocks(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.launch == nil {
		strategies := browser.DefaultStrategies(cfg, s.logger)
		s.launch = func(ctx context.Context) (browser.Session, error) {
			return browser.Launch(ctx, strategies, s.logger)
		}
	}
	if s.validator == nil {
		s.validator = validator.New(cfg.Browser.UserAgent,
			validator.WithHTTPClient(&http.Client{Timeout: cfg.Download.Timeout}),
			validator.WithLimiter(ratelimit.PerMinute(cfg.Validation.RequestsPerMinute)),
			validator.WithLogger(s.logger),
		)
	}
	if s.aggregator == nil {
		s.aggregator = session.NewAggregator()
	}

	if cfg.Persist() {
		store, err := storage.NewManager(cfg.Download.OutputDir, cfg.Download.FileNamePattern)
		if err != nil {
			return nil, errors.New(errors.ErrorTypeLedgerIO, "init", "", err)
		}
		s.storage = store

		if s.ledger == nil {
			l, err := ledger.Open(ctx, cfg.Ledger)
			if err != nil {
				return nil, err
			}
			s.ledger = l
			s.ownsLedger = true
		}
	}

	logger.LogComponentStart(s.logger, "scraper", map[string]interface{}{
		"mode":        cfg.Download.Mode,
		"concurrency": cfg.Validation.Concurrency,
		"entry_url":   cfg.Site.EntryURL,
	})
	return s, nil
}

// Aggregator returns the session aggregator runs are recorded in
func (s *Scraper) Aggregator() *session.Aggregator {
	return s.aggregator
}

// Close releases the ledger if the Scraper opened it
func (s *Scraper) Close() error {
	if s.ownsLedger && s.ledger != nil {
		return s.ledger.Close()
	}
	return nil
}

// ExtractStories returns the valid story links of username. A user without
// stories yields an empty slice and no error.
func (s *Scraper) ExtractStories(ctx context.Context, username string) ([]models.CandidateLink, error) {
	req, err := instagram.NewStoriesRequest(username)
	if err != nil {
		return nil, err
	}
	report := s.Extract(ctx, req)
	return report.Valid, report.Err
}

// ExtractReel returns the valid download links of a reel
func (s *Scraper) ExtractReel(ctx context.Context, reelURL string) ([]models.CandidateLink, error) {
	req, err := instagram.NewReelRequest(reelURL)
	if err != nil {
		return nil, err
	}
	report := s.Extract(ctx, req)
	return report.Valid, report.Err
}

// Extract runs req and returns the full report. The run is always recorded
// in the session history, whatever its outcome.
func (s *Scraper) Extract(ctx context.Context, req models.ScrapeRequest) *models.RunReport {
	return s.ExtractObserved(ctx, req, nil)
}

// ExtractObserved is Extract with an extra observer for this run only, next
// to the one given with WithObserver
func (s *Scraper) ExtractObserved(ctx context.Context, req models.ScrapeRequest, obs Observer) *models.RunReport {
	obs = joinObservers(s.observer, obs)
	started := s.now()
	log := s.logger.WithFields(map[string]interface{}{
		"kind":   req.Kind(),
		"target": req.Target(),
	})

	report := &models.RunReport{
		Request: req,
		Valid:   []models.CandidateLink{},
		Failed:  []models.CandidateLink{},
	}
	report.Outcome, report.Err = s.run(ctx, req, report, obs, log)
	report.Duration = s.now().Sub(started)

	entry := s.aggregator.RecordRun(req.Kind(), req.Target(), report.Valid, report.Outcome)
	report.RunID = entry.RunID

	if s.storage != nil && s.config.Download.TaskLog {
		line := storage.TaskLogLine(entry.Timestamp, req.Kind(), req.Target(), report.Outcome, len(report.Valid))
		if err := s.storage.AppendTaskLog(line); err != nil {
			log.WithError(err).Warn("Failed to append task log")
		}
	}

	s.metrics.ObserveRun(req.Kind(), report.Outcome, report.Duration, report.PaginationClicks)
	logger.LogRunSummary(log, string(req.Kind()), req.Target(), string(report.Outcome),
		len(report.Candidates), len(report.Valid), report.Duration)
	if obs != nil {
		obs.RunFinished(report)
	}
	return report
}

func (s *Scraper) run(ctx context.Context, req models.ScrapeRequest, report *models.RunReport, obs Observer, log logger.Logger) (models.RunOutcome, error) {
	sess, err := s.launch(ctx)
	if err != nil {
		return failure(ctx, err)
	}
	defer s.closeSession(sess, log)

	seq, err := NewSequencer(sess, s.config, log)
	if err != nil {
		return failure(ctx, err)
	}
	if obs != nil {
		seq.OnTransition(obs.StateChanged)
	}

	candidates, err := seq.Run(ctx, req)
	report.PaginationClicks = seq.PaginationClicks()
	if err != nil {
		if errors.Is(err, errors.ErrNoStories) {
			log.Info("Stories tab not available")
			return models.OutcomeNoContent, nil
		}
		return failure(ctx, err)
	}

	// the page is no longer needed once links are collected
	s.closeSession(sess, log)

	report.Candidates = candidates
	s.metrics.ObserveCandidates(models.LinkKindFor(req.Kind()), len(candidates))
	if obs != nil {
		obs.CandidatesFound(candidates)
	}
	if len(candidates) == 0 {
		return models.OutcomeNoContent, nil
	}

	opts := []downloader.Option{downloader.WithMetrics(s.metrics)}
	if obs != nil {
		opts = append(opts, downloader.WithProgress(obs.LinkProcessed))
	}
	if s.storage != nil && s.ledger != nil {
		opts = append(opts, downloader.WithPersistence(&downloader.Persistence{
			Label:   instagram.TargetLabel(req),
			Fetcher: s.validator,
			Store:   s.storage,
			Ledger:  s.ledger,
			Locks:   s.locks,
		}))
	}

	pool := downloader.NewWorkerPool(s.config.Validation.Concurrency, s.validator, s.config.Validation.Timeout, log, opts...)
	processed, persistErr := pool.Run(ctx, candidates)

	for _, l := range processed {
		report.Candidates[l.Ordinal-1] = l
		if l.Status.IsValid() {
			report.Valid = append(report.Valid, l)
		} else {
			report.Failed = append(report.Failed, l)
		}
	}

	if ctx.Err() != nil {
		return models.OutcomeCancelled, errors.Join(
			errors.New(errors.ErrorTypeCancelled, "validate", "", ctx.Err()), persistErr)
	}
	if persistErr != nil {
		log.WithError(persistErr).Warn("Some media could not be persisted")
	}
	return models.OutcomeCompleted, persistErr
}

func (s *Scraper) closeSession(sess browser.Session, log logger.Logger) {
	if err := sess.Close(); err != nil {
		log.WithError(err).Warn("Failed to close browser")
	}
}

func failure(ctx context.Context, err error) (models.RunOutcome, error) {
	if ctx.Err() != nil || errors.IsType(err, errors.ErrorTypeCancelled) {
		return models.OutcomeCancelled, err
	}
	return models.OutcomeFailed, err
}

type observers []Observer

func joinObservers(list ...Observer) Observer {
	var out observers
	for _, o := range list {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

func (m observers) StateChanged(tr Transition) {
	for _, o := range m {
		o.StateChanged(tr)
	}
}

func (m observers) CandidatesFound(links []models.CandidateLink) {
	for _, o := range m {
		o.CandidatesFound(links)
	}
}

func (m observers) LinkProcessed(link models.CandidateLink) {
	for _, o := range m {
		o.LinkProcessed(link)
	}
}

func (m observers) RunFinished(report *models.RunReport) {
	for _, o := range m {
		o.RunFinished(report)
	}
}
