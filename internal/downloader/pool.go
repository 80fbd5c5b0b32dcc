package downloader

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"igfetch/pkg/errors"
	"igfetch/pkg/ledger"
	"igfetch/pkg/logger"
	"igfetch/pkg/metrics"
	"igfetch/pkg/models"
	"igfetch/pkg/validator"
)

// Checker validates a single URL
type Checker interface {
	Validate(ctx context.Context, url string, timeout time.Duration) validator.Result
}

// Fetcher downloads the body of a URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, string, error)
}

// MediaStore writes downloaded media to disk
type MediaStore interface {
	SaveMedia(r io.Reader, target string, kind models.LinkKind, index int, ext string) (string, error)
}

// Persistence enables persist mode: valid links not yet in the ledger are
// fetched, saved and recorded.
type Persistence struct {
	// Label names saved files; the link's source target is used when empty
	Label   string
	Fetcher Fetcher
	Store   MediaStore
	Ledger  ledger.Ledger
	Locks   *ledger.KeyLocks
}

// Result is the outcome of processing one candidate
type Result struct {
	Link     models.CandidateLink
	Err      error
	Duration time.Duration

	// skipped is set when the run was cancelled before the job finished
	skipped bool
}

// Option configures a WorkerPool
type Option func(*WorkerPool)

// WithPersistence turns on saving of valid media
func WithPersistence(p *Persistence) Option {
	return func(wp *WorkerPool) { wp.persist = p }
}

// WithMetrics records check and save metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(wp *WorkerPool) { wp.metrics = m }
}

// WithProgress calls fn with every processed link, from the worker goroutines
func WithProgress(fn func(models.CandidateLink)) Option {
	return func(wp *WorkerPool) { wp.progress = fn }
}

// WorkerPool validates candidate links with a fixed number of workers.
// A pool serves one run: Start, Submit, Stop, drain Results.
type WorkerPool struct {
	numWorkers   int
	checkTimeout time.Duration
	jobQueue     chan models.CandidateLink
	resultQueue  chan Result
	wg           sync.WaitGroup
	ctx          context.Context
	checker      Checker
	persist      *Persistence
	metrics      *metrics.Metrics
	progress     func(models.CandidateLink)
	logger       logger.Logger
}

// NewWorkerPool creates a pool of numWorkers workers (at least one)
func NewWorkerPool(numWorkers int, checker Checker, checkTimeout time.Duration, log logger.Logger, opts ...Option) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}

	wp := &WorkerPool{
		numWorkers:   numWorkers,
		checkTimeout: checkTimeout,
		jobQueue:     make(chan models.CandidateLink, numWorkers*2),
		resultQueue:  make(chan Result, numWorkers),
		ctx:          context.Background(),
		checker:      checker,
		logger:       log,
	}
	for _, opt := range opts {
		opt(wp)
	}
	return wp
}

// Start launches the workers. Jobs still queued when ctx is cancelled are
// dropped without being processed.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.ctx = ctx
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
		"persist":     wp.persist != nil,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the queue, waits for the workers and closes Results
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.logger.Debug("Worker pool stopped")
}

// Submit queues a candidate
func (wp *WorkerPool) Submit(link models.CandidateLink) error {
	select {
	case wp.jobQueue <- link:
		return nil
	case <-wp.ctx.Done():
		return errors.New(errors.ErrorTypeCancelled, "validate", "worker pool is shutting down", wp.ctx.Err())
	}
}

// Results returns the channel results are delivered on, in completion order
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

// Run processes links and returns the finished ones sorted by ordinal.
// When ctx is cancelled, links not yet processed are left out. The error
// joins the persist failures of individual links; it never stops the others.
func (wp *WorkerPool) Run(ctx context.Context, links []models.CandidateLink) ([]models.CandidateLink, error) {
	wp.Start(ctx)

	go func() {
		for _, l := range links {
			if err := wp.Submit(l); err != nil {
				break
			}
		}
		wp.Stop()
	}()

	out := make([]models.CandidateLink, 0, len(links))
	var errs []error
	for r := range wp.Results() {
		if r.skipped {
			continue
		}
		out = append(out, r.Link)
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, stderrors.Join(errs...)
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for link := range wp.jobQueue {
		if wp.ctx.Err() != nil {
			continue
		}

		wp.metrics.WorkerStarted()
		result := wp.processJob(link, id)
		wp.metrics.WorkerFinished()

		if !result.skipped && wp.progress != nil {
			wp.progress(result.Link)
		}

		// the consumer drains until the channel is closed
		wp.resultQueue <- result
	}
}

func (wp *WorkerPool) processJob(link models.CandidateLink, workerID int) Result {
	start := time.Now()

	res := wp.checker.Validate(wp.ctx, link.URL, wp.checkTimeout)
	if wp.ctx.Err() != nil && !res.Status.IsValid() {
		return Result{Link: link, skipped: true}
	}

	link.Status = res.Status
	link.ContentType = res.ContentType
	link.SizeBytes = res.SizeBytes
	if res.Status.IsValid() {
		link.Extension = validator.Classify(res.ContentType)
	}

	elapsed := time.Since(start)
	wp.metrics.ObserveCheck(res.Status.State, elapsed)
	logger.LogCheck(wp.logger.WithField("worker_id", workerID), link.URL, link.Ordinal, string(res.Status.State), elapsed)

	result := Result{Link: link}
	if res.Status.IsValid() && wp.persist != nil {
		result.Link, result.Err = wp.save(link)
	}
	result.Duration = time.Since(start)
	return result
}

// save fetches and stores link unless the ledger already holds it. The
// check and the record run under the key's lock. Links whose media type is
// unknown stay valid but are never written to disk.
func (wp *WorkerPool) save(link models.CandidateLink) (models.CandidateLink, error) {
	if link.Extension == "" {
		wp.logger.InfoWithFields("Unknown content type, not saved", map[string]interface{}{
			"ordinal":      link.Ordinal,
			"content_type": link.ContentType,
		})
		return link, nil
	}

	p := wp.persist
	key := ledger.CanonicalKey(link.URL)

	unlock := p.Locks.Lock(key)
	defer unlock()

	seen, err := p.Ledger.Has(wp.ctx, key)
	if err != nil {
		wp.metrics.LedgerError()
		return link, fmt.Errorf("link %d: %w", link.Ordinal, err)
	}
	if seen {
		link.Duplicate = true
		wp.metrics.DuplicateSkipped()
		wp.logger.DebugWithFields("Already downloaded", map[string]interface{}{
			"ordinal": link.Ordinal,
			"key":     key,
		})
		return link, nil
	}

	body, _, err := p.Fetcher.Fetch(wp.ctx, link.URL)
	if err != nil {
		return link, fmt.Errorf("link %d: %w", link.Ordinal, err)
	}
	defer body.Close()

	label := p.Label
	if label == "" {
		label = link.SourceTarget
	}
	path, err := p.Store.SaveMedia(body, label, link.Kind, link.Ordinal, link.Extension)
	if err != nil {
		return link, errors.New(errors.ErrorTypeLedgerIO, "persist", fmt.Sprintf("link %d", link.Ordinal), err)
	}
	link.SavedPath = path
	wp.metrics.MediaSaved()

	if err := p.Ledger.Record(wp.ctx, key); err != nil {
		wp.metrics.LedgerError()
		return link, fmt.Errorf("link %d: %w", link.Ordinal, err)
	}

	wp.logger.InfoWithFields("Media saved", map[string]interface{}{
		"ordinal": link.Ordinal,
		"path":    path,
	})
	return link, nil
}

// QueueSize returns the number of queued jobs
func (wp *WorkerPool) QueueSize() int {
	return len(wp.jobQueue)
}

// Workers returns the number of workers
func (wp *WorkerPool) Workers() int {
	return wp.numWorkers
}
