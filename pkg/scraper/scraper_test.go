package scraper

import (
	"bytes"
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igfetch/pkg/browser"
	"igfetch/pkg/browser/browsertest"
	"igfetch/pkg/config"
	"igfetch/pkg/errors"
	"igfetch/pkg/logger"
	"igfetch/pkg/metrics"
	"igfetch/pkg/models"
	"igfetch/pkg/validator"
)

// cdn serves fake media by path suffix
type cdn struct {
	*httptest.Server
	mu      sync.Mutex
	gets    int
	slowHit chan struct{}
}

func newCDN(t *testing.T) *cdn {
	c := &cdn{slowHit: make(chan struct{}, 1)}
	c.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var contentType string
		switch {
		case strings.HasSuffix(r.URL.Path, ".mp4"):
			contentType = "video/mp4"
		case strings.HasSuffix(r.URL.Path, ".jpg"):
			contentType = "image/jpeg"
		case strings.HasSuffix(r.URL.Path, ".bin"):
			contentType = "application/octet-stream"
		case strings.HasSuffix(r.URL.Path, "/slow"):
			select {
			case c.slowHit <- struct{}{}:
			default:
			}
			<-r.Context().Done()
			return
		default:
			http.NotFound(w, r)
			return
		}

		body := bytes.Repeat([]byte("x"), 2048)
		w.Header().Set("Content-Type", contentType)
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "2048")
			return
		}
		c.mu.Lock()
		c.gets++
		c.mu.Unlock()
		w.Write(body)
	}))
	t.Cleanup(c.Close)
	return c
}

func (c *cdn) getCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets
}

func anchors(base string, paths ...string) []*browsertest.Element {
	out := make([]*browsertest.Element, len(paths))
	for i, p := range paths {
		out[i] = browsertest.Anchor(base + p)
	}
	return out
}

type harness struct {
	scraper *Scraper
	sites   []*browsertest.Session
	mu      sync.Mutex
}

// newHarness builds a Scraper whose every launch gets a fresh fake site
// produced by build
func newHarness(t *testing.T, cfg *config.Config, build func() *browsertest.Session, opts ...Option) *harness {
	t.Helper()
	h := &harness{}
	launch := func(ctx context.Context) (browser.Session, error) {
		site := build()
		h.mu.Lock()
		h.sites = append(h.sites, site)
		h.mu.Unlock()
		return site, nil
	}

	base := []Option{
		WithLauncher(launch),
		WithLogger(logger.NewNopLogger()),
		WithValidator(validator.New("igfetch-test", validator.WithLogger(logger.NewNopLogger()))),
	}
	s, err := New(context.Background(), cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	h.scraper = s
	return h
}

func (h *harness) site(i int) *browsertest.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sites[i]
}

func TestScenarioStoriesAllVideo(t *testing.T) {
	server := newCDN(t)
	cfg := testConfig()
	m := metrics.New(prometheus.NewRegistry())

	h := newHarness(t, cfg, func() *browsertest.Session {
		return newSite(cfg, anchors(server.URL, "/1.mp4", "/2.mp4", "/3.mp4")...)
	}, WithMetrics(m))

	links, err := h.scraper.ExtractStories(context.Background(), "jiri_mdf")
	require.NoError(t, err)
	require.Len(t, links, 3)
	for i, l := range links {
		assert.Equal(t, i+1, l.Ordinal)
		assert.True(t, l.Status.IsValid())
		assert.Equal(t, "mp4", l.Extension)
		assert.Equal(t, "video/mp4", l.ContentType)
		require.NotNil(t, l.SizeBytes)
		assert.InDelta(t, 2048.0/(1024*1024), l.SizeMB(), 1e-9)
	}

	assert.GreaterOrEqual(t, h.site(0).Closed(), 1)

	history := h.scraper.Aggregator().History()
	require.Len(t, history, 1)
	assert.Equal(t, 3, history[0].LinksFound)
	assert.Equal(t, models.OutcomeCompleted, history[0].Outcome)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("stories", "completed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CandidatesTotal.WithLabelValues("story")))
}

func TestScenarioNoStoriesTab(t *testing.T) {
	server := newCDN(t)
	cfg := testConfig()

	h := newHarness(t, cfg, func() *browsertest.Session {
		site := newSite(cfg, anchors(server.URL, "/1.jpg")...)
		site.Remove(cfg.Site.Selectors.StoriesTab.Value)
		return site
	})

	links, err := h.scraper.ExtractStories(context.Background(), "nostories")
	require.NoError(t, err)
	assert.NotNil(t, links)
	assert.Empty(t, links)

	history := h.scraper.Aggregator().History()
	require.Len(t, history, 1)
	assert.Equal(t, 0, history[0].LinksFound)
	assert.Equal(t, models.OutcomeNoContent, history[0].Outcome)
	assert.Equal(t, 1, h.scraper.Aggregator().Snapshot().StoriesRuns)
	assert.GreaterOrEqual(t, h.site(0).Closed(), 1)
}

func TestScenarioOneBrokenLink(t *testing.T) {
	server := newCDN(t)
	cfg := testConfig()

	h := newHarness(t, cfg, func() *browsertest.Session {
		return newSite(cfg, anchors(server.URL, "/1.jpg", "/2.jpg", "/gone", "/4.jpg")...)
	})

	req := storiesRequest(t, "natgeo")
	report := h.scraper.Extract(context.Background(), req)
	require.NoError(t, report.Err)
	assert.Equal(t, models.OutcomeCompleted, report.Outcome)
	assert.Len(t, report.Candidates, 4)
	require.Len(t, report.Valid, 3)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, 3, report.Failed[0].Ordinal)
	assert.Equal(t, "HTTP 404", report.Failed[0].Status.String())
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, []int{1, 2, 4}, []int{report.Valid[0].Ordinal, report.Valid[1].Ordinal, report.Valid[2].Ordinal})
}

func TestUnclassifiedContentStaysValid(t *testing.T) {
	server := newCDN(t)
	cfg := testConfig()

	h := newHarness(t, cfg, func() *browsertest.Session {
		return newSite(cfg, anchors(server.URL, "/blob.bin", "/p.jpg")...)
	})

	links, err := h.scraper.ExtractReel(context.Background(), "https://www.instagram.com/reel/Cxyz/")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "", links[0].Extension)
	assert.Equal(t, "jpg", links[1].Extension)
	assert.Equal(t, models.LinkReel, links[0].Kind)
	assert.Equal(t, 1, h.scraper.Aggregator().Snapshot().ReelsRuns)
}

func TestUnclassifiedContentIsNotPersisted(t *testing.T) {
	server := newCDN(t)
	out := t.TempDir()
	cfg := testConfig()
	cfg.Download.Mode = config.ModePersist
	cfg.Download.OutputDir = out
	cfg.Ledger.Path = filepath.Join(out, "downloaded_links.txt")

	h := newHarness(t, cfg, func() *browsertest.Session {
		return newSite(cfg, anchors(server.URL, "/blob.bin")...)
	})

	report := h.scraper.Extract(context.Background(), storiesRequest(t, "natgeo"))
	require.NoError(t, report.Err)
	require.Len(t, report.Valid, 1)
	assert.Equal(t, "", report.Valid[0].Extension)
	assert.Empty(t, report.Valid[0].SavedPath)
	assert.False(t, report.Valid[0].Duplicate)

	assert.Equal(t, 0, server.getCount())
	assert.NoDirExists(t, filepath.Join(out, "Stories"))
	data, err := os.ReadFile(cfg.Ledger.Path)
	require.NoError(t, err)
	assert.Empty(t, string(data))
}

func TestScenarioLedgerDedupAcrossRuns(t *testing.T) {
	server := newCDN(t)
	out := t.TempDir()
	cfg := testConfig()
	cfg.Download.Mode = config.ModePersist
	cfg.Download.OutputDir = out
	cfg.Ledger.Path = filepath.Join(out, "downloaded_links.txt")

	h := newHarness(t, cfg, func() *browsertest.Session {
		return newSite(cfg, anchors(server.URL, "/same.jpg?x=1&sig=abc")...)
	})

	first := h.scraper.Extract(context.Background(), storiesRequest(t, "natgeo"))
	require.NoError(t, first.Err)
	second := h.scraper.Extract(context.Background(), storiesRequest(t, "natgeo"))
	require.NoError(t, second.Err)

	require.Len(t, first.Valid, 1)
	require.Len(t, second.Valid, 1)
	assert.NotEmpty(t, first.Valid[0].SavedPath)
	assert.False(t, first.Valid[0].Duplicate)
	assert.True(t, second.Valid[0].Duplicate)
	assert.Empty(t, second.Valid[0].SavedPath)
	assert.Equal(t, 1, server.getCount())

	data, err := os.ReadFile(cfg.Ledger.Path)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/same.jpg?x=1\n", string(data))

	saved, err := os.ReadDir(filepath.Join(out, "Stories"))
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.True(t, strings.HasPrefix(saved[0].Name(), "igfetch_natgeo_"))
	assert.True(t, strings.HasSuffix(saved[0].Name(), "_1.jpg"))

	taskLog, err := os.ReadFile(filepath.Join(out, "task.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(taskLog)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "stories natgeo - completed (1 links)")
}

func TestLaunchFailureIsRecorded(t *testing.T) {
	cfg := testConfig()
	launchErr := errors.New(errors.ErrorTypeLaunch, "launch", "all 1 launch strategies failed", stderrors.New("chrome not found"))

	s, err := New(context.Background(), cfg,
		WithLogger(logger.NewNopLogger()),
		WithLauncher(func(ctx context.Context) (browser.Session, error) { return nil, launchErr }),
	)
	require.NoError(t, err)

	links, err := s.ExtractStories(context.Background(), "natgeo")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeLaunch))
	assert.Empty(t, links)

	history := s.Aggregator().History()
	require.Len(t, history, 1)
	assert.Equal(t, models.OutcomeFailed, history[0].Outcome)
}

func TestInvalidTargetsAreRejectedBeforeLaunch(t *testing.T) {
	cfg := testConfig()
	launched := false
	s, err := New(context.Background(), cfg,
		WithLogger(logger.NewNopLogger()),
		WithLauncher(func(ctx context.Context) (browser.Session, error) {
			launched = true
			return browsertest.New(), nil
		}),
	)
	require.NoError(t, err)

	_, err = s.ExtractStories(context.Background(), "bad name!")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	_, err = s.ExtractReel(context.Background(), "https://example.com/reel/x")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	assert.False(t, launched)
	assert.Empty(t, s.Aggregator().History())
}

func TestCancellationDuringValidationKeepsPartialResults(t *testing.T) {
	server := newCDN(t)
	cfg := testConfig()

	h := newHarness(t, cfg, func() *browsertest.Session {
		return newSite(cfg, anchors(server.URL, "/1.jpg", "/slow", "/3.jpg")...)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-server.slowHit:
			cancel()
		case <-time.After(5 * time.Second):
		}
	}()

	report := h.scraper.Extract(ctx, storiesRequest(t, "natgeo"))
	assert.Equal(t, models.OutcomeCancelled, report.Outcome)
	assert.True(t, errors.IsType(report.Err, errors.ErrorTypeCancelled))
	require.Len(t, report.Valid, 1)
	assert.Equal(t, 1, report.Valid[0].Ordinal)
	require.Len(t, report.Candidates, 3)
	assert.Equal(t, models.StatePending, report.Candidates[2].Status.State)
	assert.GreaterOrEqual(t, h.site(0).Closed(), 1)

	history := h.scraper.Aggregator().History()
	require.Len(t, history, 1)
	assert.Equal(t, models.OutcomeCancelled, history[0].Outcome)
	assert.Equal(t, 1, history[0].LinksFound)
}

func TestCancelledBeforeStart(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg, func() *browsertest.Session {
		return newSite(cfg, browsertest.Anchor("https://cdn.example/1.jpg"))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := h.scraper.Extract(ctx, storiesRequest(t, "natgeo"))
	assert.Equal(t, models.OutcomeCancelled, report.Outcome)
	assert.Empty(t, report.Valid)
	assert.Equal(t, 1, h.site(0).Closed())
}

type recordingObserver struct {
	mu         sync.Mutex
	states     []State
	candidates int
	processed  []int
	finished   *models.RunReport
}

func (o *recordingObserver) StateChanged(tr Transition) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, tr.To)
}

func (o *recordingObserver) CandidatesFound(links []models.CandidateLink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.candidates = len(links)
}

func (o *recordingObserver) LinkProcessed(link models.CandidateLink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.processed = append(o.processed, link.Ordinal)
}

func (o *recordingObserver) RunFinished(r *models.RunReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = r
}

func TestObserversSeeTheWholeRun(t *testing.T) {
	server := newCDN(t)
	cfg := testConfig()
	global := &recordingObserver{}
	perRun := &recordingObserver{}

	h := newHarness(t, cfg, func() *browsertest.Session {
		return newSite(cfg, anchors(server.URL, "/1.jpg", "/2.mp4")...)
	}, WithObserver(global))

	req := storiesRequest(t, "natgeo")
	report := h.scraper.ExtractObserved(context.Background(), req, perRun)
	require.Equal(t, models.OutcomeCompleted, report.Outcome)

	for _, o := range []*recordingObserver{global, perRun} {
		assert.Equal(t, StateDone, o.states[len(o.states)-1])
		assert.Equal(t, 2, o.candidates)
		assert.ElementsMatch(t, []int{1, 2}, o.processed)
		assert.Same(t, report, o.finished)
	}

	// later runs only reach the global observer
	h.scraper.Extract(context.Background(), req)
	assert.Len(t, perRun.processed, 2)
	assert.Len(t, global.processed, 4)
}
