package downloader

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igfetch/pkg/ledger"
	"igfetch/pkg/logger"
	"igfetch/pkg/metrics"
	"igfetch/pkg/models"
	"igfetch/pkg/validator"
)

// mockChecker answers from a table keyed by URL
type mockChecker struct {
	delay        time.Duration
	statuses     map[string]models.ValidationStatus
	contentTypes map[string]string
	calls        int32
	inFlight     int32
	maxSeen      int32
}

func (m *mockChecker) Validate(ctx context.Context, url string, timeout time.Duration) validator.Result {
	atomic.AddInt32(&m.calls, 1)
	n := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&m.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&m.maxSeen, seen, n) {
			break
		}
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return validator.Result{Status: models.NetworkError("context canceled")}
		}
	}
	if s, ok := m.statuses[url]; ok {
		return validator.Result{Status: s}
	}
	contentType := "image/jpeg"
	if ct, ok := m.contentTypes[url]; ok {
		contentType = ct
	}
	size := int64(2048)
	return validator.Result{Status: models.Valid(), ContentType: contentType, SizeBytes: &size}
}

type mockFetcher struct {
	err     error
	fetched int32
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, string, error) {
	atomic.AddInt32(&m.fetched, 1)
	if m.err != nil {
		return nil, "", m.err
	}
	return io.NopCloser(strings.NewReader("media:" + url)), "image/jpeg", nil
}

type mockStore struct {
	mu    sync.Mutex
	saved map[string]string
	err   error
}

func newMockStore() *mockStore { return &mockStore{saved: map[string]string{}} }

func (m *mockStore) SaveMedia(r io.Reader, target string, kind models.LinkKind, index int, ext string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	path := fmt.Sprintf("%s/%s_%d.%s", kind, target, index, ext)
	m.mu.Lock()
	m.saved[path] = string(data)
	m.mu.Unlock()
	return path, nil
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func candidates(n int) []models.CandidateLink {
	links := make([]models.CandidateLink, n)
	for i := range links {
		links[i] = models.CandidateLink{
			URL:          fmt.Sprintf("https://cdn.example/%d.jpg?x=%d&sig=abc", i+1, i+1),
			Kind:         models.LinkStory,
			SourceTarget: "natgeo",
			Ordinal:      i + 1,
			Status:       models.ValidationStatus{State: models.StatePending},
		}
	}
	return links
}

func TestRunValidatesInOrdinalOrder(t *testing.T) {
	links := candidates(10)
	checker := &mockChecker{
		delay: 5 * time.Millisecond,
		statuses: map[string]models.ValidationStatus{
			links[2].URL: models.HTTPError(403),
			links[7].URL: models.Timeout(),
		},
	}

	pool := NewWorkerPool(4, checker, time.Second, logger.NewNopLogger())
	out, err := pool.Run(context.Background(), links)
	require.NoError(t, err)
	require.Len(t, out, 10)

	for i, l := range out {
		assert.Equal(t, i+1, l.Ordinal)
	}
	assert.Equal(t, models.HTTPError(403), out[2].Status)
	assert.Equal(t, models.Timeout(), out[7].Status)
	assert.True(t, out[0].Status.IsValid())
	assert.Equal(t, "jpg", out[0].Extension)
	require.NotNil(t, out[0].SizeBytes)
	assert.Equal(t, int64(2048), *out[0].SizeBytes)
	assert.Empty(t, out[2].Extension)
}

func TestRunRespectsWorkerCount(t *testing.T) {
	checker := &mockChecker{delay: 10 * time.Millisecond}

	pool := NewWorkerPool(1, checker, time.Second, logger.NewNopLogger())
	_, err := pool.Run(context.Background(), candidates(5))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&checker.maxSeen))

	checker = &mockChecker{delay: 20 * time.Millisecond}
	pool = NewWorkerPool(3, checker, time.Second, logger.NewNopLogger())
	_, err = pool.Run(context.Background(), candidates(9))
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&checker.maxSeen), int32(3))
	assert.Equal(t, int32(9), atomic.LoadInt32(&checker.calls))
}

func TestNewWorkerPoolClampsWorkers(t *testing.T) {
	pool := NewWorkerPool(0, &mockChecker{}, time.Second, nil)
	assert.Equal(t, 1, pool.Workers())
	assert.Equal(t, 0, pool.QueueSize())
}

func TestRunEmpty(t *testing.T) {
	pool := NewWorkerPool(2, &mockChecker{}, time.Second, logger.NewNopLogger())
	out, err := pool.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRunCancelledKeepsFinishedResults(t *testing.T) {
	checker := &mockChecker{delay: 30 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	pool := NewWorkerPool(1, checker, time.Second, logger.NewNopLogger())
	go func() {
		time.Sleep(75 * time.Millisecond)
		cancel()
	}()

	out, err := pool.Run(ctx, candidates(20))
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Less(t, len(out), 20)
	for i, l := range out {
		assert.Equal(t, i+1, l.Ordinal)
		assert.True(t, l.Status.IsValid())
	}
}

func newPersistence(t *testing.T, fetcher *mockFetcher, store *mockStore) (*Persistence, *ledger.FileLedger) {
	t.Helper()
	l, err := ledger.OpenFile(filepath.Join(t.TempDir(), "downloaded_links.txt"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return &Persistence{Fetcher: fetcher, Store: store, Ledger: l, Locks: ledger.NewKeyLocks()}, l
}

func TestRunPersistsValidLinks(t *testing.T) {
	links := candidates(4)
	checker := &mockChecker{statuses: map[string]models.ValidationStatus{
		links[1].URL: models.HTTPError(404),
	}}
	fetcher := &mockFetcher{}
	store := newMockStore()
	persist, l := newPersistence(t, fetcher, store)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	pool := NewWorkerPool(2, checker, time.Second, logger.NewNopLogger(), WithPersistence(persist), WithMetrics(m))
	out, err := pool.Run(context.Background(), links)
	require.NoError(t, err)

	assert.Equal(t, 3, store.count())
	assert.Equal(t, int32(3), atomic.LoadInt32(&fetcher.fetched))
	assert.Equal(t, "story/natgeo_1.jpg", out[0].SavedPath)
	assert.Empty(t, out[1].SavedPath)
	assert.Equal(t, 3, l.Len())

	has, err := l.Has(context.Background(), ledger.CanonicalKey(links[0].URL))
	require.NoError(t, err)
	assert.True(t, has)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.MediaSavedTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ChecksTotal.WithLabelValues("valid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChecksTotal.WithLabelValues("http_error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.WorkersBusy))
}

func TestRunDoesNotPersistUnknownMediaTypes(t *testing.T) {
	links := candidates(2)
	checker := &mockChecker{contentTypes: map[string]string{
		links[0].URL: "application/octet-stream",
	}}
	fetcher := &mockFetcher{}
	store := newMockStore()
	persist, l := newPersistence(t, fetcher, store)

	pool := NewWorkerPool(2, checker, time.Second, logger.NewNopLogger(), WithPersistence(persist))
	out, err := pool.Run(context.Background(), links)
	require.NoError(t, err)

	assert.True(t, out[0].Status.IsValid())
	assert.Equal(t, "", out[0].Extension)
	assert.Empty(t, out[0].SavedPath)
	assert.Equal(t, "story/natgeo_2.jpg", out[1].SavedPath)

	assert.Equal(t, 1, store.count())
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetcher.fetched))
	assert.Equal(t, 1, l.Len())
	has, err := l.Has(context.Background(), ledger.CanonicalKey(links[0].URL))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRunSkipsLedgerDuplicates(t *testing.T) {
	links := candidates(3)
	// same media, different signature
	links[2].URL = strings.Replace(links[0].URL, "sig=abc", "sig=other", 1)

	fetcher := &mockFetcher{}
	store := newMockStore()
	persist, l := newPersistence(t, fetcher, store)
	require.NoError(t, l.Record(context.Background(), ledger.CanonicalKey(links[1].URL)))

	pool := NewWorkerPool(3, &mockChecker{}, time.Second, logger.NewNopLogger(), WithPersistence(persist))
	out, err := pool.Run(context.Background(), links)
	require.NoError(t, err)

	assert.Equal(t, 1, store.count())
	assert.True(t, out[1].Duplicate)
	dupes := 0
	for _, l := range []models.CandidateLink{out[0], out[2]} {
		if l.Duplicate {
			dupes++
		}
	}
	assert.Equal(t, 1, dupes)
	// every link is still reported valid
	for _, l := range out {
		assert.True(t, l.Status.IsValid())
	}
}

func TestRunFetchFailureDoesNotStopOthers(t *testing.T) {
	fetcher := &mockFetcher{err: stderrors.New("connection reset")}
	store := newMockStore()
	persist, l := newPersistence(t, fetcher, store)

	pool := NewWorkerPool(2, &mockChecker{}, time.Second, logger.NewNopLogger(), WithPersistence(persist))
	out, err := pool.Run(context.Background(), candidates(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Len(t, out, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(&fetcher.fetched))
	assert.Equal(t, 0, l.Len())
}

func TestRunLedgerFailureStillReturnsResults(t *testing.T) {
	fetcher := &mockFetcher{}
	store := newMockStore()
	persist, l := newPersistence(t, fetcher, store)
	require.NoError(t, l.Close())

	log := logger.NewTestLogger()
	pool := NewWorkerPool(1, &mockChecker{}, time.Second, log, WithPersistence(persist))
	out, err := pool.Run(context.Background(), candidates(2))
	require.Error(t, err)
	assert.Len(t, out, 2)
	assert.True(t, out[0].Status.IsValid())
	assert.Equal(t, 0, l.Len())
}
