package forecasts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surfcast/internal/retry"
	"surfcast/internal/types"
)

// ============================================================
// Fakes
// ============================================================

// scriptedFetcher replays one response per call; the last one repeats.
type scriptedFetcher struct {
	mu       sync.Mutex
	script   []func(attempt int) (*types.CanonicalForecast, error)
	calls    atomic.Int32
	attempts []int
	release  chan struct{}
}

func (f *scriptedFetcher) Fetch(_ context.Context, region Region, date string, attempt int) (*types.CanonicalForecast, error) {
	n := int(f.calls.Add(1))
	f.mu.Lock()
	f.attempts = append(f.attempts, attempt)
	step := f.script[min(n, len(f.script))-1]
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	return step(attempt)
}

func published(region, date string) func(int) (*types.CanonicalForecast, error) {
	return func(attempt int) (*types.CanonicalForecast, error) {
		return &types.CanonicalForecast{
			Region:       region,
			Date:         date,
			Wind:         types.Wind{SpeedKmh: 15, DirectionDeg: 180},
			Swell:        types.Swell{HeightM: 1.2, PeriodS: 10, DirectionDeg: 270},
			Source:       types.SourceWindfinder,
			ForecastHour: 8,
		}, nil
	}
}

func pending() func(int) (*types.CanonicalForecast, error) {
	return func(attempt int) (*types.CanonicalForecast, error) {
		return nil, &types.RetrySignal{Attempt: attempt, Reason: "not published"}
	}
}

func failing(err error) func(int) (*types.CanonicalForecast, error) {
	return func(int) (*types.CanonicalForecast, error) { return nil, err }
}

// memoryStore is an in-memory Store.
type memoryStore struct {
	mu      sync.Mutex
	data    map[string]types.CanonicalForecast
	sets    int
	readErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]types.CanonicalForecast)}
}

func (s *memoryStore) Get(_ context.Context, key string) (*types.CanonicalForecast, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, false, s.readErr
	}
	f, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return &f, true, nil
}

func (s *memoryStore) Set(_ context.Context, key string, f types.CanonicalForecast, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = f
	s.sets++
	return nil
}

// recordingMetrics counts outcomes.
type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
	hits     map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{outcomes: map[string]int{}, hits: map[string]int{}}
}

func (m *recordingMetrics) FetchCompleted(_ types.SourceID, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

func (m *recordingMetrics) CacheLookup(tier string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits[tier]++
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testCatalog = `
regions:
  - name: hossegor
    source: windfinder
    url: https://forecast.test/hossegor
    timezone: Europe/Paris
`

type harness struct {
	svc     *Service
	fetcher *scriptedFetcher
	clock   *clockwork.FakeClock
	store   *memoryStore
	metrics *recordingMetrics
}

func newHarness(t *testing.T, script ...func(int) (*types.CanonicalForecast, error)) *harness {
	t.Helper()
	catalog, err := ParseRegionCatalog([]byte(testCatalog))
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	store := newMemoryStore()
	metrics := newRecordingMetrics()
	fetcher := &scriptedFetcher{script: script}

	svc, err := NewService(ServiceConfig{
		Catalog:     catalog,
		Fetchers:    map[types.SourceID]Fetcher{types.SourceWindfinder: fetcher},
		Coordinator: retry.NewCoordinator(retry.DefaultPolicy(), clock, discardLogger()),
		Cache: NewCache(10*time.Minute,
			WithCacheClock(clock),
			WithStore(store),
			WithCacheLogger(discardLogger()),
			WithCacheMetrics(metrics),
		),
		Metrics: metrics,
		Clock:   clock,
		Logger:  discardLogger(),
	})
	require.NoError(t, err)
	return &harness{svc: svc, fetcher: fetcher, clock: clock, store: store, metrics: metrics}
}

// getAdvancing runs Get and advances the fake clock through waits backoffs.
func (h *harness) getAdvancing(t *testing.T, waits int) (*types.CanonicalForecast, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		f   *types.CanonicalForecast
		err error
	}
	done := make(chan result, 1)
	go func() {
		f, err := h.svc.Get(ctx, "hossegor", "2026-03-14")
		done <- result{f, err}
	}()
	for i := 0; i < waits; i++ {
		require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
		h.clock.Advance(time.Minute)
	}
	select {
	case r := <-done:
		return r.f, r.err
	case <-ctx.Done():
		t.Fatal("Get did not return")
		return nil, nil
	}
}

// ============================================================
// Get
// ============================================================

func TestGet_FetchesOnceAndCaches(t *testing.T) {
	h := newHarness(t, published("hossegor", "2026-03-14"))

	f, err := h.svc.Get(context.Background(), "hossegor", "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, 15.0, f.Wind.SpeedKmh)

	again, err := h.svc.Get(context.Background(), "hossegor", "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, f, again)

	assert.Equal(t, int32(1), h.fetcher.calls.Load())
	assert.Equal(t, 1, h.store.sets)
	assert.Equal(t, 1, h.metrics.hits[TierMemory])
}

func TestGet_ReturnsCopies(t *testing.T) {
	h := newHarness(t, func(int) (*types.CanonicalForecast, error) {
		return &types.CanonicalForecast{Region: "hossegor", Date: "2026-03-14", Unavailable: []types.Property{types.PropSwellDirection}}, nil
	})

	f, err := h.svc.Get(context.Background(), "hossegor", "2026-03-14")
	require.NoError(t, err)
	f.Unavailable[0] = types.PropWindSpeed

	again, err := h.svc.Get(context.Background(), "hossegor", "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, []types.Property{types.PropSwellDirection}, again.Unavailable)
}

func TestGet_ConcurrentCallersShareOneFetch(t *testing.T) {
	h := newHarness(t, published("hossegor", "2026-03-14"))
	h.fetcher.release = make(chan struct{})

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*types.CanonicalForecast, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.svc.Get(context.Background(), "hossegor", "2026-03-14")
		}(i)
	}

	require.Eventually(t, func() bool { return h.fetcher.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(h.fetcher.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 1.2, results[i].Swell.HeightM)
	}
	assert.Equal(t, int32(1), h.fetcher.calls.Load(), "a second request for the same key must await the first")
}

func TestGet_RetriesUntilPublished(t *testing.T) {
	h := newHarness(t, pending(), pending(), published("hossegor", "2026-03-14"))

	f, err := h.getAdvancing(t, 2)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, []int{1, 2, 3}, h.fetcher.attempts)
	assert.Equal(t, 2, h.metrics.outcomes[OutcomePending])
	assert.Equal(t, 1, h.metrics.outcomes[OutcomeSuccess])
}

func TestGet_ExhaustedIsNotCached(t *testing.T) {
	h := newHarness(t, pending(), pending(), pending(), published("hossegor", "2026-03-14"))

	_, err := h.getAdvancing(t, 2)
	var exhausted *types.RetryExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 1, h.metrics.outcomes[OutcomeExhausted])

	f, err := h.svc.Get(context.Background(), "hossegor", "2026-03-14")
	require.NoError(t, err)
	assert.NotNil(t, f)
	assert.Equal(t, int32(4), h.fetcher.calls.Load())
}

func TestGet_HardFailurePropagatesWithoutRetry(t *testing.T) {
	extErr := types.NewExtractionError(types.SourceWindfinder, types.ReasonTimeout, "https://forecast.test/hossegor", context.DeadlineExceeded)
	h := newHarness(t, failing(extErr))

	_, err := h.svc.Get(context.Background(), "hossegor", "2026-03-14")
	var got *types.ExtractionError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, types.ReasonTimeout, got.Reason)
	assert.Equal(t, int32(1), h.fetcher.calls.Load())
	assert.Equal(t, 0, h.store.sets)
}

func TestGet_ExpiresAfterTTL(t *testing.T) {
	h := newHarness(t, published("hossegor", "2026-03-14"))
	h.svc.cache.store = nil

	_, err := h.svc.Get(context.Background(), "hossegor", "2026-03-14")
	require.NoError(t, err)

	h.clock.Advance(11 * time.Minute)
	_, err = h.svc.Get(context.Background(), "hossegor", "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, int32(2), h.fetcher.calls.Load())
}

func TestGet_ServedFromStore(t *testing.T) {
	h := newHarness(t, published("hossegor", "2026-03-14"))
	h.store.data[types.ForecastKey("hossegor", "2026-03-14")] = types.CanonicalForecast{
		Region: "hossegor", Date: "2026-03-14", Wind: types.Wind{SpeedKmh: 42},
	}

	f, err := h.svc.Get(context.Background(), "hossegor", "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, 42.0, f.Wind.SpeedKmh)
	assert.Zero(t, h.fetcher.calls.Load())
	assert.Equal(t, 1, h.metrics.hits[TierStore])
}

func TestGet_StoreErrorFallsBackToFetch(t *testing.T) {
	h := newHarness(t, published("hossegor", "2026-03-14"))
	h.store.readErr = errors.New("connection refused")

	f, err := h.svc.Get(context.Background(), "hossegor", "2026-03-14")
	require.NoError(t, err)
	assert.NotNil(t, f)
	assert.Equal(t, int32(1), h.fetcher.calls.Load())
}

func TestGet_InvalidInput(t *testing.T) {
	h := newHarness(t, published("hossegor", "2026-03-14"))

	_, err := h.svc.Get(context.Background(), "atlantis", "2026-03-14")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundRegion, appErr.Code)

	_, err = h.svc.Get(context.Background(), "hossegor", "14/03/2026")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidDate, appErr.Code)

	assert.Zero(t, h.fetcher.calls.Load())
}

func TestGet_CallerCancellationStopsWaiting(t *testing.T) {
	h := newHarness(t, published("hossegor", "2026-03-14"))
	h.fetcher.release = make(chan struct{})
	defer close(h.fetcher.release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		assert.Eventually(t, func() bool { return h.fetcher.calls.Load() == 1 }, time.Second, time.Millisecond)
		cancel()
	}()

	_, err := h.svc.Get(ctx, "hossegor", "2026-03-14")
	assert.ErrorIs(t, err, context.Canceled)
}

// ============================================================
// Attempt
// ============================================================

func TestAttempt_PendingReturnsSignalWithDelay(t *testing.T) {
	h := newHarness(t, pending())

	_, err := h.svc.Attempt(context.Background(), "hossegor", "2026-03-14", 1)
	var signal *types.RetrySignal
	require.ErrorAs(t, err, &signal)
	assert.Equal(t, 5*time.Second, signal.RetryAfter)
	assert.Equal(t, 1, signal.Attempt)
	assert.Equal(t, 0, h.store.sets, "retry signals are never cached")
}

func TestAttempt_LastAttemptIsExhausted(t *testing.T) {
	h := newHarness(t, pending())

	_, err := h.svc.Attempt(context.Background(), "hossegor", "2026-03-14", 3)
	var exhausted *types.RetryExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
}

func TestAttempt_SuccessIsCachedForGet(t *testing.T) {
	h := newHarness(t, published("hossegor", "2026-03-14"))

	_, err := h.svc.Attempt(context.Background(), "hossegor", "2026-03-14", 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, h.fetcher.attempts)

	_, err = h.svc.Get(context.Background(), "hossegor", "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.fetcher.calls.Load())
}

func TestAttempt_ClampsAttemptNumber(t *testing.T) {
	h := newHarness(t, published("hossegor", "2026-03-14"))

	_, err := h.svc.Attempt(context.Background(), "hossegor", "2026-03-14", 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, h.fetcher.attempts)
}

// ============================================================
// Get and Attempt together
// ============================================================

func TestGetAndAttempt_ShareOneFetchPerKey(t *testing.T) {
	h := newHarness(t, published("hossegor", "2026-03-14"))
	h.fetcher.release = make(chan struct{})

	var wg sync.WaitGroup
	errs := make([]error, 3)
	results := make([]*types.CanonicalForecast, 3)
	calls := []func() (*types.CanonicalForecast, error){
		func() (*types.CanonicalForecast, error) {
			return h.svc.Get(context.Background(), "hossegor", "2026-03-14")
		},
		func() (*types.CanonicalForecast, error) {
			return h.svc.Attempt(context.Background(), "hossegor", "2026-03-14", 1)
		},
		func() (*types.CanonicalForecast, error) {
			return h.svc.Attempt(context.Background(), "hossegor", "2026-03-14", 2)
		},
	}
	for i, call := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = call()
		}()
	}

	require.Eventually(t, func() bool { return h.fetcher.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(h.fetcher.release)
	wg.Wait()

	for i := range calls {
		require.NoError(t, errs[i])
		assert.Equal(t, 15.0, results[i].Wind.SpeedKmh)
	}
	assert.Equal(t, int32(1), h.fetcher.calls.Load(), "one upstream fetch per (region, date) at a time")
}

func TestAttempt_JoinerJudgedByOwnAttemptNumber(t *testing.T) {
	h := newHarness(t, pending())
	h.fetcher.release = make(chan struct{})

	type result struct {
		err error
	}
	first := make(chan result, 1)
	go func() {
		_, err := h.svc.Attempt(context.Background(), "hossegor", "2026-03-14", 1)
		first <- result{err}
	}()
	require.Eventually(t, func() bool { return h.fetcher.calls.Load() == 1 }, time.Second, time.Millisecond)

	last := make(chan result, 1)
	go func() {
		_, err := h.svc.Attempt(context.Background(), "hossegor", "2026-03-14", 3)
		last <- result{err}
	}()
	time.Sleep(20 * time.Millisecond)
	close(h.fetcher.release)

	var signal *types.RetrySignal
	r := <-first
	require.ErrorAs(t, r.err, &signal)
	assert.Equal(t, 1, signal.Attempt)

	var exhausted *types.RetryExhausted
	r = <-last
	require.ErrorAs(t, r.err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, exhausted.Last.Attempt)

	assert.Equal(t, int32(1), h.fetcher.calls.Load())
	assert.Equal(t, 1, signal.Attempt, "joiners never share a signal value")
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceConfig{})
	assert.Error(t, err)
}
