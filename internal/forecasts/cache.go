package forecasts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"surfcast/internal/types"
)

// DefaultCacheTTL bounds how long a fetched forecast is served without a new
// scrape.
const DefaultCacheTTL = 30 * time.Minute

// Store is a second cache tier shared between processes.
type Store interface {
	// Get returns the stored forecast; ok is false on a miss.
	Get(ctx context.Context, key string) (f *types.CanonicalForecast, ok bool, err error)
	Set(ctx context.Context, key string, f types.CanonicalForecast, ttl time.Duration) error
}

// Loader produces the forecast for a cache miss.
type Loader func(ctx context.Context) (*types.CanonicalForecast, error)

type cacheEntry struct {
	forecast  types.CanonicalForecast
	expiresAt time.Time
}

// Cache memoizes forecasts per (region, date) with a TTL and lets at most one
// load per key run at a time: concurrent callers for the same key wait for
// the first caller's result.
//
// Failures are never cached.
type Cache struct {
	ttl     time.Duration
	clock   clockwork.Clock
	store   Store
	logger  *slog.Logger
	metrics Metrics

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithStore adds a shared second tier.
func WithStore(s Store) CacheOption {
	return func(c *Cache) { c.store = s }
}

// WithCacheClock overrides the clock used for expiry.
func WithCacheClock(clock clockwork.Clock) CacheOption {
	return func(c *Cache) { c.clock = clock }
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *Cache) { c.logger = l }
}

// WithCacheMetrics records hits and misses per tier.
func WithCacheMetrics(m Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// NewCache creates a cache. A non-positive ttl selects DefaultCacheTTL.
func NewCache(ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &Cache{
		ttl:     ttl,
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
		metrics: noopMetrics{},
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the forecast for key, running load on a miss. Every caller for
// key shares one flight, so a load already running is joined rather than
// repeated. The load runs detached from the caller's cancellation so that
// other waiters still get a result; a caller whose ctx ends stops waiting and
// gets ctx.Err().
//
// Each waiter receives its own copy of a *types.RetrySignal so it can stamp
// its own attempt number.
func (c *Cache) Get(ctx context.Context, key string, load Loader) (*types.CanonicalForecast, error) {
	if f, ok := c.Peek(key); ok {
		c.metrics.CacheLookup(TierMemory, true)
		return f, nil
	}
	c.metrics.CacheLookup(TierMemory, false)

	ch := c.group.DoChan(key, func() (any, error) {
		if f, ok := c.Peek(key); ok {
			return f, nil
		}
		loadCtx := context.WithoutCancel(ctx)
		if f, ok := c.fromStore(loadCtx, key); ok {
			c.put(key, *f)
			return f, nil
		}

		f, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.put(key, *f)
		c.toStore(loadCtx, key, *f)
		return f, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var signal *types.RetrySignal
			if errors.As(res.Err, &signal) {
				own := *signal
				return nil, &own
			}
			return nil, res.Err
		}
		f := res.Val.(*types.CanonicalForecast).Clone()
		return &f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Peek returns a fresh in-process entry without loading.
func (c *Cache) Peek(key string) (*types.CanonicalForecast, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	f := e.forecast.Clone()
	return &f, true
}

// Invalidate drops the in-process entry for key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) put(key string, f types.CanonicalForecast) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{forecast: f.Clone(), expiresAt: c.clock.Now().Add(c.ttl)}
}

func (c *Cache) fromStore(ctx context.Context, key string) (*types.CanonicalForecast, bool) {
	if c.store == nil {
		return nil, false
	}
	f, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "forecast store read failed, fetching upstream",
			"key", key,
			"error", err,
		)
		return nil, false
	}
	c.metrics.CacheLookup(TierStore, ok)
	return f, ok
}

func (c *Cache) toStore(ctx context.Context, key string, f types.CanonicalForecast) {
	if c.store == nil {
		return
	}
	if err := c.store.Set(ctx, key, f, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "forecast store write failed",
			"key", key,
			"error", err,
		)
	}
}
