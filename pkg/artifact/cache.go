package artifact

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfed/openfed/pkg/federation"
	"github.com/openfed/openfed/pkg/telemetry"
)

type entry struct {
	state     LoadState
	container federation.Container
	err       error
	fetchedAt time.Time

	// done closes when the in-flight load settles into loaded or failed.
	done chan struct{}
}

// Cache memoizes loaded containers by artifact location and implements
// federation.Cache. Concurrent requests for the same location coalesce
// onto one in-flight load, so the network sees at most one fetch per
// location regardless of caller parallelism. A failed load is sticky: the
// entry stays failed, and every later request gets a load-aborted error
// wrapping the original cause, until Reset clears the entry.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	loader  *Loader
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	events  *telemetry.EventBus
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheLogger sets the cache logger.
func WithCacheLogger(logger zerolog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger.With().Str("component", "artifact-cache").Logger()
	}
}

// WithCacheMetrics attaches cache metrics.
func WithCacheMetrics(metrics *telemetry.Metrics) CacheOption {
	return func(c *Cache) { c.metrics = metrics }
}

// WithCacheEvents attaches the event bus for load lifecycle events.
func WithCacheEvents(events *telemetry.EventBus) CacheOption {
	return func(c *Cache) { c.events = events }
}

// NewCache creates a cache backed by loader.
func NewCache(loader *Loader, opts ...CacheOption) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		loader:  loader,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureLoaded returns the container for location, loading it on first
// use. The load itself runs on a context detached from the caller so one
// canceled request cannot poison the entry for everyone else; the caller
// still unblocks on its own context.
func (c *Cache) EnsureLoaded(ctx context.Context, location string) (federation.Container, error) {
	c.mu.Lock()
	e, ok := c.entries[location]
	if ok {
		switch e.state {
		case StateLoaded:
			container := e.container
			c.mu.Unlock()
			if c.metrics != nil {
				c.metrics.CacheHit()
			}
			return container, nil
		case StateFailed:
			cause := e.err
			c.mu.Unlock()
			if c.metrics != nil {
				c.metrics.CacheHit()
			}
			return nil, federation.NewLoadAbortedError(location, cause)
		case StateFetching:
			done := e.done
			c.mu.Unlock()
			if c.metrics != nil {
				c.metrics.CacheCoalesced()
			}
			return c.await(ctx, location, done)
		}
	}

	e = &entry{state: StateFetching, done: make(chan struct{})}
	c.entries[location] = e
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CacheMiss()
	}
	if c.events != nil {
		c.events.Publish(telemetry.Event{
			Type:     telemetry.EventTypeArtifactFetching,
			Source:   "artifact-cache",
			Location: location,
			Level:    telemetry.EventLevelInfo,
			Message:  "artifact load started",
		})
	}

	go c.load(context.WithoutCancel(ctx), location, e)

	return c.await(ctx, location, e.done)
}

// load runs the single fetch attempt for location and settles the entry.
func (c *Cache) load(ctx context.Context, location string, e *entry) {
	container, err := c.loader.Load(ctx, location)

	c.mu.Lock()
	if err != nil {
		e.state = StateFailed
		e.err = err
	} else {
		e.state = StateLoaded
		e.container = container
		e.fetchedAt = time.Now()
	}
	close(e.done)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Str("location", location).Msg("artifact load failed, entry marked failed until reset")
		if c.events != nil {
			c.events.PublishArtifactFailed(location, err.Error())
		}
		return
	}

	if c.metrics != nil {
		c.metrics.ContainerLoaded()
	}
	if c.events != nil {
		c.events.PublishArtifactLoaded(location, container.Name())
	}
}

// await blocks until the in-flight load for location settles or the
// caller's context ends.
func (c *Cache) await(ctx context.Context, location string, done <-chan struct{}) (federation.Container, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[location]
	if !ok {
		// Entry was reset between settle and wakeup. Treat as aborted.
		return nil, federation.NewLoadAbortedError(location, nil)
	}
	if e.state == StateFailed {
		// Waiters of the first attempt see the original failure. Only
		// later calls against the settled entry get a load-aborted error.
		return nil, e.err
	}
	return e.container, nil
}

// Lookup returns the loaded container for location without triggering a
// load.
func (c *Cache) Lookup(location string) (federation.Container, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[location]
	if !ok || e.state != StateLoaded {
		return nil, false
	}
	return e.container, true
}

// Reset clears the entry for location so the next request starts a fresh
// load attempt. An in-flight load cannot be reset. Returns true when an
// entry was removed.
func (c *Cache) Reset(location string) bool {
	c.mu.Lock()
	e, ok := c.entries[location]
	if !ok || e.state == StateFetching {
		c.mu.Unlock()
		return false
	}
	delete(c.entries, location)
	c.mu.Unlock()

	c.logger.Info().Str("location", location).Msg("cache entry reset")
	if c.events != nil {
		c.events.Publish(telemetry.Event{
			Type:     telemetry.EventTypeArtifactReset,
			Source:   "artifact-cache",
			Location: location,
			Level:    telemetry.EventLevelInfo,
			Message:  "cache entry reset",
		})
	}
	return true
}

// Records returns a snapshot of all cache entries for inspection.
func (c *Cache) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Record, 0, len(c.entries))
	for location, e := range c.entries {
		r := Record{
			Location:  location,
			State:     e.state,
			FetchedAt: e.fetchedAt,
		}
		if e.container != nil {
			r.Container = e.container.Name()
		}
		if e.err != nil {
			r.Error = e.err.Error()
		}
		out = append(out, r)
	}
	return out
}
