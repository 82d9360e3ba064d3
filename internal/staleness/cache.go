// Package staleness serves cached computed results and refreshes them only
// when a cheap change check says the backend has newer data.
package staleness

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultActiveInterval = 10 * time.Second
	defaultIdleInterval   = time.Minute
)

// FetchFunc loads the value. bypass asks the backend to skip its own caches.
type FetchFunc[T any] func(ctx context.Context, bypass bool) (T, error)

// Checker reports whether data changed after since.
type Checker interface {
	HasChangedSince(ctx context.Context, since time.Time) (bool, error)
}

// Option configures a Cache.
type Option[T any] func(*Cache[T])

// WithActiveInterval sets the check cadence while a run is in progress.
func WithActiveInterval[T any](d time.Duration) Option[T] {
	return func(c *Cache[T]) {
		if d > 0 {
			c.activeInterval = d
		}
	}
}

// WithIdleInterval sets the check cadence in steady state.
func WithIdleInterval[T any](d time.Duration) Option[T] {
	return func(c *Cache[T]) {
		if d > 0 {
			c.idleInterval = d
		}
	}
}

// WithOnRefresh registers fn to be called with every freshly fetched value.
func WithOnRefresh[T any](fn func(T)) Option[T] {
	return func(c *Cache[T]) {
		c.onRefresh = fn
	}
}

// WithName labels log lines, typically with the subject ID.
func WithName[T any](name string) Option[T] {
	return func(c *Cache[T]) {
		c.log = c.log.With(zap.String("cache", name))
	}
}

// Cache holds one value of T.
type Cache[T any] struct {
	fetch          FetchFunc[T]
	checker        Checker
	activeInterval time.Duration
	idleInterval   time.Duration
	onRefresh      func(T)
	log            *zap.Logger
	wake           chan struct{}

	fetchMu sync.Mutex

	mu        sync.Mutex
	value     T
	loaded    bool
	bypass    bool
	fetchedAt time.Time
	active    bool
}

// New creates a Cache. Nothing is fetched until Get or Check.
func New[T any](fetch FetchFunc[T], checker Checker, opts ...Option[T]) *Cache[T] {
	c := &Cache[T]{
		fetch:          fetch,
		checker:        checker,
		activeInterval: defaultActiveInterval,
		idleInterval:   defaultIdleInterval,
		log:            zap.L().With(zap.String("component", "staleness")),
		wake:           make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value, fetching it first if nothing is cached or
// the cache was invalidated.
func (c *Cache[T]) Get(ctx context.Context) (T, error) {
	c.mu.Lock()
	if c.loaded {
		v := c.value
		c.mu.Unlock()
		return v, nil
	}
	bypass := c.bypass
	c.mu.Unlock()

	return c.refresh(ctx, bypass, false)
}

// Check runs one staleness cycle and reports whether the value was
// refetched. A failing change check is logged and skips the cycle.
func (c *Cache[T]) Check(ctx context.Context) (bool, error) {
	c.mu.Lock()
	loaded, since := c.loaded, c.fetchedAt
	c.mu.Unlock()
	if !loaded {
		return false, nil
	}

	changed, err := c.checker.HasChangedSince(ctx, since)
	if err != nil {
		c.log.Warn("staleness: change check failed, skipping cycle", zap.Error(err))
		return false, nil
	}
	if !changed {
		c.log.Debug("staleness: no changes", zap.Time("since", since))
		return false, nil
	}

	c.log.Info("staleness: data changed, refetching", zap.Time("since", since))
	if _, err := c.refresh(ctx, true, true); err != nil {
		return false, err
	}
	return true, nil
}

// refresh fetches under fetchMu. Unless force is set, a value loaded by a
// concurrent caller is reused.
func (c *Cache[T]) refresh(ctx context.Context, bypass, force bool) (T, error) {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	c.mu.Lock()
	if c.loaded && !force {
		v := c.value
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	start := time.Now()
	v, err := c.fetch(ctx, bypass)
	if err != nil {
		var zero T
		return zero, eris.Wrap(err, "staleness: fetch")
	}

	c.mu.Lock()
	c.value = v
	c.loaded = true
	c.bypass = false
	c.fetchedAt = start
	c.mu.Unlock()

	if c.onRefresh != nil {
		c.onRefresh(v)
	}
	return v, nil
}

// Invalidate drops the cached value; the next Get refetches with caches
// bypassed.
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.value = zero
	c.loaded = false
	c.bypass = true
}

// FetchedAt returns when the current value's fetch started, or the zero
// time if nothing is cached.
func (c *Cache[T]) FetchedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchedAt
}

// SetActive switches between the active and idle check cadence.
func (c *Cache[T]) SetActive(active bool) {
	c.mu.Lock()
	changed := c.active != active
	c.active = active
	c.mu.Unlock()

	if changed {
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
}

// Interval returns the current check cadence.
func (c *Cache[T]) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return c.activeInterval
	}
	return c.idleInterval
}

// Run calls Check on the current cadence until ctx is cancelled. A cadence
// change takes effect immediately.
func (c *Cache[T]) Run(ctx context.Context) {
	interval := c.Interval()
	c.log.Info("staleness: starting checker", zap.Duration("interval", interval))

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("staleness: checker stopped")
			return
		case <-c.wake:
			timer.Reset(c.Interval())
		case <-timer.C:
			if _, err := c.Check(ctx); err != nil {
				c.log.Warn("staleness: refetch failed, serving cached value", zap.Error(err))
			}
			timer.Reset(c.Interval())
		}
	}
}
