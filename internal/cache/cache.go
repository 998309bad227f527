// Package cache keeps the most recent reading table for a short freshness
// window so page renders within the window reuse one fetch.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/airquality.report/internal/monitoring"
	"github.com/banshee-data/airquality.report/internal/reading"
	"github.com/banshee-data/airquality.report/internal/source"
	"github.com/banshee-data/airquality.report/internal/timeutil"
)

// DefaultTTL is how long a fetched table is reused.
const DefaultTTL = 60 * time.Second

// Entry is one fetched snapshot of the source table. For a table replayed
// from storage, FetchedAt and Source describe the original fetch and Stored
// is set.
type Entry struct {
	ID        uuid.UUID
	Table     *reading.Table
	FetchedAt time.Time
	Source    string
	Stored    bool

	loadedAt time.Time
}

// Options configures a Cache. Zero values pick the defaults.
type Options struct {
	TTL     time.Duration
	Clock   timeutil.Clock
	Metrics *monitoring.Metrics
}

// Cache memoizes Source.Fetch for TTL.
type Cache struct {
	src     source.Source
	ttl     time.Duration
	clock   timeutil.Clock
	metrics *monitoring.Metrics

	// mu is held across the source call so concurrent renders share one fetch.
	mu      sync.Mutex
	entry   *Entry
	expired bool
}

// New wraps src.
func New(src source.Source, opts Options) *Cache {
	c := &Cache{
		src:     src,
		ttl:     opts.TTL,
		clock:   opts.Clock,
		metrics: opts.Metrics,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.clock == nil {
		c.clock = timeutil.RealClock{}
	}
	return c
}

// TTL is the freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// SourceName names the wrapped source.
func (c *Cache) SourceName() string { return c.src.Name() }

// Fetch returns the cached entry while it is younger than the TTL and not
// invalidated; otherwise, or when force is set, it reads the source. A
// failed read returns the error and keeps the previous entry.
func (c *Cache) Fetch(ctx context.Context, force bool) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.fresh() {
		c.metrics.CacheLookup(monitoring.CacheHit)
		return c.entry, nil
	}
	if force {
		c.metrics.CacheLookup(monitoring.CacheForced)
	} else {
		c.metrics.CacheLookup(monitoring.CacheMiss)
	}

	start := c.clock.Now()
	table, err := c.src.Fetch(ctx)
	c.metrics.ObserveFetch(c.src.Name(), c.clock.Since(start), table.Len(), err)
	if err != nil {
		return nil, fmt.Errorf("fetch from %s: %w", c.src.Name(), err)
	}

	now := c.clock.Now()
	e := &Entry{ID: uuid.New(), Table: table, FetchedAt: now, Source: c.src.Name(), loadedAt: now}
	if p := table.Stored; p != nil {
		e.FetchedAt, e.Source, e.Stored = p.FetchedAt, p.Name, true
	}
	c.entry = e
	c.expired = false
	monitoring.Logf("cache: fetched %d rows from %s (snapshot %s)", table.Len(), e.Source, e.ID)
	return e, nil
}

// Invalidate expires the current entry so the next Fetch reads the source
// regardless of elapsed time.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expired = true
}

// Peek returns the current entry without fetching, or nil.
func (c *Cache) Peek() *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry
}

func (c *Cache) fresh() bool {
	return c.entry != nil && !c.expired && c.clock.Since(c.entry.loadedAt) < c.ttl
}
