package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"auroramag/detailservice/internal/metrics"
)

const (
	defaultMaxEntries     = 256
	defaultComputeTimeout = 30 * time.Second
)

// Backend is a shared store that sits in front of the in-memory map.
// Values are opaque JSON documents.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

type entry struct {
	value     []byte
	updatedAt time.Time
	expiresAt time.Time
}

// Cache is a named TTL cache with an optional shared backend. Hit and miss
// counters belong to the cache and are mirrored into Prometheus.
type Cache struct {
	name       string
	ttl        time.Duration
	maxEntries int
	compute    time.Duration
	now        func() time.Time
	remote     Backend
	logger     *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

type Option func(*Cache)

func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

// WithBackend makes the shared backend the first lookup tier.
func WithBackend(backend Backend) Option {
	return func(c *Cache) {
		c.remote = backend
	}
}

// WithComputeTimeout bounds a shared computation in GetOrCompute. It runs
// detached from any single caller, so this is its only deadline.
func WithComputeTimeout(timeout time.Duration) Option {
	return func(c *Cache) {
		c.compute = timeout
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func New(name string, ttl time.Duration, options ...Option) *Cache {
	c := &Cache{
		name:       name,
		ttl:        ttl,
		maxEntries: defaultMaxEntries,
		compute:    defaultComputeTimeout,
		now:        time.Now,
		logger:     slog.Default(),
		entries:    make(map[string]*entry),
	}
	for _, option := range options {
		if option != nil {
			option(c)
		}
	}
	if c.maxEntries <= 0 {
		c.maxEntries = defaultMaxEntries
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.compute <= 0 {
		c.compute = defaultComputeTimeout
	}
	return c
}

func (c *Cache) Name() string {
	return c.name
}

// Get returns the stored document for key and records a hit or a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	now := c.now()

	if c.remote != nil {
		data, found, err := c.remote.Get(ctx, key)
		if err != nil {
			c.logger.Warn("cache backend read failed",
				slog.String("cache", c.name),
				slog.String("error", err.Error()),
			)
		} else if found {
			c.recordHit()
			c.storeMemory(key, data, now)
			return data, true
		}
	}

	c.mu.Lock()
	item, ok := c.entries[key]
	if ok && !now.Before(item.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		c.recordMiss()
		return nil, false
	}
	c.recordHit()
	return item.value, true
}

func (c *Cache) Set(ctx context.Context, key string, value []byte) {
	if c.remote != nil {
		if err := c.remote.Set(ctx, key, value, c.ttl); err != nil {
			c.logger.Warn("cache backend write failed",
				slog.String("cache", c.name),
				slog.String("error", err.Error()),
			)
		}
	}
	c.storeMemory(key, value, c.now())
}

// Clear drops every entry. Counters are kept; see ResetStats.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()

	if c.remote != nil {
		if err := c.remote.Clear(ctx); err != nil {
			return fmt.Errorf("clear %s cache: %w", c.name, err)
		}
	}
	return nil
}

func (c *Cache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
}

// Len reports the number of live keys, preferring the shared backend count.
func (c *Cache) Len(ctx context.Context) int {
	if c.remote != nil {
		count, err := c.remote.Count(ctx)
		if err == nil {
			return count
		}
		c.logger.Warn("cache backend count failed",
			slog.String("cache", c.name),
			slog.String("error", err.Error()),
		)
	}

	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, item := range c.entries {
		if now.Before(item.expiresAt) {
			count++
		}
	}
	return count
}

type Stats struct {
	Keys    int    `json:"keys"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	HitRate string `json:"hitRate"`
}

func (c *Cache) Stats(ctx context.Context) Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	return Stats{
		Keys:    c.Len(ctx),
		Hits:    hits,
		Misses:  misses,
		HitRate: formatHitRate(hits, misses),
	}
}

func (c *Cache) recordHit() {
	c.hits.Add(1)
	metrics.CacheHitsTotal.WithLabelValues(c.name).Inc()
}

func (c *Cache) recordMiss() {
	c.misses.Add(1)
	metrics.CacheMissesTotal.WithLabelValues(c.name).Inc()
}

func (c *Cache) storeMemory(key string, value []byte, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{
		value:     value,
		updatedAt: now,
		expiresAt: now.Add(c.ttl),
	}
	c.trimLocked(now)
}

func (c *Cache) trimLocked(now time.Time) {
	for key, item := range c.entries {
		if !now.Before(item.expiresAt) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) <= c.maxEntries {
		return
	}

	type pair struct {
		key  string
		item *entry
	}
	items := make([]pair, 0, len(c.entries))
	for key, item := range c.entries {
		items = append(items, pair{key: key, item: item})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].item.updatedAt.Before(items[j].item.updatedAt)
	})
	for i := 0; i < len(items)-c.maxEntries; i++ {
		delete(c.entries, items[i].key)
	}
}

// GetOrCompute returns the cached value for key or runs compute once for all
// concurrent callers of the same key. Errors are returned and never stored;
// a nil result is stored as JSON null and served as a hit afterwards.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, compute func(context.Context) (T, error)) (T, error) {
	var zero T

	if data, ok := c.Get(ctx, key); ok {
		var value T
		if err := json.Unmarshal(data, &value); err == nil {
			return value, nil
		}
		c.logger.Warn("discarding undecodable cache entry",
			slog.String("cache", c.name),
			slog.String("key", key),
		)
	}

	// The shared run outlives any one caller; each caller stops waiting when
	// its own context ends.
	results := c.group.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.compute)
		defer cancel()
		value, err := compute(shared)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode %s cache value: %w", c.name, err)
		}
		c.Set(shared, key, encoded)
		return encoded, nil
	})

	var data any
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case result := <-results:
		if result.Err != nil {
			return zero, result.Err
		}
		data = result.Val
	}

	var value T
	if err := json.Unmarshal(data.([]byte), &value); err != nil {
		return zero, fmt.Errorf("decode %s cache value: %w", c.name, err)
	}
	return value, nil
}

func formatHitRate(hits, misses int64) string {
	total := hits + misses
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(hits)/float64(total)*100)
}
