package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	NameTMDB    = "tmdb"
	NameGraphQL = "graphql"
	NameDetails = "details"
	NameDouban  = "douban"

	clearAll = "all"
)

var ErrUnknownCache = errors.New("unknown cache type")

// Registry groups the service caches for reporting and bulk clearing.
type Registry struct {
	order  []string
	caches map[string]*Cache
}

func NewRegistry(caches ...*Cache) *Registry {
	r := &Registry{caches: make(map[string]*Cache, len(caches))}
	for _, c := range caches {
		if c == nil {
			continue
		}
		if _, exists := r.caches[c.name]; !exists {
			r.order = append(r.order, c.name)
		}
		r.caches[c.name] = c
	}
	return r
}

// Get returns nil for unknown names.
func (r *Registry) Get(name string) *Cache {
	return r.caches[name]
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

type Overall struct {
	TotalKeys     int    `json:"totalKeys"`
	TotalHits     int64  `json:"totalHits"`
	TotalMisses   int64  `json:"totalMisses"`
	TotalRequests int64  `json:"totalRequests"`
	HitRate       string `json:"hitRate"`
}

type Report struct {
	Caches  map[string]Stats `json:"caches"`
	Overall Overall          `json:"overall"`
}

func (r *Registry) Report(ctx context.Context) Report {
	report := Report{Caches: make(map[string]Stats, len(r.order))}
	for _, name := range r.order {
		stats := r.caches[name].Stats(ctx)
		report.Caches[name] = stats
		report.Overall.TotalKeys += stats.Keys
		report.Overall.TotalHits += stats.Hits
		report.Overall.TotalMisses += stats.Misses
	}
	report.Overall.TotalRequests = report.Overall.TotalHits + report.Overall.TotalMisses
	report.Overall.HitRate = formatHitRate(report.Overall.TotalHits, report.Overall.TotalMisses)
	return report
}

// Clear empties the named cache. An empty kind or "all" empties every cache
// and also resets the counters.
func (r *Registry) Clear(ctx context.Context, kind string) (string, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		kind = clearAll
	}

	if kind != clearAll {
		c, ok := r.caches[kind]
		if !ok {
			return kind, fmt.Errorf("%w: %q", ErrUnknownCache, kind)
		}
		return kind, c.Clear(ctx)
	}

	var errs []error
	for _, name := range r.order {
		c := r.caches[name]
		if err := c.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
		c.ResetStats()
	}
	return kind, errors.Join(errs...)
}
