package enrich

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"auroramag/detailservice/internal/domain"
	"auroramag/detailservice/internal/metrics"
	"auroramag/detailservice/internal/telemetry"
)

const (
	relatedSearchTerms = 4
	relatedPageSize    = 8
	maxRelatedItems    = 12

	originalKeywordWeight = 2
	expandedKeywordWeight = 1
)

// Searcher queries the torrent index for a single free-text term.
type Searcher interface {
	Search(ctx context.Context, term string, limit int) ([]domain.RelatedItem, error)
}

type RelatedFinder struct {
	searcher    Searcher
	logger      *slog.Logger
	termTimeout time.Duration
}

type RelatedOption func(*RelatedFinder)

func WithRelatedLogger(logger *slog.Logger) RelatedOption {
	return func(f *RelatedFinder) {
		f.logger = logger
	}
}

// WithTermTimeout bounds each term search. A term that times out contributes
// no results.
func WithTermTimeout(timeout time.Duration) RelatedOption {
	return func(f *RelatedFinder) {
		f.termTimeout = timeout
	}
}

func NewRelatedFinder(searcher Searcher, options ...RelatedOption) *RelatedFinder {
	finder := &RelatedFinder{
		searcher: searcher,
		logger:   slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(finder)
		}
	}
	if finder.logger == nil {
		finder.logger = slog.Default()
	}
	return finder
}

// FindRelated searches the first four expanded keywords concurrently, merges
// the hits in term order without duplicates or the subject itself, and ranks
// them by keyword overlap with the original and expanded terms.
func (f *RelatedFinder) FindRelated(ctx context.Context, keywords []string, subjectHash string, category domain.Category, title string) []domain.RelatedItem {
	if len(keywords) == 0 || f.searcher == nil {
		return nil
	}

	expanded := ExpandKeywords(keywords, category, title)
	terms := expanded[:min(relatedSearchTerms, len(expanded))]

	ctx, span := telemetry.Tracer().Start(ctx, "related.search",
		trace.WithAttributes(
			attribute.StringSlice("terms", terms),
			attribute.String("category", string(category)),
		),
	)
	defer span.End()

	perTerm := f.searchTerms(ctx, terms)
	merged := mergeRelated(perTerm, subjectHash)
	ranked := rankByRelevance(merged, keywords, expanded)

	span.SetAttributes(attribute.Int("results", len(ranked)))
	return ranked
}

// searchTerms runs every term and waits for all of them. Each term owns one
// slot of the result so discovery order follows term order.
func (f *RelatedFinder) searchTerms(ctx context.Context, terms []string) [][]domain.RelatedItem {
	results := make([][]domain.RelatedItem, len(terms))
	sem := semaphore.NewWeighted(relatedSearchTerms)
	var wg sync.WaitGroup

	for i, term := range terms {
		wg.Add(1)
		go func(slot int, term string) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				metrics.RelatedSearchesTotal.WithLabelValues("canceled").Inc()
				return
			}
			defer sem.Release(1)

			termCtx := ctx
			if f.termTimeout > 0 {
				var cancel context.CancelFunc
				termCtx, cancel = context.WithTimeout(ctx, f.termTimeout)
				defer cancel()
			}

			items, err := f.searcher.Search(termCtx, term, relatedPageSize)
			if err != nil {
				metrics.RelatedSearchesTotal.WithLabelValues("error").Inc()
				f.logger.Warn("related search failed",
					slog.String("term", term),
					slog.String("error", err.Error()),
				)
				return
			}
			metrics.RelatedSearchesTotal.WithLabelValues("ok").Inc()
			results[slot] = items
		}(i, term)
	}
	wg.Wait()

	return results
}

func mergeRelated(perTerm [][]domain.RelatedItem, subjectHash string) []domain.RelatedItem {
	seen := map[string]struct{}{
		normalizeHash(subjectHash): {},
	}
	var merged []domain.RelatedItem
	for _, items := range perTerm {
		for _, item := range items {
			key := normalizeHash(item.InfoHash)
			if key == "" {
				continue
			}
			if _, exists := seen[key]; exists {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, item)
		}
	}
	return merged
}

func rankByRelevance(items []domain.RelatedItem, keywords, expanded []string) []domain.RelatedItem {
	for i := range items {
		name := strings.ToLower(items[i].Name)
		score := 0
		for _, keyword := range keywords {
			if strings.Contains(name, strings.ToLower(keyword)) {
				score += originalKeywordWeight
			}
		}
		for _, keyword := range expanded {
			if strings.Contains(name, strings.ToLower(keyword)) {
				score += expandedKeywordWeight
			}
		}
		items[i].MatchScore = score
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].MatchScore > items[j].MatchScore
	})
	if len(items) > maxRelatedItems {
		items = items[:maxRelatedItems]
	}
	return items
}

// RankByRecommendation attaches quality and recommendation score to every
// item and orders them by score, keeping relevance order for ties.
func RankByRecommendation(items []domain.RelatedItem, now time.Time) []domain.RelatedItem {
	out := make([]domain.RelatedItem, len(items))
	for i, item := range items {
		quality := ClassifyQuality(item.Size)
		item.QualityInfo = &quality
		item.Score = RecommendationScore(item, now)
		out[i] = item
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > maxRelatedItems {
		out = out[:maxRelatedItems]
	}
	return out
}

func normalizeHash(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
