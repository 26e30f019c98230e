package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"auroramag/detailservice/internal/domain"
)

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]domain.RelatedItem
	errs    map[string]error
	terms   []string
}

func (f *fakeSearcher) Search(_ context.Context, term string, limit int) ([]domain.RelatedItem, error) {
	f.mu.Lock()
	f.terms = append(f.terms, term)
	f.mu.Unlock()
	if limit != relatedPageSize {
		return nil, fmt.Errorf("unexpected limit %d", limit)
	}
	if err := f.errs[term]; err != nil {
		return nil, err
	}
	return f.results[term], nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFindRelatedMergesAndRanks(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string][]domain.RelatedItem{
			"2010": {
				{InfoHash: "AAA", Name: "Inception 2010 4K"},
				{InfoHash: "subject", Name: "Inception 2010 1080p"},
			},
			"2009": {
				{InfoHash: "bbb", Name: "Some 2009 film"},
				{InfoHash: "aaa", Name: "Inception 2010 4K duplicate"},
				{InfoHash: "", Name: "No hash"},
			},
			"2011": {
				{InfoHash: "ccc", Name: "Inception Behind 2011"},
			},
		},
		errs: map[string]error{
			"Inception": errors.New("upstream timeout"),
		},
	}
	finder := NewRelatedFinder(searcher, WithRelatedLogger(quietLogger()))

	items := finder.FindRelated(context.Background(), []string{"2010", "Inception"}, "SUBJECT", domain.CategoryMovie, "Inception 2010 1080p")

	if len(searcher.terms) != 4 {
		t.Fatalf("expected 4 searches, got %v", searcher.terms)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 related items, got %+v", items)
	}
	wantOrder := []string{"AAA", "ccc", "bbb"}
	wantScores := []int{6, 4, 1}
	for i, item := range items {
		if item.InfoHash != wantOrder[i] {
			t.Fatalf("expected %s at %d, got %s", wantOrder[i], i, item.InfoHash)
		}
		if item.MatchScore != wantScores[i] {
			t.Fatalf("expected score %d for %s, got %d", wantScores[i], item.InfoHash, item.MatchScore)
		}
	}
}

func TestFindRelatedRunsTermsConcurrently(t *testing.T) {
	var calls atomic.Int32
	ready := make(chan struct{})
	searcher := searcherFunc(func(ctx context.Context, term string, _ int) ([]domain.RelatedItem, error) {
		if calls.Add(1) == 4 {
			close(ready)
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return []domain.RelatedItem{{InfoHash: "hash-" + term, Name: term}}, nil
	})
	finder := NewRelatedFinder(searcher, WithRelatedLogger(quietLogger()), WithTermTimeout(2*time.Second))

	items := finder.FindRelated(context.Background(), []string{"2010", "Inception"}, "subject", domain.CategoryMovie, "Inception 2010")

	if len(items) != 4 {
		t.Fatalf("expected every term to return, got %d items", len(items))
	}
}

func TestFindRelatedCapsResults(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]domain.RelatedItem{}}
	var batch []domain.RelatedItem
	for i := 0; i < 20; i++ {
		batch = append(batch, domain.RelatedItem{InfoHash: fmt.Sprintf("h%02d", i), Name: fmt.Sprintf("Album %d", i)})
	}
	searcher.results["Album"] = batch
	finder := NewRelatedFinder(searcher, WithRelatedLogger(quietLogger()))

	items := finder.FindRelated(context.Background(), []string{"Album"}, "", domain.CategoryOther, "Album")

	if len(items) != 12 {
		t.Fatalf("expected 12 items, got %d", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i-1].MatchScore < items[i].MatchScore {
			t.Fatalf("expected descending relevance at %d", i)
		}
	}
}

func TestFindRelatedWithoutKeywords(t *testing.T) {
	searcher := &fakeSearcher{}
	finder := NewRelatedFinder(searcher)

	if items := finder.FindRelated(context.Background(), nil, "abc", domain.CategoryMovie, ""); items != nil {
		t.Fatalf("expected nil, got %+v", items)
	}
	if len(searcher.terms) != 0 {
		t.Fatalf("expected no searches, got %v", searcher.terms)
	}
}

type searcherFunc func(ctx context.Context, term string, limit int) ([]domain.RelatedItem, error)

func (f searcherFunc) Search(ctx context.Context, term string, limit int) ([]domain.RelatedItem, error) {
	return f(ctx, term, limit)
}
