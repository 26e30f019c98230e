package detail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"auroramag/detailservice/internal/cache"
	"auroramag/detailservice/internal/domain"
)

const inceptionHash = "0123456789abcdef0123456789abcdef01234567"

type fakeBackend struct {
	mu sync.Mutex

	summary    domain.TorrentSummary
	summaryErr error
	files      []domain.FileEntry
	filesErr   error
	results    map[string][]domain.RelatedItem
	searchErrs map[string]error

	summaryCalls atomic.Int32
	filesCalls   atomic.Int32
	searches     []string
}

func (f *fakeBackend) FetchSummary(_ context.Context, infoHash string) (domain.TorrentSummary, error) {
	f.summaryCalls.Add(1)
	if f.summaryErr != nil {
		return domain.TorrentSummary{}, f.summaryErr
	}
	return f.summary, nil
}

func (f *fakeBackend) FetchFiles(_ context.Context, infoHash string) ([]domain.FileEntry, error) {
	f.filesCalls.Add(1)
	return f.files, f.filesErr
}

func (f *fakeBackend) Search(_ context.Context, term string, _ int) ([]domain.RelatedItem, error) {
	f.mu.Lock()
	f.searches = append(f.searches, term)
	f.mu.Unlock()
	if err := f.searchErrs[term]; err != nil {
		return nil, err
	}
	return f.results[term], nil
}

func (f *fakeBackend) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

type fakeMovies struct {
	movie *domain.TMDBMovie
	err   error
	ids   []string
}

func (f *fakeMovies) Enabled() bool { return true }

func (f *fakeMovies) Movie(_ context.Context, id string) (*domain.TMDBMovie, error) {
	f.ids = append(f.ids, id)
	return f.movie, f.err
}

type fakeReviews struct {
	record *domain.DoubanRecord
	err    error
	calls  []string
}

func (f *fakeReviews) Lookup(_ context.Context, title, year string) (*domain.DoubanRecord, error) {
	f.calls = append(f.calls, title+"|"+year)
	return f.record, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedNow() time.Time {
	return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
}

func inceptionBackend() *fakeBackend {
	published := fixedNow().Add(-48 * time.Hour)
	return &fakeBackend{
		summary: domain.TorrentSummary{
			InfoHash: inceptionHash,
			Title:    "Inception 2010 1080p BluRay x264",
			Category: domain.CategoryMovie,
			Size:     8 << 30,
			Seeders:  120,
			Attrs:    map[string]string{"tmdbid": "27205"},
		},
		files: []domain.FileEntry{
			{Path: "Inception.2010.1080p.mkv", Size: 8 << 30},
			{Path: "poster.jpg", Size: 200 << 10},
			{Path: "Inception.srt", Size: 80 << 10},
		},
		results: map[string][]domain.RelatedItem{
			"2010": {
				{InfoHash: "aaaa", Name: "Inception 2010 2160p", Size: 40 << 30, Seeders: 50, PublishedAt: &published},
				{InfoHash: inceptionHash, Name: "Inception 2010 1080p BluRay x264"},
			},
			"2009": {{InfoHash: "bbbb", Name: "Avatar 2009", Size: 2 << 30, Seeders: 5}},
			"2011": {{InfoHash: "cccc", Name: "Inception Extras 2011", Size: 1 << 30, Seeders: 1}},
		},
		searchErrs: map[string]error{
			"Inception": errors.New("connection reset"),
		},
	}
}

func TestAssembleBuildsFullRecord(t *testing.T) {
	backend := inceptionBackend()
	movies := &fakeMovies{movie: &domain.TMDBMovie{ID: 27205, Title: "Inception", ReleaseDate: "2010-07-15"}}
	reviews := &fakeReviews{record: &domain.DoubanRecord{ID: "3541415", Title: "盗梦空间", Rating: "9.4"}}
	service := NewService(backend,
		WithMovieMetadata(movies),
		WithReviewAggregator(reviews),
		WithLogger(quietLogger()),
		WithClock(fixedNow),
	)

	record, err := service.Assemble(context.Background(), inceptionHash)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if record.Quality.Quality != domain.Quality4K {
		t.Fatalf("expected 4K tier for 8GiB, got %+v", record.Quality)
	}
	if !record.HasFilesInfo || len(record.Files) != 3 {
		t.Fatalf("expected files info, got %+v", record.Files)
	}
	if record.FileStats == nil || record.FileStats.FileCount != 3 {
		t.Fatalf("expected file stats, got %+v", record.FileStats)
	}
	if len(record.ImageFiles) != 1 || record.ImageFiles[0].Path != "poster.jpg" {
		t.Fatalf("expected poster image, got %+v", record.ImageFiles)
	}
	if len(record.AlternativeImages) == 0 {
		t.Fatalf("expected alternative image links")
	}
	if backend.searchCount() != 4 {
		t.Fatalf("expected 4 related searches, got %v", backend.searches)
	}
	if len(record.RelatedContent) != 3 {
		t.Fatalf("expected related content from the three healthy searches, got %+v", record.RelatedContent)
	}
	for _, item := range record.RelatedContent {
		if item.InfoHash == inceptionHash {
			t.Fatalf("subject torrent leaked into related content")
		}
	}
	if record.RelatedContent[0].InfoHash != "aaaa" {
		t.Fatalf("expected best recommendation first, got %s", record.RelatedContent[0].InfoHash)
	}
	if record.TMDB == nil || record.TMDB.Title != "Inception" {
		t.Fatalf("expected tmdb record, got %+v", record.TMDB)
	}
	if len(movies.ids) != 1 || movies.ids[0] != "27205" {
		t.Fatalf("expected tmdb lookup by attr id, got %v", movies.ids)
	}
	if record.Douban == nil || record.Douban.Rating != "9.4" {
		t.Fatalf("expected douban record, got %+v", record.Douban)
	}
	if len(reviews.calls) != 1 || reviews.calls[0] != "Inception 2010 1080p BluRay x264|2010" {
		t.Fatalf("unexpected douban calls %v", reviews.calls)
	}
}

func TestAssembleStopsOnMissingSummary(t *testing.T) {
	backend := &fakeBackend{summaryErr: domain.ErrNotFound}
	service := NewService(backend, WithLogger(quietLogger()))

	_, err := service.Assemble(context.Background(), inceptionHash)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if backend.filesCalls.Load() != 0 {
		t.Fatalf("expected no files fetch")
	}
	if backend.searchCount() != 0 {
		t.Fatalf("expected no related searches, got %v", backend.searches)
	}
}

func TestAssembleSurfacesUpstreamFailure(t *testing.T) {
	backend := &fakeBackend{summaryErr: &domain.UpstreamError{Status: 503, Err: errors.New("unavailable")}}
	service := NewService(backend, WithLogger(quietLogger()))

	_, err := service.Assemble(context.Background(), inceptionHash)
	upstream, ok := domain.AsUpstreamError(err)
	if !ok || upstream.HTTPStatus() != 503 {
		t.Fatalf("expected upstream 503, got %v", err)
	}
}

func TestAssembleDegradesOptionalParts(t *testing.T) {
	backend := inceptionBackend()
	backend.filesErr = errors.New("graphql down")
	movies := &fakeMovies{err: errors.New("tmdb down")}
	reviews := &fakeReviews{err: errors.New("douban blocked")}
	service := NewService(backend,
		WithMovieMetadata(movies),
		WithReviewAggregator(reviews),
		WithLogger(quietLogger()),
		WithClock(fixedNow),
	)

	record, err := service.Assemble(context.Background(), inceptionHash)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if record.HasFilesInfo || record.FileStats != nil {
		t.Fatalf("expected no files info, got %+v", record)
	}
	if record.Files == nil || len(record.Files) != 0 || record.ImageFiles == nil {
		t.Fatalf("expected empty file lists, got %+v %+v", record.Files, record.ImageFiles)
	}
	if record.TMDB != nil || record.Douban != nil {
		t.Fatalf("expected metadata to be dropped")
	}
	if len(record.RelatedContent) == 0 {
		t.Fatalf("expected related content despite other failures")
	}
}

func TestAssembleUsesMovieYearForReviews(t *testing.T) {
	backend := inceptionBackend()
	backend.summary.Title = "Inception 1080p BluRay"
	movies := &fakeMovies{movie: &domain.TMDBMovie{ID: 27205, Title: "Inception", ReleaseDate: "2010-07-15"}}
	reviews := &fakeReviews{}
	service := NewService(backend,
		WithMovieMetadata(movies),
		WithReviewAggregator(reviews),
		WithLogger(quietLogger()),
	)

	if _, err := service.Assemble(context.Background(), inceptionHash); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(reviews.calls) != 1 || reviews.calls[0] != "Inception 1080p BluRay|2010" {
		t.Fatalf("expected tmdb year fallback, got %v", reviews.calls)
	}
}

func TestAssembleSkipsMetadataOutsideVideo(t *testing.T) {
	backend := inceptionBackend()
	backend.summary.Category = domain.CategoryPCGames
	movies := &fakeMovies{}
	reviews := &fakeReviews{}
	service := NewService(backend,
		WithMovieMetadata(movies),
		WithReviewAggregator(reviews),
		WithLogger(quietLogger()),
	)

	if _, err := service.Assemble(context.Background(), inceptionHash); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(movies.ids) != 0 || len(reviews.calls) != 0 {
		t.Fatalf("expected no metadata lookups, got %v %v", movies.ids, reviews.calls)
	}
}

func TestDetailsCachesSuccessOnly(t *testing.T) {
	backend := inceptionBackend()
	service := NewService(backend,
		WithCache(cache.New(cache.NameDetails, time.Hour)),
		WithLogger(quietLogger()),
	)

	for i := 0; i < 2; i++ {
		record, err := service.Details(context.Background(), "urn:btih:"+inceptionHash)
		if err != nil {
			t.Fatalf("Details: %v", err)
		}
		if record.InfoHash != inceptionHash {
			t.Fatalf("unexpected hash %s", record.InfoHash)
		}
	}
	if got := backend.summaryCalls.Load(); got != 1 {
		t.Fatalf("expected 1 summary fetch, got %d", got)
	}

	missing := &fakeBackend{summaryErr: domain.ErrNotFound}
	service = NewService(missing,
		WithCache(cache.New(cache.NameDetails, time.Hour)),
		WithLogger(quietLogger()),
	)
	for i := 0; i < 2; i++ {
		if _, err := service.Details(context.Background(), inceptionHash); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if got := missing.summaryCalls.Load(); got != 2 {
		t.Fatalf("expected not-found to bypass the cache, got %d fetches", got)
	}
}

func TestDetailsRejectsInvalidHash(t *testing.T) {
	backend := &fakeBackend{}
	service := NewService(backend, WithLogger(quietLogger()))
	if _, err := service.Details(context.Background(), "not-a-hash"); !errors.Is(err, domain.ErrInvalidInfoHash) {
		t.Fatalf("expected ErrInvalidInfoHash, got %v", err)
	}
	if backend.summaryCalls.Load() != 0 {
		t.Fatalf("expected no backend call")
	}
}
