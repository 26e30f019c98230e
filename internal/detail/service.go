package detail

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"auroramag/detailservice/internal/cache"
	"auroramag/detailservice/internal/domain"
	"auroramag/detailservice/internal/enrich"
	"auroramag/detailservice/internal/metrics"
	"auroramag/detailservice/internal/telemetry"
)

// Backend is the torrent index the detail record is built from.
type Backend interface {
	enrich.Searcher
	FetchSummary(ctx context.Context, infoHash string) (domain.TorrentSummary, error)
	FetchFiles(ctx context.Context, infoHash string) ([]domain.FileEntry, error)
}

type MovieMetadata interface {
	Enabled() bool
	Movie(ctx context.Context, id string) (*domain.TMDBMovie, error)
}

type ReviewAggregator interface {
	Lookup(ctx context.Context, title, year string) (*domain.DoubanRecord, error)
}

type Service struct {
	backend Backend
	related *enrich.RelatedFinder
	movies  MovieMetadata
	reviews ReviewAggregator
	cache   *cache.Cache
	logger  *slog.Logger
	now     func() time.Time

	relatedTimeout time.Duration
}

type Option func(*Service)

func WithMovieMetadata(movies MovieMetadata) Option {
	return func(s *Service) {
		s.movies = movies
	}
}

func WithReviewAggregator(reviews ReviewAggregator) Option {
	return func(s *Service) {
		s.reviews = reviews
	}
}

// WithCache memoizes whole detail records by info hash.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithRelatedTimeout bounds each related-content term search.
func WithRelatedTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.relatedTimeout = timeout
	}
}

func NewService(backend Backend, options ...Option) *Service {
	s := &Service{
		backend: backend,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, option := range options {
		if option != nil {
			option(s)
		}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.related = enrich.NewRelatedFinder(backend,
		enrich.WithRelatedLogger(s.logger),
		enrich.WithTermTimeout(s.relatedTimeout),
	)
	return s
}

// Details returns the enriched record for infoHash, serving it from the
// detail cache when possible. Failed lookups are never cached.
func (s *Service) Details(ctx context.Context, infoHash string) (domain.EnrichedDetail, error) {
	hash, err := domain.ParseInfoHash(infoHash)
	if err != nil {
		return domain.EnrichedDetail{}, err
	}
	if s.cache == nil {
		return s.Assemble(ctx, hash)
	}
	return cache.GetOrCompute(ctx, s.cache, hash, func(ctx context.Context) (domain.EnrichedDetail, error) {
		return s.Assemble(ctx, hash)
	})
}

// Assemble builds the record from scratch. Only the summary fetch can fail
// the request; files, related content and third-party metadata degrade to
// empty fields.
func (s *Service) Assemble(ctx context.Context, infoHash string) (domain.EnrichedDetail, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "detail.assemble",
		trace.WithAttributes(attribute.String("info_hash", infoHash)),
	)
	defer span.End()

	summary, err := s.backend.FetchSummary(ctx, infoHash)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "summary fetch failed")
		}
		return domain.EnrichedDetail{}, err
	}

	record := domain.EnrichedDetail{
		TorrentSummary:    summary,
		Quality:           enrich.ClassifyQuality(summary.Size),
		Release:           enrich.ParseRelease(summary.Title),
		Files:             []domain.FileEntry{},
		ImageFiles:        []domain.FileEntry{},
		AlternativeImages: enrich.AlternativeImages(summary.Title, summary.InfoHash),
		Keywords:          enrich.ExtractKeywords(summary.Title, summary.Category),
	}

	var (
		wg       conc.WaitGroup
		files    []domain.FileEntry
		filesErr error
		related  []domain.RelatedItem
		movie    *domain.TMDBMovie
		review   *domain.DoubanRecord
	)
	wg.Go(func() {
		files, filesErr = s.backend.FetchFiles(ctx, summary.InfoHash)
	})
	if len(record.Keywords) > 0 {
		wg.Go(func() {
			found := s.related.FindRelated(ctx, record.Keywords, summary.InfoHash, summary.Category, summary.Title)
			related = enrich.RankByRecommendation(found, s.now())
			metrics.RelatedItemsReturned.Observe(float64(len(related)))
		})
	}
	wg.Go(func() {
		movie = s.lookupMovie(ctx, summary)
		review = s.lookupReview(ctx, summary, movie)
	})
	wg.Wait()

	if filesErr != nil {
		s.logger.Warn("files fetch failed",
			slog.String("infoHash", summary.InfoHash),
			slog.String("error", filesErr.Error()),
		)
	} else if len(files) > 0 {
		stats := enrich.AnalyzeFiles(files)
		record.Files = files
		record.HasFilesInfo = true
		record.FileStats = &stats
		record.ImageFiles = enrich.ImageFiles(files)
	}
	if len(related) > 0 {
		record.RelatedContent = related
	}
	record.TMDB = movie
	record.Douban = review

	span.SetAttributes(
		attribute.Int("files", len(record.Files)),
		attribute.Int("related", len(record.RelatedContent)),
		attribute.Bool("tmdb", movie != nil),
		attribute.Bool("douban", review != nil),
	)
	return record, nil
}

func (s *Service) lookupMovie(ctx context.Context, summary domain.TorrentSummary) *domain.TMDBMovie {
	if s.movies == nil || !s.movies.Enabled() || summary.Category != domain.CategoryMovie {
		return nil
	}
	id := summary.Attrs["tmdb"]
	if id == "" {
		id = summary.Attrs["tmdbid"]
	}
	if id == "" {
		return nil
	}

	movie, err := s.movies.Movie(ctx, id)
	if err != nil {
		s.logger.Warn("tmdb lookup failed",
			slog.String("infoHash", summary.InfoHash),
			slog.String("tmdbId", id),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return movie
}

// lookupReview needs the movie only to derive a year when the title has
// none.
func (s *Service) lookupReview(ctx context.Context, summary domain.TorrentSummary, movie *domain.TMDBMovie) *domain.DoubanRecord {
	if s.reviews == nil || !summary.Category.IsVideo() {
		return nil
	}
	year := enrich.ExtractYear(summary.Title)
	if year == "" {
		year = movie.ReleaseYear()
	}

	record, err := s.reviews.Lookup(ctx, summary.Title, year)
	if err != nil {
		s.logger.Warn("douban lookup failed",
			slog.String("infoHash", summary.InfoHash),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return record
}
