package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"auroramag/detailservice/internal/cache"
	"auroramag/detailservice/internal/domain"
	"auroramag/detailservice/internal/providers/bitmagnet"
	"auroramag/detailservice/internal/providers/tmdb"
)

type DetailService interface {
	Details(ctx context.Context, infoHash string) (domain.EnrichedDetail, error)
}

// Backend is the slice of the torrent index the HTTP layer proxies to.
type Backend interface {
	BaseURL() string
	Torznab(ctx context.Context, params url.Values) (bitmagnet.TorznabResult, error)
	ProxyGraphQL(ctx context.Context, body []byte) (bitmagnet.GraphQLResult, error)
	SearchTorrents(ctx context.Context, request domain.SearchRequest) (domain.SearchPage, error)
}

type MediaService interface {
	Enabled() bool
	Details(ctx context.Context, mediaType, id, language string) (json.RawMessage, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	details DetailService
	backend Backend
	media   MediaService
	caches  *cache.Registry
	redis   Pinger
	logger  *slog.Logger

	publicHost     string
	publicProtocol string
	corsOrigins    []string
	started        time.Time
}

const (
	defaultPublicHost = "localhost:3337"
	maxSearchLimit    = 100
	maxGraphQLBody    = 1 << 20
)

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithMedia(media MediaService) ServerOption {
	return func(s *Server) {
		s.media = media
	}
}

func WithCaches(caches *cache.Registry) ServerOption {
	return func(s *Server) {
		s.caches = caches
	}
}

// WithRedis adds a shared cache tier check to /health.
func WithRedis(redis Pinger) ServerOption {
	return func(s *Server) {
		s.redis = redis
	}
}

// WithPublicURL pins the base of links written into Torznab feeds. An empty
// host falls back to the request's forwarded headers.
func WithPublicURL(host, protocol string) ServerOption {
	return func(s *Server) {
		s.publicHost = strings.TrimSpace(host)
		s.publicProtocol = strings.TrimSpace(protocol)
	}
}

func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

func NewServer(details DetailService, backend Backend, options ...ServerOption) *Server {
	server := &Server{
		details:        details,
		backend:        backend,
		logger:         slog.Default(),
		publicProtocol: "http",
		corsOrigins:    []string{"*"},
		started:        time.Now(),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	if server.caches == nil {
		server.caches = cache.NewRegistry()
	}
	if server.publicProtocol == "" {
		server.publicProtocol = "http"
	}
	return server
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(recoveryMiddleware(s.logger))
	r.Use(metricsMiddleware)
	r.Use(loggingMiddleware(s.logger))

	compressor, err := httpcompression.DefaultAdapter(
		httpcompression.MinSize(1024),
		httpcompression.GzipCompressionLevel(2),
		httpcompression.Prefer(httpcompression.PreferServer),
	)
	if err != nil {
		s.logger.Warn("http compression disabled", slog.String("error", err.Error()))
	} else {
		r.Use(compressor)
	}

	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}).Handler)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/torznab", s.handleTorznab)
	r.Get("/torznab/", s.handleTorznab)
	r.Get("/torznab/api", s.handleTorznab)

	r.Get("/details/{infoHash}", s.handleDetailsPage)
	r.Get("/api/details/{infoHash}", s.handleDetails)
	r.Get("/api/search", s.handleSearch)
	r.Post("/graphql", s.handleGraphQL)
	r.Get("/media/tmdb/{mediaType}/{id}", s.handleMedia)

	r.Get("/cache/stats", s.handleCacheStats)
	r.Get("/api/cache/stats", s.handleCacheUsage)
	r.Post("/cache/clear", s.handleCacheClear)

	return otelhttp.NewHandler(r, "detail-service",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.caches.Report(r.Context())
	sizes := make(map[string]int, len(report.Caches))
	for name, stats := range report.Caches {
		sizes[name] = stats.Keys
	}
	payload := map[string]any{
		"status":    "ok",
		"upstream":  s.backend.BaseURL(),
		"timestamp": time.Now().UTC(),
		"cache": map[string]any{
			"stats":   report.Caches,
			"hitRate": report.Overall.HitRate,
			"sizes":   sizes,
		},
	}
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx); err != nil {
			payload["redis"] = "unavailable"
			s.logger.Warn("redis health check failed", slog.String("error", err.Error()))
		} else {
			payload["redis"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleTorznab(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	result, err := s.backend.Torznab(r.Context(), params)
	if err != nil {
		s.logger.Warn("torznab proxy failed",
			slog.String("t", params.Get("t")),
			slog.String("error", err.Error()),
		)
		status := upstreamStatus(err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	body := result.Body
	if bitmagnet.RewritesSearch(params.Get("t")) {
		rewritten, err := bitmagnet.RewriteTorznab(body, s.publicBaseURL(r))
		if err != nil {
			s.logger.Warn("torznab rewrite failed, passing feed through",
				slog.String("error", err.Error()),
			)
		} else {
			body = rewritten
		}
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	record, err := s.details.Details(r.Context(), chi.URLParam(r, "infoHash"))
	if err != nil {
		s.writeDetailsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleDetailsPage(w http.ResponseWriter, r *http.Request) {
	record, err := s.details.Details(r.Context(), chi.URLParam(r, "infoHash"))
	if err != nil {
		status, _, message := s.classifyDetailsError(err)
		http.Error(w, message, status)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderDetailPage(w, record); err != nil {
		s.logger.Error("render detail page failed",
			slog.String("infoHash", record.InfoHash),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	limit, err := parsePositiveInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}
	offset, err := parseNonNegativeInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid offset")
		return
	}

	request := domain.SearchRequest{
		Query:  query,
		Limit:  min(limit, maxSearchLimit),
		Offset: offset,
		Sort:   domain.NormalizeSortField(r.URL.Query().Get("sort")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("desc")); raw != "" {
		descending := parseOptionalBool(raw)
		request.Descending = &descending
	}

	page, err := s.backend.SearchTorrents(r.Context(), request)
	if err != nil {
		s.logger.Warn("search request failed",
			slog.String("query", truncate(query, 80)),
			slog.String("error", err.Error()),
		)
		writeError(w, upstreamStatus(err), "upstream_error", "search failed")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxGraphQLBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "read request body")
		return
	}
	result, err := s.backend.ProxyGraphQL(r.Context(), body)
	if err != nil {
		s.logger.Warn("graphql proxy failed", slog.String("error", err.Error()))
		writeError(w, upstreamStatus(err), "upstream_error", "graphql request failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.Status)
	_, _ = w.Write(result.Body)
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if s.media == nil || !s.media.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "tmdb is not configured")
		return
	}
	raw, err := s.media.Details(r.Context(),
		chi.URLParam(r, "mediaType"),
		chi.URLParam(r, "id"),
		r.URL.Query().Get("language"),
	)
	if err != nil {
		switch {
		case errors.Is(err, tmdb.ErrUnsupportedMedia), errors.Is(err, tmdb.ErrInvalidID):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			s.logger.Warn("tmdb media lookup failed", slog.String("error", err.Error()))
			writeError(w, upstreamStatus(err), "upstream_error", "tmdb request failed")
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.caches.Report(r.Context()))
}

// handleCacheUsage is the flat per-cache view with process figures.
func (s *Server) handleCacheUsage(w http.ResponseWriter, r *http.Request) {
	report := s.caches.Report(r.Context())
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	payload := make(map[string]any, len(report.Caches)+2)
	for name, stats := range report.Caches {
		payload[name] = stats
	}
	payload["uptime"] = time.Since(s.started).Seconds()
	payload["memory"] = map[string]any{
		"alloc":      mem.Alloc,
		"heapAlloc":  mem.HeapAlloc,
		"heapInuse":  mem.HeapInuse,
		"sys":        mem.Sys,
		"numGC":      mem.NumGC,
		"goroutines": runtime.NumGoroutine(),
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	cleared, err := s.caches.Clear(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		if errors.Is(err, cache.ErrUnknownCache) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		s.logger.Warn("cache clear failed",
			slog.String("type", cleared),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "cache clear failed")
		return
	}
	s.logger.Info("cache cleared", slog.String("type", cleared))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Cache cleared: " + cleared,
		"success": true,
	})
}

func (s *Server) writeDetailsError(w http.ResponseWriter, err error) {
	status, code, message := s.classifyDetailsError(err)
	writeError(w, status, code, message)
}

func (s *Server) classifyDetailsError(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInfoHash):
		return http.StatusBadRequest, "invalid_request", "invalid info hash"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found", "Torrent not found"
	}
	if upstream, ok := domain.AsUpstreamError(err); ok {
		s.logger.Warn("detail lookup failed upstream", slog.String("error", err.Error()))
		return upstream.HTTPStatus(), "upstream_error", "torrent index request failed"
	}
	s.logger.Error("detail lookup failed", slog.String("error", err.Error()))
	return http.StatusInternalServerError, "internal_error", "internal server error"
}

// publicBaseURL prefers a configured public host; otherwise it trusts the
// reverse proxy headers and finally the request's own Host.
func (s *Server) publicBaseURL(r *http.Request) string {
	if s.publicHost != "" && s.publicHost != defaultPublicHost {
		return s.publicProtocol + "://" + s.publicHost
	}
	protocol := firstHeaderValue(r, "X-Forwarded-Proto")
	if protocol == "" {
		protocol = "http"
	}
	host := firstHeaderValue(r, "X-Forwarded-Host")
	if host == "" {
		host = strings.TrimSpace(r.Host)
	}
	if host == "" {
		host = defaultPublicHost
	}
	return protocol + "://" + host
}

func firstHeaderValue(r *http.Request, name string) string {
	value := r.Header.Get(name)
	if idx := strings.IndexByte(value, ','); idx >= 0 {
		value = value[:idx]
	}
	return strings.TrimSpace(value)
}

func upstreamStatus(err error) int {
	if upstream, ok := domain.AsUpstreamError(err); ok {
		return upstream.HTTPStatus()
	}
	return http.StatusBadGateway
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func parseNonNegativeInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
