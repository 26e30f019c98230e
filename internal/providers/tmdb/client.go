package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"auroramag/detailservice/internal/cache"
	"auroramag/detailservice/internal/domain"
	"auroramag/detailservice/internal/metrics"
)

const (
	defaultBaseURL          = "https://api.themoviedb.org/3"
	defaultLanguage         = "zh-CN"
	defaultFallbackLanguage = "en-US"
	movieAppend             = "credits,images,videos"
	mediaAppend             = "images,credits"
)

var (
	ErrDisabled         = errors.New("tmdb is not configured")
	ErrInvalidID        = errors.New("invalid tmdb id")
	ErrUnsupportedMedia = errors.New("unsupported tmdb media type")
)

type Config struct {
	APIKey           string
	BaseURL          string
	Language         string
	FallbackLanguage string
	Client           *http.Client
	// Cache holds decoded answers per id and language. Nil disables caching.
	Cache  *cache.Cache
	Logger *slog.Logger
}

type Client struct {
	apiKey           string
	baseURL          string
	language         string
	fallbackLanguage string
	http             *http.Client
	cache            *cache.Cache
	logger           *slog.Logger
}

// statusPayload is the error body TMDB returns with a non-zero status_code.
type statusPayload struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = defaultLanguage
	}
	fallback := strings.TrimSpace(cfg.FallbackLanguage)
	if fallback == "" {
		fallback = defaultFallbackLanguage
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:           strings.TrimSpace(cfg.APIKey),
		baseURL:          strings.TrimRight(baseURL, "/"),
		language:         language,
		fallbackLanguage: fallback,
		http:             httpClient,
		cache:            cfg.Cache,
		logger:           logger,
	}
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// Movie loads a movie with credits, images and videos in the primary
// language, falling back to the secondary language when that fails.
func (c *Client) Movie(ctx context.Context, id string) (*domain.TMDBMovie, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	id, err := normalizeID(id)
	if err != nil {
		return nil, err
	}

	movie, err := c.movieInLanguage(ctx, id, c.language)
	if err == nil {
		return movie, nil
	}
	if ctx.Err() != nil || c.fallbackLanguage == c.language {
		return nil, err
	}
	c.logger.Debug("tmdb primary language failed, trying fallback",
		slog.String("id", id),
		slog.String("language", c.language),
		slog.String("error", err.Error()),
	)
	return c.movieInLanguage(ctx, id, c.fallbackLanguage)
}

func (c *Client) movieInLanguage(ctx context.Context, id, language string) (*domain.TMDBMovie, error) {
	fetch := func(ctx context.Context) (*domain.TMDBMovie, error) {
		body, err := c.get(ctx, "/movie/"+id, url.Values{
			"language":           {language},
			"append_to_response": {movieAppend},
		})
		if err != nil {
			return nil, err
		}
		var movie domain.TMDBMovie
		if err := json.Unmarshal(body, &movie); err != nil {
			return nil, fmt.Errorf("decode tmdb movie: %w", err)
		}
		return &movie, nil
	}
	if c.cache == nil {
		return fetch(ctx)
	}
	return cache.GetOrCompute(ctx, c.cache, cache.Fingerprint("movie", id, language), fetch)
}

// Details returns the raw TMDB record for a movie or tv id with images and
// credits appended.
func (c *Client) Details(ctx context.Context, mediaType, id, language string) (json.RawMessage, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType != "movie" && mediaType != "tv" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMedia, mediaType)
	}
	id, err := normalizeID(id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(language) == "" {
		language = c.language
	}

	fetch := func(ctx context.Context) (json.RawMessage, error) {
		body, err := c.get(ctx, "/"+mediaType+"/"+id, url.Values{
			"language":           {language},
			"append_to_response": {mediaAppend},
		})
		if err != nil {
			return nil, err
		}
		return json.RawMessage(body), nil
	}
	if c.cache == nil {
		return fetch(ctx)
	}
	return cache.GetOrCompute(ctx, c.cache, cache.Fingerprint(mediaType, id, language), fetch)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	params.Set("api_key", c.apiKey)
	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.MetadataRequestsTotal.WithLabelValues("tmdb", "error").Inc()
		return nil, err
	}
	defer resp.Body.Close()
	metrics.MetadataRequestsTotal.WithLabelValues("tmdb", strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &domain.UpstreamError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("tmdb HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return nil, err
	}

	var status statusPayload
	if json.Unmarshal(body, &status) == nil && status.StatusCode != 0 {
		return nil, fmt.Errorf("tmdb status %d: %s", status.StatusCode, status.StatusMessage)
	}
	return body, nil
}

func normalizeID(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if _, err := strconv.ParseUint(value, 10, 64); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, raw)
	}
	return value, nil
}
