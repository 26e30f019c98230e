package bitmagnet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"auroramag/detailservice/internal/cache"
	"auroramag/detailservice/internal/domain"
	"auroramag/detailservice/internal/metrics"
)

const (
	defaultBaseURL    = "http://bitmagnet:3333"
	defaultUserAgent  = "auroramag-detail/2.0"
	defaultAttempts   = 3
	defaultRetryDelay = 300 * time.Millisecond

	maxErrorBody   = 2048
	maxPayloadSize = 16 * 1024 * 1024
)

var defaultTrackers = []string{
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://open.stealth.si:80/announce",
	"udp://tracker.torrent.eu.org:451/announce",
}

type Config struct {
	BaseURL    string
	UserAgent  string
	Client     *http.Client
	Trackers   []string
	Attempts   uint
	RetryDelay time.Duration
	// GraphQLCache stores successful GraphQL responses. Nil disables caching.
	GraphQLCache *cache.Cache
	Logger       *slog.Logger
}

// Client talks to a bitmagnet instance over its Torznab and GraphQL
// endpoints.
type Client struct {
	baseURL    string
	userAgent  string
	client     *http.Client
	trackers   []string
	attempts   uint
	retryDelay time.Duration
	graphql    *cache.Cache
	logger     *slog.Logger
}

func New(cfg Config) *Client {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 8 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	trackers := cfg.Trackers
	if len(trackers) == 0 {
		trackers = append([]string(nil), defaultTrackers...)
	}
	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = defaultAttempts
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		userAgent:  userAgent,
		client:     client,
		trackers:   trackers,
		attempts:   attempts,
		retryDelay: retryDelay,
		graphql:    cfg.GraphQLCache,
		logger:     logger,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type response struct {
	status      int
	contentType string
	body        []byte
}

// do sends one request and retries transient transport failures and 5xx
// answers. Any non-2xx answer that survives the retries becomes an
// UpstreamError.
func (c *Client) do(ctx context.Context, endpoint, method, rawURL string, body []byte, contentType string) (response, error) {
	started := time.Now()
	var out response

	err := retry.Do(
		func() error {
			var reader io.Reader
			if body != nil {
				reader = bytes.NewReader(body)
			}
			req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("User-Agent", c.userAgent)
			if contentType != "" {
				req.Header.Set("Content-Type", contentType)
			}

			resp, err := c.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
				return &domain.UpstreamError{
					Status: resp.StatusCode,
					Err:    fmt.Errorf("bitmagnet %s HTTP %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(snippet))),
				}
			}

			payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadSize))
			if err != nil {
				return err
			}
			out = response{status: resp.StatusCode, contentType: resp.Header.Get("Content-Type"), body: payload}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(2*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransientError),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying bitmagnet request",
				slog.String("endpoint", endpoint),
				slog.Uint64("attempt", uint64(n+1)),
				slog.String("error", err.Error()),
			)
		}),
	)

	metrics.BackendRequestDuration.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
	metrics.BackendRequestsTotal.WithLabelValues(endpoint, statusLabel(err)).Inc()

	if err != nil {
		if _, ok := domain.AsUpstreamError(err); ok {
			return response{}, err
		}
		return response{}, &domain.UpstreamError{Err: fmt.Errorf("bitmagnet %s: %w", endpoint, err)}
	}
	return out, nil
}

// forward sends a single request and returns the answer as-is, including
// error statuses.
func (c *Client) forward(ctx context.Context, endpoint, method, rawURL string, body []byte, contentType string) (response, error) {
	started := time.Now()
	defer func() {
		metrics.BackendRequestDuration.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return response{}, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return response{}, &domain.UpstreamError{Err: fmt.Errorf("bitmagnet %s: %w", endpoint, err)}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadSize))
	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return response{}, &domain.UpstreamError{Err: fmt.Errorf("bitmagnet %s: %w", endpoint, err)}
	}
	metrics.BackendRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	return response{status: resp.StatusCode, contentType: resp.Header.Get("Content-Type"), body: payload}, nil
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if upstream, ok := domain.AsUpstreamError(err); ok && upstream.Status > 0 {
		return strconv.Itoa(upstream.Status)
	}
	return "error"
}

// isTransientError reports failures that may succeed on retry: timeouts,
// connection resets, EOF and upstream 5xx answers.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if upstream, ok := domain.AsUpstreamError(err); ok {
		return upstream.Status >= 500 || upstream.Status == http.StatusTooManyRequests
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "eof")
}
