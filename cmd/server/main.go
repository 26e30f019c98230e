package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	apihttp "auroramag/detailservice/internal/api/http"
	"auroramag/detailservice/internal/app"
	"auroramag/detailservice/internal/cache"
	"auroramag/detailservice/internal/detail"
	"auroramag/detailservice/internal/metrics"
	"auroramag/detailservice/internal/providers/bitmagnet"
	"auroramag/detailservice/internal/providers/douban"
	"auroramag/detailservice/internal/providers/tmdb"
	"auroramag/detailservice/internal/telemetry"
)

const serviceName = "auroramag-detail"

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "detail-server",
		Short: "Torznab enrichment proxy and torrent detail pages for bitmagnet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
		SilenceUsage: true,
	}
	rootCmd.Version = Version
	rootCmd.AddCommand(serveCommand(), detailsCommand(), versionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func detailsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "details <infohash>",
		Short: "Assemble one enriched record and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.LoadConfig()
			logger := newLogger(cfg.LogLevel, cfg.LogFormat, "", os.Stderr)
			components := buildComponents(cfg, logger)
			defer components.close()

			ctx, cancel := context.WithTimeout(contextOrBackground(cmd.Context()), 2*cfg.RequestTimeout)
			defer cancel()
			record, err := components.details.Details(ctx, args[0])
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(record)
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

func runServe(parent context.Context) error {
	cfg, cfgErr := app.LoadConfigFile(".env")
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile, os.Stdout)
	slog.SetDefault(logger)
	if cfgErr != nil {
		logger.Warn("dotenv file ignored", slog.String("error", cfgErr.Error()))
	}
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(contextOrBackground(parent), serviceName, Version, cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("version", Version),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("upstream", cfg.BitmagnetURL),
		slog.String("publicHost", cfg.PublicHost),
		slog.String("logLevel", cfg.LogLevel),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.Bool("hasRedis", cfg.RedisURL != ""),
		slog.Bool("hasTMDBKey", cfg.TMDBAPIKey != ""),
		slog.Bool("doubanEnabled", cfg.DoubanEnabled),
		slog.Int("cacheMaxSize", cfg.CacheMaxSize),
	)

	components := buildComponents(cfg, logger)
	defer components.close()

	serverOpts := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithCaches(components.caches),
		apihttp.WithMedia(components.tmdb),
		apihttp.WithPublicURL(cfg.PublicHost, cfg.PublicProtocol),
		apihttp.WithCORSOrigins(cfg.CORSAllowedOrigins),
	}
	if components.redis != nil {
		serverOpts = append(serverOpts, apihttp.WithRedis(components.redis))
	}
	handler := apihttp.NewServer(components.details, components.backend, serverOpts...).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(contextOrBackground(parent), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("detail service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.String("torznab", "http://localhost"+cfg.HTTPAddr+"/torznab/"),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("detail service stopped")
	return nil
}

type components struct {
	details *detail.Service
	backend *bitmagnet.Client
	tmdb    *tmdb.Client
	caches  *cache.Registry
	redis   *cache.RedisBackend
	close   func()
}

// buildComponents wires the clients, caches and assembler shared by the
// serve and details commands.
func buildComponents(cfg app.Config, logger *slog.Logger) components {
	redisClient := connectRedis(cfg.RedisURL, logger)
	newCache := func(name string, ttl time.Duration) *cache.Cache {
		opts := []cache.Option{
			cache.WithMaxEntries(cfg.CacheMaxSize),
			cache.WithComputeTimeout(3 * cfg.RequestTimeout),
			cache.WithLogger(logger),
		}
		if redisClient != nil {
			opts = append(opts, cache.WithBackend(cache.NewRedisBackend(redisClient, name)))
		}
		return cache.New(name, ttl, opts...)
	}
	tmdbCache := newCache(cache.NameTMDB, cfg.TMDBCacheTTL)
	graphqlCache := newCache(cache.NameGraphQL, cfg.GraphQLCacheTTL)
	detailsCache := newCache(cache.NameDetails, cfg.DetailsCacheTTL)
	doubanCache := newCache(cache.NameDouban, cfg.DoubanCacheTTL)

	backend := bitmagnet.New(bitmagnet.Config{
		BaseURL:      cfg.BitmagnetURL,
		UserAgent:    cfg.UserAgent,
		Client:       newHTTPClient(cfg.RequestTimeout),
		Trackers:     cfg.MagnetTrackers,
		GraphQLCache: graphqlCache,
		Logger:       logger,
	})
	tmdbClient := tmdb.NewClient(tmdb.Config{
		APIKey:           cfg.TMDBAPIKey,
		BaseURL:          cfg.TMDBBaseURL,
		Language:         cfg.TMDBLanguage,
		FallbackLanguage: cfg.TMDBFallback,
		Client:           newHTTPClient(10 * time.Second),
		Cache:            tmdbCache,
		Logger:           logger,
	})
	if !tmdbClient.Enabled() {
		logger.Info("tmdb api key not configured, movie metadata disabled")
	}

	detailOpts := []detail.Option{
		detail.WithMovieMetadata(tmdbClient),
		detail.WithCache(detailsCache),
		detail.WithLogger(logger),
		detail.WithRelatedTimeout(cfg.RequestTimeout),
	}
	if cfg.DoubanEnabled {
		detailOpts = append(detailOpts, detail.WithReviewAggregator(douban.NewClient(douban.Config{
			UserAgent:         cfg.UserAgent,
			Client:            newHTTPClient(5 * time.Second),
			RequestsPerSecond: cfg.DoubanRPS,
			Cache:             doubanCache,
			Logger:            logger,
		})))
	}

	built := components{
		details: detail.NewService(backend, detailOpts...),
		backend: backend,
		tmdb:    tmdbClient,
		caches:  cache.NewRegistry(tmdbCache, graphqlCache, detailsCache, doubanCache),
		close:   func() {},
	}
	if redisClient != nil {
		built.redis = cache.NewRedisBackend(redisClient, "health")
		built.close = func() { _ = redisClient.Close() }
	}
	return built
}

func connectRedis(rawURL string, logger *slog.Logger) *redis.Client {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory caches only", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory caches only", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", opts.Addr))
	return client
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// newLogger writes to out and, when file is set, to a size-rotated log file.
func newLogger(levelRaw, formatRaw, file string, out io.Writer) *slog.Logger {
	if file = strings.TrimSpace(file); file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "log directory %s unavailable: %v\n", filepath.Dir(file), err)
		} else {
			out = io.MultiWriter(out, &lumberjack.Logger{
				Filename:   file,
				MaxSize:    50,
				MaxBackups: 3,
				MaxAge:     28,
				Compress:   true,
			})
		}
	}

	options := &slog.HandlerOptions{Level: parseLogLevel(levelRaw)}
	if strings.ToLower(strings.TrimSpace(formatRaw)) == "json" {
		return slog.New(slog.NewJSONHandler(out, options))
	}
	return slog.New(slog.NewTextHandler(out, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
