package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr           string
	RequestTimeout     time.Duration
	LogLevel           string
	LogFormat          string
	LogFile            string
	UserAgent          string
	BitmagnetURL       string
	PublicHost         string
	PublicProtocol     string
	RedisURL           string
	TMDBAPIKey         string
	TMDBBaseURL        string
	TMDBLanguage       string
	TMDBFallback       string
	TMDBCacheTTL       time.Duration
	GraphQLCacheTTL    time.Duration
	DetailsCacheTTL    time.Duration
	DoubanCacheTTL     time.Duration
	CacheMaxSize       int
	DoubanEnabled      bool
	DoubanRPS          float64
	MagnetTrackers     []string
	CORSAllowedOrigins []string
	OTLPEndpoint       string
}

var defaults = map[string]any{
	"HTTP_ADDR":              ":3337",
	"REQUEST_TIMEOUT":        8,
	"LOG_LEVEL":              "info",
	"LOG_FORMAT":             "text",
	"LOG_FILE":               "",
	"USER_AGENT":             "auroramag-detail/1.0",
	"BITMAGNET_URL":          "http://bitmagnet:3333",
	"PUBLIC_HOST":            "",
	"PUBLIC_PROTOCOL":        "http",
	"REDIS_URL":              "",
	"TMDB_API_KEY":           "",
	"TMDB_BASE_URL":          "https://api.themoviedb.org/3",
	"TMDB_LANGUAGE":          "zh-CN",
	"TMDB_FALLBACK_LANGUAGE": "en-US",
	"TMDB_CACHE_TTL":         86400,
	"GRAPHQL_CACHE_TTL":      3600,
	"DETAILS_CACHE_TTL":      7200,
	"DOUBAN_CACHE_TTL":       604800,
	"CACHE_MAXSIZE":          256,
	"DOUBAN_ENABLED":         true,
	"DOUBAN_RPS":             1.0,
	"MAGNET_TRACKERS":        "",
	"CORS_ALLOWED_ORIGINS":   "*",

	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
}

// LoadConfig reads defaults, then ./.env when present, then the process
// environment.
func LoadConfig() Config {
	cfg, _ := LoadConfigFile(".env")
	return cfg
}

// LoadConfigFile is LoadConfig with an explicit dotenv path. An empty path or
// a missing file skips the file layer. A file that exists but cannot be parsed
// is reported, and the returned Config still carries defaults and environment.
func LoadConfigFile(envFile string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var fileErr error
	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			if _, statErr := os.Stat(envFile); statErr == nil {
				fileErr = fmt.Errorf("read %s: %w", envFile, err)
			}
		}
	}

	cfg := Config{
		HTTPAddr:           getString(v, "HTTP_ADDR"),
		RequestTimeout:     seconds(v, "REQUEST_TIMEOUT"),
		LogLevel:           strings.ToLower(getString(v, "LOG_LEVEL")),
		LogFormat:          strings.ToLower(getString(v, "LOG_FORMAT")),
		LogFile:            getString(v, "LOG_FILE"),
		UserAgent:          getString(v, "USER_AGENT"),
		BitmagnetURL:       strings.TrimRight(getString(v, "BITMAGNET_URL"), "/"),
		PublicHost:         getString(v, "PUBLIC_HOST"),
		PublicProtocol:     strings.ToLower(getString(v, "PUBLIC_PROTOCOL")),
		RedisURL:           getString(v, "REDIS_URL"),
		TMDBAPIKey:         getString(v, "TMDB_API_KEY"),
		TMDBBaseURL:        getString(v, "TMDB_BASE_URL"),
		TMDBLanguage:       getString(v, "TMDB_LANGUAGE"),
		TMDBFallback:       getString(v, "TMDB_FALLBACK_LANGUAGE"),
		TMDBCacheTTL:       seconds(v, "TMDB_CACHE_TTL"),
		GraphQLCacheTTL:    seconds(v, "GRAPHQL_CACHE_TTL"),
		DetailsCacheTTL:    seconds(v, "DETAILS_CACHE_TTL"),
		DoubanCacheTTL:     seconds(v, "DOUBAN_CACHE_TTL"),
		CacheMaxSize:       positiveInt(v, "CACHE_MAXSIZE"),
		DoubanEnabled:      v.GetBool("DOUBAN_ENABLED"),
		DoubanRPS:          v.GetFloat64("DOUBAN_RPS"),
		MagnetTrackers:     splitList(getString(v, "MAGNET_TRACKERS")),
		CORSAllowedOrigins: splitList(getString(v, "CORS_ALLOWED_ORIGINS")),
		OTLPEndpoint:       getString(v, "OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	if cfg.DoubanRPS <= 0 {
		cfg.DoubanRPS = defaults["DOUBAN_RPS"].(float64)
	}
	if cfg.PublicProtocol != "https" {
		cfg.PublicProtocol = "http"
	}
	return cfg, fileErr
}

func getString(v *viper.Viper, key string) string {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		if fallback, ok := defaults[key].(string); ok {
			return fallback
		}
	}
	return value
}

// positiveInt falls back to the default for zero, negative or malformed
// values.
func positiveInt(v *viper.Viper, key string) int {
	value := v.GetInt(key)
	if value <= 0 {
		return defaults[key].(int)
	}
	return value
}

func seconds(v *viper.Viper, key string) time.Duration {
	return time.Duration(positiveInt(v, key)) * time.Second
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
