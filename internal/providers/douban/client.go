package douban

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
	"golang.org/x/text/width"
	"golang.org/x/time/rate"

	"auroramag/detailservice/internal/cache"
	"auroramag/detailservice/internal/domain"
	"auroramag/detailservice/internal/metrics"
)

const (
	defaultBaseURL   = "https://movie.douban.com"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	maxQueryWords    = 3
	maxCJKRunes      = 10
)

var (
	multiWordPattern  = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)+)\b`)
	leadingArticle    = regexp.MustCompile(`(?i)^(?:The|A|An)\s+`)
	sequelWordPattern = regexp.MustCompile(`(?i)^(?:II|III|IV|V|VI|Revolutions?|Reloaded|Resurrection)$`)
	singleWordPattern = regexp.MustCompile(`\b([A-Z][a-z]{3,})\b`)
	leadingCJKPattern = regexp.MustCompile(`^[\x{4e00}-\x{9fa5}]+`)
	subtitleNoise     = regexp.MustCompile(`[特效字幕]`)
	digitsPattern     = regexp.MustCompile(`\d+`)
)

type Config struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
	// RequestsPerSecond throttles outbound calls. Zero means one per second.
	RequestsPerSecond float64
	Cache             *cache.Cache
	Logger            *slog.Logger
}

// Client looks up movie ratings on Douban's public suggest endpoints.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	cache     *cache.Cache
	logger    *slog.Logger
}

type suggestion struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	SubTitle string `json:"sub_title"`
	Year     string `json:"year"`
	Img      string `json:"img"`
	Type     string `json:"type"`
}

type abstractResponse struct {
	Subject *struct {
		Rate  string         `json:"rate"`
		Votes domain.FlexInt `json:"votes"`
	} `json:"subject"`
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		http:      httpClient,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		cache:     cfg.Cache,
		logger:    logger,
	}
}

// SearchQuery derives a Douban search term from a torrent title: a run of
// capitalised English words without leading article or sequel words, else a
// long single English word, else the leading Chinese run. It returns "" when
// nothing usable is found.
func SearchQuery(title string) string {
	folded := width.Fold.String(title)

	var query string
	if match := multiWordPattern.FindStringSubmatch(folded); match != nil {
		words := strings.Fields(leadingArticle.ReplaceAllString(match[1], ""))
		kept := make([]string, 0, maxQueryWords)
		for _, word := range words {
			if sequelWordPattern.MatchString(word) {
				continue
			}
			kept = append(kept, word)
			if len(kept) == maxQueryWords {
				break
			}
		}
		query = strings.Join(kept, " ")
	}

	if utf8.RuneCountInString(query) < 3 {
		if match := singleWordPattern.FindStringSubmatch(folded); match != nil {
			query = match[1]
		}
	}

	if utf8.RuneCountInString(query) < 3 {
		if match := leadingCJKPattern.FindString(folded); match != "" {
			cjk := digitsPattern.ReplaceAllString(subtitleNoise.ReplaceAllString(match, ""), "")
			if runes := []rune(cjk); len(runes) > maxCJKRunes {
				cjk = string(runes[:maxCJKRunes])
			}
			query = cjk
		}
	}

	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < 2 {
		return ""
	}
	return query
}

// Lookup finds the best Douban match for title and year. A title with no
// match yields nil without error and that answer is cached; transport
// failures are returned and never cached.
func (c *Client) Lookup(ctx context.Context, title, year string) (*domain.DoubanRecord, error) {
	query := SearchQuery(title)
	if query == "" {
		return nil, nil
	}
	year = strings.TrimSpace(year)

	fetch := func(ctx context.Context) (*domain.DoubanRecord, error) {
		return c.lookup(ctx, query, year)
	}
	if c.cache == nil {
		return fetch(ctx)
	}
	return cache.GetOrCompute(ctx, c.cache, cache.Fingerprint(query, year), fetch)
}

func (c *Client) lookup(ctx context.Context, query, year string) (*domain.DoubanRecord, error) {
	var suggestions []suggestion
	if err := c.getJSON(ctx, "/j/subject_suggest?q="+url.QueryEscape(query), c.baseURL, &suggestions); err != nil {
		return nil, err
	}
	if len(suggestions) == 0 {
		return nil, nil
	}

	best := bestMatch(suggestions, query, year)
	subjectURL := c.baseURL + "/subject/" + best.ID + "/"
	record := &domain.DoubanRecord{
		ID:     best.ID,
		Title:  best.Title,
		Year:   best.Year,
		URL:    subjectURL,
		Poster: best.Img,
	}
	if record.Title == "" {
		record.Title = best.SubTitle
	}

	var abstract abstractResponse
	err := c.getJSON(ctx, "/j/subject_abstract?subject_id="+url.QueryEscape(best.ID), subjectURL, &abstract)
	if err != nil {
		c.logger.Debug("douban rating lookup failed",
			slog.String("id", best.ID),
			slog.String("error", err.Error()),
		)
	} else if abstract.Subject != nil {
		record.Rating = abstract.Subject.Rate
		record.RatingCount = int64(abstract.Subject.Votes)
	}
	return record, nil
}

// bestMatch prefers candidates whose year contains year, breaking ties by
// title similarity to the query. Without a usable year the first candidate
// wins.
func bestMatch(candidates []suggestion, query, year string) suggestion {
	if year == "" || len(candidates) == 1 {
		return candidates[0]
	}

	lowerQuery := strings.ToLower(query)
	var (
		best      suggestion
		bestScore float32 = -1
	)
	for _, candidate := range candidates {
		if candidate.Year == "" || !strings.Contains(candidate.Year, year) {
			continue
		}
		score := max(
			edlib.JaccardSimilarity(lowerQuery, strings.ToLower(candidate.Title), 2),
			edlib.JaccardSimilarity(lowerQuery, strings.ToLower(candidate.SubTitle), 2),
		)
		if score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	if bestScore < 0 {
		return candidates[0]
	}
	return best
}

func (c *Client) getJSON(ctx context.Context, path, referer string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", referer)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.MetadataRequestsTotal.WithLabelValues("douban", "error").Inc()
		return err
	}
	defer resp.Body.Close()
	metrics.MetadataRequestsTotal.WithLabelValues("douban", fmt.Sprint(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("douban HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1024*1024)).Decode(out); err != nil {
		return fmt.Errorf("decode douban response: %w", err)
	}
	return nil
}
