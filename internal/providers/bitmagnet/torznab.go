package bitmagnet

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"auroramag/detailservice/internal/domain"
)

type torznabResponse struct {
	Channel torznabChannel `xml:"channel"`
}

type torznabChannel struct {
	Items []torznabItem `xml:"item"`
}

type torznabItem struct {
	Title     string           `xml:"title"`
	Guid      string           `xml:"guid"`
	Link      string           `xml:"link"`
	Comments  string           `xml:"comments"`
	PubDate   string           `xml:"pubDate"`
	Size      string           `xml:"size"`
	Category  []string         `xml:"category"`
	Enclosure torznabEnclosure `xml:"enclosure"`
	Attrs     []torznabAttr    `xml:"attr"`
}

type torznabEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
}

type torznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// TorznabResult is a raw upstream Torznab answer.
type TorznabResult struct {
	ContentType string
	Body        []byte
}

// Torznab forwards params to the upstream Torznab endpoint unchanged.
func (c *Client) Torznab(ctx context.Context, params url.Values) (TorznabResult, error) {
	rawURL := c.baseURL + "/torznab/"
	if encoded := params.Encode(); encoded != "" {
		rawURL += "?" + encoded
	}
	resp, err := c.do(ctx, "torznab", http.MethodGet, rawURL, nil, "")
	if err != nil {
		return TorznabResult{}, err
	}
	contentType := resp.contentType
	if contentType == "" {
		contentType = "application/xml"
	}
	return TorznabResult{ContentType: contentType, Body: resp.body}, nil
}

func (c *Client) torznabSearch(ctx context.Context, query string, limit int) ([]torznabItem, error) {
	params := url.Values{}
	params.Set("t", "search")
	params.Set("q", query)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	result, err := c.Torznab(ctx, params)
	if err != nil {
		return nil, err
	}
	items, err := parseTorznabResponse(result.Body)
	if err != nil {
		return nil, &domain.UpstreamError{Err: err}
	}
	return items, nil
}

// FetchSummary looks the torrent up by searching the index for its hash. Only
// an item carrying exactly that hash counts as a match.
func (c *Client) FetchSummary(ctx context.Context, infoHash string) (domain.TorrentSummary, error) {
	items, err := c.torznabSearch(ctx, infoHash, 0)
	if err != nil {
		return domain.TorrentSummary{}, err
	}
	if len(items) == 0 {
		return domain.TorrentSummary{}, domain.ErrNotFound
	}

	wanted := strings.ToLower(strings.TrimSpace(infoHash))
	for _, item := range items {
		if itemInfoHash(item) != wanted {
			continue
		}
		summary := c.itemToSummary(item)
		summary.InfoHash = wanted
		if summary.MagnetURL == "" {
			summary.MagnetURL = domain.BuildMagnet(summary.InfoHash, summary.Title, c.trackers)
		}
		return summary, nil
	}
	// A hash search can match names or descriptions of other torrents.
	return domain.TorrentSummary{}, domain.ErrNotFound
}

// Search runs a free-text Torznab search and maps hits to related items.
func (c *Client) Search(ctx context.Context, term string, limit int) ([]domain.RelatedItem, error) {
	items, err := c.torznabSearch(ctx, term, limit)
	if err != nil {
		return nil, err
	}
	related := make([]domain.RelatedItem, 0, len(items))
	for _, item := range items {
		summary := c.itemToSummary(item)
		if summary.InfoHash == "" {
			continue
		}
		related = append(related, domain.RelatedItem{
			InfoHash:    summary.InfoHash,
			Name:        summary.Title,
			Size:        summary.Size,
			PublishedAt: summary.PublishedAt,
			Seeders:     summary.Seeders,
			Leechers:    summary.Leechers,
		})
	}
	return related, nil
}

func (c *Client) itemToSummary(item torznabItem) domain.TorrentSummary {
	attrs := itemAttrs(item)

	size := parseI64(item.Size)
	if size <= 0 {
		size = parseI64(attrs["size"])
	}
	if size <= 0 && item.Enclosure.Length > 0 {
		size = item.Enclosure.Length
	}

	leechers := parseInt(attrs["leechers"])
	if _, ok := attrs["leechers"]; !ok {
		leechers = parseInt(attrs["peers"])
	}

	magnet := firstMagnet(item.Enclosure.URL, item.Link, attrs["magneturl"], item.Guid)

	categories := append([]string(nil), item.Category...)
	categories = append(categories, attrs["category"])

	return domain.TorrentSummary{
		InfoHash:    itemInfoHash(item),
		Title:       strings.TrimSpace(item.Title),
		Category:    domain.PickCategory(categories...),
		Size:        size,
		Seeders:     parseInt(attrs["seeders"]),
		Leechers:    leechers,
		PublishedAt: parsePubDate(item.PubDate),
		MagnetURL:   magnet,
		FilesCount:  parseInt(attrs["files"]),
		Attrs:       attrs,
	}
}

func itemAttrs(item torznabItem) map[string]string {
	attrs := make(map[string]string, len(item.Attrs))
	for _, attr := range item.Attrs {
		key := strings.ToLower(strings.TrimSpace(attr.Name))
		if key == "" {
			continue
		}
		if _, exists := attrs[key]; exists {
			continue
		}
		attrs[key] = strings.TrimSpace(attr.Value)
	}
	return attrs
}

// itemInfoHash prefers the infohash attribute, then a hash-shaped guid, then
// the magnet link.
func itemInfoHash(item torznabItem) string {
	for _, attr := range item.Attrs {
		if strings.EqualFold(strings.TrimSpace(attr.Name), "infohash") {
			if hash, err := domain.ParseInfoHash(attr.Value); err == nil {
				return hash
			}
		}
	}
	if hash, err := domain.ParseInfoHash(item.Guid); err == nil {
		return hash
	}
	for _, candidate := range []string{item.Enclosure.URL, item.Link, item.Guid} {
		if hash := domain.InfoHashFromMagnet(candidate); hash != "" {
			return hash
		}
	}
	return ""
}

func parseTorznabResponse(payload []byte) ([]torznabItem, error) {
	var rss torznabResponse
	if err := xml.Unmarshal(payload, &rss); err != nil {
		return nil, fmt.Errorf("invalid torznab XML: %w", err)
	}
	return rss.Channel.Items, nil
}

func firstMagnet(candidates ...string) string {
	for _, candidate := range candidates {
		value := strings.TrimSpace(candidate)
		if strings.HasPrefix(strings.ToLower(value), "magnet:?") {
			return value
		}
	}
	return ""
}

func parsePubDate(raw string) *time.Time {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	formats := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		time.RFC3339,
	}
	for _, format := range formats {
		parsed, err := time.Parse(format, value)
		if err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}
	return nil
}

func parseInt(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return 0
	}
	return value
}

func parseI64(raw string) int64 {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}
