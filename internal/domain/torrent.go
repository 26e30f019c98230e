package domain

import (
	"strconv"
	"strings"
	"time"
)

type Category string

const (
	CategoryMovie        Category = "movie"
	CategoryTV           Category = "tv"
	CategoryPCGames      Category = "pc-games"
	CategoryConsoleGames Category = "console-games"
	CategoryPC0Day       Category = "pc-0day"
	CategoryPC           Category = "pc"
	CategoryOther        Category = "other"
)

func (c Category) IsVideo() bool {
	return c == CategoryMovie || c == CategoryTV
}

func (c Category) IsGame() bool {
	return c == CategoryPCGames || c == CategoryConsoleGames
}

func (c Category) IsSoftware() bool {
	return c == CategoryPC0Day || c == CategoryPC
}

// ParseCategory accepts category names as produced by Torznab feeds and the
// GraphQL content types of the index. Numeric Torznab ids map to their parent
// families; anything unrecognised is CategoryOther.
func ParseCategory(raw string) Category {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "movie", "movies":
		return CategoryMovie
	case "tv", "tv_show", "tvshow", "tv show", "series":
		return CategoryTV
	case "pc-games", "pc/games", "game", "games":
		return CategoryPCGames
	case "console-games", "console", "console/games":
		return CategoryConsoleGames
	case "pc-0day", "pc/0day":
		return CategoryPC0Day
	case "pc", "software", "pc/software":
		return CategoryPC
	case "":
		return CategoryOther
	}

	id, err := strconv.Atoi(value)
	if err != nil {
		return CategoryOther
	}
	switch {
	case id == 4010:
		return CategoryPC0Day
	case id == 4050:
		return CategoryPCGames
	case id >= 1000 && id < 2000:
		return CategoryConsoleGames
	case id >= 2000 && id < 3000:
		return CategoryMovie
	case id >= 4000 && id < 5000:
		return CategoryPC
	case id >= 5000 && id < 6000:
		return CategoryTV
	default:
		return CategoryOther
	}
}

// PickCategory returns the first specific category among candidates.
func PickCategory(candidates ...string) Category {
	for _, candidate := range candidates {
		if category := ParseCategory(candidate); category != CategoryOther {
			return category
		}
	}
	return CategoryOther
}

type TorrentSummary struct {
	InfoHash    string            `json:"infoHash"`
	Title       string            `json:"title"`
	Category    Category          `json:"category"`
	Size        int64             `json:"size"`
	Seeders     int               `json:"seeders"`
	Leechers    int               `json:"leechers"`
	PublishedAt *time.Time        `json:"publishedAt,omitempty"`
	MagnetURL   string            `json:"magnetUrl,omitempty"`
	FilesCount  int               `json:"filesCount,omitempty"`
	Attrs       map[string]string `json:"attrs,omitempty"`
}

type FileEntry struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
	Size  int64  `json:"size"`
}

type FileTypeBucket struct {
	Type  string      `json:"type"`
	Icon  string      `json:"icon"`
	Count int         `json:"count"`
	Size  int64       `json:"size"`
	Files []FileEntry `json:"files"`
}

type FileStats struct {
	ByType      map[string]*FileTypeBucket `json:"byType"`
	TotalSize   int64                      `json:"totalSize"`
	LargestFile *FileEntry                 `json:"largestFile"`
	FileCount   int                        `json:"fileCount"`
}

type QualityTier string

const (
	QualitySD  QualityTier = "SD"
	QualityHD  QualityTier = "HD"
	QualityFHD QualityTier = "FHD"
	Quality4K  QualityTier = "4K"
)

// Score is the ordinal used by recommendation ranking.
func (q QualityTier) Score() int {
	switch q {
	case QualityHD:
		return 2
	case QualityFHD:
		return 3
	case Quality4K:
		return 4
	default:
		return 1
	}
}

type QualityInfo struct {
	Quality QualityTier `json:"quality"`
	Label   string      `json:"label"`
	Color   string      `json:"color"`
}

type RelatedItem struct {
	InfoHash    string       `json:"infoHash"`
	Name        string       `json:"name"`
	Size        int64        `json:"size"`
	PublishedAt *time.Time   `json:"publishedAt,omitempty"`
	Seeders     int          `json:"seeders"`
	Leechers    int          `json:"leechers"`
	MatchScore  int          `json:"matchScore"`
	QualityInfo *QualityInfo `json:"qualityInfo,omitempty"`
	Score       float64      `json:"score"`
}

type ImageLink struct {
	Type   string `json:"type"`
	URL    string `json:"url"`
	Source string `json:"source"`
}

type ReleaseInfo struct {
	Type       string   `json:"type,omitempty"`
	Title      string   `json:"title,omitempty"`
	Year       int      `json:"year,omitempty"`
	Season     int      `json:"season,omitempty"`
	Episode    int      `json:"episode,omitempty"`
	Resolution string   `json:"resolution,omitempty"`
	Source     string   `json:"source,omitempty"`
	Codec      []string `json:"codec,omitempty"`
	Audio      []string `json:"audio,omitempty"`
	HDR        []string `json:"hdr,omitempty"`
	Group      string   `json:"group,omitempty"`
}

type EnrichedDetail struct {
	TorrentSummary
	Quality           QualityInfo   `json:"qualityInfo"`
	Release           *ReleaseInfo  `json:"release,omitempty"`
	Files             []FileEntry   `json:"files"`
	HasFilesInfo      bool          `json:"hasFilesInfo"`
	FileStats         *FileStats    `json:"fileStats,omitempty"`
	ImageFiles        []FileEntry   `json:"imageFiles"`
	AlternativeImages []ImageLink   `json:"alternativeImages"`
	Keywords          []string      `json:"keywords,omitempty"`
	RelatedContent    []RelatedItem `json:"relatedContent,omitempty"`
	TMDB              *TMDBMovie    `json:"tmdb,omitempty"`
	Douban            *DoubanRecord `json:"douban,omitempty"`
}

type SearchSortField string

const (
	SortRelevance   SearchSortField = "relevance"
	SortPublishedAt SearchSortField = "published_at"
	SortUpdatedAt   SearchSortField = "updated_at"
	SortSize        SearchSortField = "size"
	SortFilesCount  SearchSortField = "files_count"
	SortSeeders     SearchSortField = "seeders"
	SortLeechers    SearchSortField = "leechers"
	SortName        SearchSortField = "name"
	SortInfoHash    SearchSortField = "info_hash"
)

// NormalizeSortField falls back to relevance for anything outside the index's
// supported ordering fields.
func NormalizeSortField(raw string) SearchSortField {
	switch field := SearchSortField(strings.ToLower(strings.TrimSpace(raw))); field {
	case SortRelevance, SortPublishedAt, SortUpdatedAt, SortSize, SortFilesCount,
		SortSeeders, SortLeechers, SortName, SortInfoHash:
		return field
	default:
		return SortRelevance
	}
}

type SearchRequest struct {
	Query      string
	Limit      int
	Offset     int
	Sort       SearchSortField
	Descending *bool
}

type SearchPage struct {
	Items       []TorrentSummary `json:"items"`
	Total       int              `json:"total"`
	HasNextPage *bool            `json:"hasNextPage"`
}
