package bitmagnet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"auroramag/detailservice/internal/cache"
	"auroramag/detailservice/internal/domain"
)

const (
	filesBatchSize = 200
	// maxFilesPages caps a file listing at 10000 entries.
	maxFilesPages = 50
)

const filesQuery = `query TorrentFiles($infoHash: Hash20!, $limit: Int!, $offset: Int!) {
  torrent {
    files(input: { infoHashes: [$infoHash], limit: $limit, offset: $offset }) {
      items {
        index
        path
        size
      }
    }
  }
}`

const searchQuery = `query SearchTorrents($query: String!, $limit: Int!, $offset: Int!, $orderBy: [TorrentContentOrderByInput!]) {
  torrentContent {
    search(input: { queryString: $query, limit: $limit, offset: $offset, orderBy: $orderBy }) {
      totalCount
      hasNextPage
      items {
        infoHash
        title
        seeders
        leechers
        publishedAt
        contentType
        torrent {
          name
          size
          filesCount
          magnetUri
        }
      }
    }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

type filesData struct {
	Torrent struct {
		Files struct {
			Items []domain.FileEntry `json:"items"`
		} `json:"files"`
	} `json:"torrent"`
}

type searchData struct {
	TorrentContent struct {
		Search struct {
			TotalCount  int           `json:"totalCount"`
			HasNextPage *bool         `json:"hasNextPage"`
			Items       []contentNode `json:"items"`
		} `json:"search"`
	} `json:"torrentContent"`
}

type contentNode struct {
	InfoHash    string          `json:"infoHash"`
	Title       string          `json:"title"`
	Seeders     domain.FlexInt  `json:"seeders"`
	Leechers    domain.FlexInt  `json:"leechers"`
	PublishedAt string          `json:"publishedAt"`
	ContentType string          `json:"contentType"`
	Torrent     *torrentSubNode `json:"torrent"`
}

type torrentSubNode struct {
	Name       string         `json:"name"`
	Size       domain.FlexInt `json:"size"`
	FilesCount domain.FlexInt `json:"filesCount"`
	MagnetURI  string         `json:"magnetUri"`
}

var errGraphQL = errors.New("bitmagnet GraphQL returned errors")

// query executes a GraphQL operation and decodes its data block into out.
// Successful answers are cached; answers carrying errors are not.
func (c *Client) query(ctx context.Context, query string, variables map[string]any, out any) error {
	fetch := func(ctx context.Context) (json.RawMessage, error) {
		body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
		if err != nil {
			return nil, err
		}
		resp, err := c.do(ctx, "graphql", http.MethodPost, c.baseURL+"/graphql", body, "application/json")
		if err != nil {
			return nil, err
		}
		var envelope graphQLEnvelope
		if err := json.Unmarshal(resp.body, &envelope); err != nil {
			return nil, &domain.UpstreamError{Err: fmt.Errorf("decode GraphQL response: %w", err)}
		}
		if len(envelope.Errors) > 0 {
			return nil, &domain.UpstreamError{Status: http.StatusBadGateway, Err: fmt.Errorf("%w: %s", errGraphQL, envelope.Errors[0].Message)}
		}
		return envelope.Data, nil
	}

	var (
		data json.RawMessage
		err  error
	)
	if c.graphql != nil {
		data, err = cache.GetOrCompute(ctx, c.graphql, cache.Fingerprint(query, variables), fetch)
	} else {
		data, err = fetch(ctx)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &domain.UpstreamError{Err: fmt.Errorf("decode GraphQL data: %w", err)}
	}
	return nil
}

// FetchFiles pages through the file list in batches of 200 until a short
// page is returned. Paging also stops when the index repeats a page, which
// happens when it ignores the offset, or after maxFilesPages pages.
func (c *Client) FetchFiles(ctx context.Context, infoHash string) ([]domain.FileEntry, error) {
	var files []domain.FileEntry
	var previous *domain.FileEntry
	for pageNo := 0; pageNo < maxFilesPages; pageNo++ {
		var data filesData
		err := c.query(ctx, filesQuery, map[string]any{
			"infoHash": strings.ToLower(infoHash),
			"limit":    filesBatchSize,
			"offset":   pageNo * filesBatchSize,
		}, &data)
		if err != nil {
			return nil, err
		}
		page := data.Torrent.Files.Items
		if len(page) > 0 && previous != nil && page[0] == *previous {
			c.logger.Warn("file listing repeated a page, stopping",
				slog.String("infoHash", infoHash),
				slog.Int("files", len(files)),
			)
			break
		}
		files = append(files, page...)
		if len(page) < filesBatchSize {
			break
		}
		first := page[0]
		previous = &first
	}
	return files, nil
}

// SearchTorrents runs a full-text search ordered by a whitelisted field.
// Relevance sorts ascending unless told otherwise; every other field sorts
// descending.
func (c *Client) SearchTorrents(ctx context.Context, request domain.SearchRequest) (domain.SearchPage, error) {
	field := domain.NormalizeSortField(string(request.Sort))
	descending := field != domain.SortRelevance
	if request.Descending != nil {
		descending = *request.Descending
	}
	limit := request.Limit
	if limit <= 0 {
		limit = 50
	}

	var data searchData
	err := c.query(ctx, searchQuery, map[string]any{
		"query":  request.Query,
		"limit":  limit,
		"offset": max(request.Offset, 0),
		"orderBy": []map[string]any{
			{"field": string(field), "descending": descending},
		},
	}, &data)
	if err != nil {
		return domain.SearchPage{}, err
	}

	block := data.TorrentContent.Search
	items := make([]domain.TorrentSummary, 0, len(block.Items))
	for _, node := range block.Items {
		items = append(items, c.nodeToSummary(node))
	}
	total := block.TotalCount
	if total == 0 {
		total = len(items)
	}
	return domain.SearchPage{Items: items, Total: total, HasNextPage: block.HasNextPage}, nil
}

func (c *Client) nodeToSummary(node contentNode) domain.TorrentSummary {
	summary := domain.TorrentSummary{
		InfoHash: strings.ToLower(strings.TrimSpace(node.InfoHash)),
		Title:    strings.TrimSpace(node.Title),
		Category: domain.ParseCategory(node.ContentType),
		Seeders:  int(node.Seeders),
		Leechers: int(node.Leechers),
	}
	if published, err := time.Parse(time.RFC3339, strings.TrimSpace(node.PublishedAt)); err == nil {
		utc := published.UTC()
		summary.PublishedAt = &utc
	}
	if node.Torrent != nil {
		if summary.Title == "" {
			summary.Title = strings.TrimSpace(node.Torrent.Name)
		}
		summary.Size = int64(node.Torrent.Size)
		summary.FilesCount = int(node.Torrent.FilesCount)
		summary.MagnetURL = strings.TrimSpace(node.Torrent.MagnetURI)
	}
	if summary.MagnetURL == "" && summary.InfoHash != "" {
		summary.MagnetURL = domain.BuildMagnet(summary.InfoHash, summary.Title, c.trackers)
	}
	return summary
}

// GraphQLResult is an upstream GraphQL answer passed through verbatim.
type GraphQLResult struct {
	Status int
	Body   []byte
}

// ProxyGraphQL forwards a GraphQL request body once, without caching, and
// relays the upstream status and body whatever they are.
func (c *Client) ProxyGraphQL(ctx context.Context, body []byte) (GraphQLResult, error) {
	resp, err := c.forward(ctx, "graphql_proxy", http.MethodPost, c.baseURL+"/graphql", body, "application/json")
	if err != nil {
		return GraphQLResult{}, err
	}
	return GraphQLResult{Status: resp.status, Body: resp.body}, nil
}
