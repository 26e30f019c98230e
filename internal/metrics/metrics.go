package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "detail",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "detail",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	BackendRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "detail",
		Name:      "backend_requests_total",
		Help:      "Total requests to the torrent index by endpoint and result status.",
	}, []string{"endpoint", "status"})

	BackendRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "detail",
		Name:      "backend_request_duration_seconds",
		Help:      "Torrent index request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	MetadataRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "detail",
		Name:      "metadata_requests_total",
		Help:      "Total requests to third-party metadata providers by provider and result status.",
	}, []string{"provider", "status"})

	RelatedSearchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "detail",
		Name:      "related_searches_total",
		Help:      "Related-content term searches by result status.",
	}, []string{"status"})

	RelatedItemsReturned = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "detail",
		Name:      "related_items_returned",
		Help:      "Number of related items attached to a detail record.",
		Buckets:   []float64{0, 1, 2, 4, 6, 8, 10, 12},
	})

	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "detail",
		Name:      "cache_hits_total",
		Help:      "Total number of cache hits by cache name.",
	}, []string{"cache"})

	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "detail",
		Name:      "cache_misses_total",
		Help:      "Total number of cache misses by cache name.",
	}, []string{"cache"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		BackendRequestsTotal,
		BackendRequestDuration,
		MetadataRequestsTotal,
		RelatedSearchesTotal,
		RelatedItemsReturned,
		CacheHitsTotal,
		CacheMissesTotal,
	)
}
