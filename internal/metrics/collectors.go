package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts total HTTP requests with labels for method, path, and status
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pypi_cache_proxy_requests_total",
			Help: "Total number of HTTP requests processed by the proxy",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration measures HTTP request duration in seconds
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pypi_cache_proxy_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ResponseSize measures HTTP response size in bytes
	ResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pypi_cache_proxy_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000, 100000000},
		},
		[]string{"path"},
	)

	// IndexCacheHitsTotal counts project-list/file-list lookups served
	// from an index cache without a refresh, labeled by the index's URL.
	IndexCacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pypi_cache_proxy_index_cache_hits_total",
			Help: "Total number of index cache hits",
		},
		[]string{"index"},
	)

	// IndexCacheMissesTotal counts index lookups that triggered an
	// upstream refresh, labeled by index.
	IndexCacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pypi_cache_proxy_index_cache_misses_total",
			Help: "Total number of index cache misses (upstream refreshes)",
		},
		[]string{"index"},
	)

	// FileCacheHitsTotal counts distribution file requests served from
	// the on-disk file cache.
	FileCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pypi_cache_proxy_file_cache_hits_total",
			Help: "Total number of file cache hits",
		},
	)

	// FileCacheMissesTotal counts distribution file requests that
	// triggered a download from upstream.
	FileCacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pypi_cache_proxy_file_cache_misses_total",
			Help: "Total number of file cache misses (upstream downloads)",
		},
	)

	// FileCacheBytesInUse tracks the current on-disk file cache size in
	// bytes.
	FileCacheBytesInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pypi_cache_proxy_file_cache_bytes_in_use",
			Help: "Current on-disk file cache size in bytes",
		},
	)

	// FileCacheEvictionsTotal counts files evicted from the on-disk
	// cache to make room for a new download.
	FileCacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pypi_cache_proxy_file_cache_evictions_total",
			Help: "Total number of file cache evictions",
		},
	)

	// FileDownloadsInFlight tracks the number of distribution file
	// downloads currently in progress.
	FileDownloadsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pypi_cache_proxy_file_downloads_in_flight",
			Help: "Number of file downloads currently in progress",
		},
	)

	// UpstreamRequestsTotal counts distribution file downloads requested
	// from upstream file hosts, labeled by outcome. Index and file-list
	// fetches are not counted here.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pypi_cache_proxy_upstream_requests_total",
			Help: "Total number of requests made to upstream servers",
		},
		[]string{"outcome"},
	)
)

// RecordRequest records an HTTP request with its method, path, and status
func RecordRequest(method, path, status string) {
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordRequestDuration records the duration of an HTTP request
func RecordRequestDuration(method, path string, duration float64) {
	RequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordResponseSize records the size of an HTTP response
func RecordResponseSize(path string, size float64) {
	ResponseSize.WithLabelValues(path).Observe(size)
}

// RecordIndexCacheHit records an index cache hit for the named index.
func RecordIndexCacheHit(index string) {
	IndexCacheHitsTotal.WithLabelValues(index).Inc()
}

// RecordIndexCacheMiss records an index cache miss for the named index.
func RecordIndexCacheMiss(index string) {
	IndexCacheMissesTotal.WithLabelValues(index).Inc()
}

// RecordFileCacheHit records a distribution file served from cache.
func RecordFileCacheHit() {
	FileCacheHitsTotal.Inc()
}

// RecordFileCacheMiss records a distribution file downloaded from upstream.
func RecordFileCacheMiss() {
	FileCacheMissesTotal.Inc()
}

// SetFileCacheBytesInUse sets the current on-disk file cache size.
func SetFileCacheBytesInUse(bytes float64) {
	FileCacheBytesInUse.Set(bytes)
}

// RecordFileCacheEviction records a file cache eviction.
func RecordFileCacheEviction() {
	FileCacheEvictionsTotal.Inc()
}

// IncrementDownloadsInFlight increments the in-flight download gauge.
func IncrementDownloadsInFlight() {
	FileDownloadsInFlight.Inc()
}

// DecrementDownloadsInFlight decrements the in-flight download gauge.
func DecrementDownloadsInFlight() {
	FileDownloadsInFlight.Dec()
}

// RecordUpstreamRequest records a request made to an upstream server
// with its outcome ("success" or "error").
func RecordUpstreamRequest(outcome string) {
	UpstreamRequestsTotal.WithLabelValues(outcome).Inc()
}
