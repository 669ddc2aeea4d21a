// Package metrics provides Prometheus metrics for the dataset viewer.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Directory listing metrics
	listingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsv_listings_total",
			Help: "Total number of directory listing requests",
		},
		[]string{"protocol", "mode", "success"},
	)

	listingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dsv_listing_duration_seconds",
			Help:    "Directory listing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"protocol"},
	)

	// Capability detection metrics
	detectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsv_capability_detections_total",
			Help: "Total number of listing capability detections",
		},
		[]string{"outcome"},
	)

	// Content read metrics
	contentBytesRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsv_content_bytes_read_total",
			Help: "Total bytes read from storage backends",
		},
		[]string{"protocol"},
	)

	readDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dsv_read_duration_seconds",
			Help:    "Content read duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"protocol"},
	)

	// Search metrics
	searchWindowsSampled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dsv_search_windows_sampled_total",
			Help: "Total number of sampled search windows fetched",
		},
	)

	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsv_searches_total",
			Help: "Total number of search invocations",
		},
		[]string{"mode", "limited"},
	)

	// Download metrics
	downloadsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dsv_downloads_active",
			Help: "Number of downloads currently in flight",
		},
	)

	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsv_downloads_total",
			Help: "Total number of completed download attempts",
		},
		[]string{"status"},
	)

	// Directory cache metrics
	dirCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsv_dir_cache_requests_total",
			Help: "Directory cache lookups",
		},
		[]string{"hit"},
	)
)

// RecordListing records one directory listing attempt.
func RecordListing(protocol, mode string, duration time.Duration, success bool) {
	listingsTotal.WithLabelValues(protocol, mode, strconv.FormatBool(success)).Inc()
	listingDuration.WithLabelValues(protocol).Observe(duration.Seconds())
}

// RecordDetection records a capability detection outcome
// ("structured", "plain", "failed").
func RecordDetection(outcome string) {
	detectionsTotal.WithLabelValues(outcome).Inc()
}

// RecordRead records bytes read from a backend.
func RecordRead(protocol string, bytes int64, duration time.Duration) {
	contentBytesRead.WithLabelValues(protocol).Add(float64(bytes))
	readDuration.WithLabelValues(protocol).Observe(duration.Seconds())
}

// RecordSearchWindow counts one sampled search window fetch.
func RecordSearchWindow() {
	searchWindowsSampled.Inc()
}

// RecordSearch records a completed search ("loaded" or "full").
func RecordSearch(mode string, limited bool) {
	searchesTotal.WithLabelValues(mode, strconv.FormatBool(limited)).Inc()
}

// DownloadStarted marks a download as in flight.
func DownloadStarted() {
	downloadsActive.Inc()
}

// DownloadFinished records a download completion
// ("completed", "cancelled", "error").
func DownloadFinished(status string) {
	downloadsActive.Dec()
	downloadsTotal.WithLabelValues(status).Inc()
}

// RecordDirCache records a directory cache lookup.
func RecordDirCache(hit bool) {
	dirCacheHits.WithLabelValues(strconv.FormatBool(hit)).Inc()
}
