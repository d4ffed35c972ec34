// Package metrics provides Prometheus metrics for the blog backend.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "blog"

var (
	// CMSRequestsTotal counts GraphQL calls by operation and outcome.
	CMSRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cms_requests_total",
			Help:      "Total number of CMS GraphQL requests",
		},
		[]string{"operation", "outcome"},
	)

	// CMSRequestDuration measures GraphQL call latency.
	CMSRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cms_request_duration_seconds",
			Help:      "Duration of CMS GraphQL requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// PaginationAnomalies counts pagination stops caused by upstream misbehaviour.
	PaginationAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pagination_anomalies_total",
			Help:      "Pagination drains stopped early because of cursor anomalies",
		},
		[]string{"kind"},
	)

	// SearchIndexBuilds counts search index rebuilds.
	SearchIndexBuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_index_builds_total",
			Help:      "Total number of search index builds",
		},
		[]string{"outcome"},
	)

	// SearchIndexBuildDuration measures how long a full corpus drain and index build take.
	SearchIndexBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_index_build_duration_seconds",
			Help:      "Duration of search index builds in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// SearchIndexPosts is the size of the current search corpus.
	SearchIndexPosts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "search_index_posts",
			Help:      "Number of posts in the cached search index",
		},
	)

	// ImageProxyRequests counts image proxy requests by outcome.
	ImageProxyRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_proxy_requests_total",
			Help:      "Total number of image proxy requests",
		},
		[]string{"outcome"},
	)

	// HTTPRequestsTotal counts served HTTP requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)
)

// RecordCMSRequest records one GraphQL round trip.
func RecordCMSRequest(operation, outcome string, elapsed time.Duration) {
	CMSRequestsTotal.WithLabelValues(operation, outcome).Inc()
	CMSRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordAnomaly records a pagination anomaly.
func RecordAnomaly(kind string) {
	PaginationAnomalies.WithLabelValues(kind).Inc()
}

// RecordIndexBuild records a search index build.
func RecordIndexBuild(outcome string, elapsed time.Duration, posts int) {
	SearchIndexBuilds.WithLabelValues(outcome).Inc()
	SearchIndexBuildDuration.Observe(elapsed.Seconds())
	if outcome == "success" {
		SearchIndexPosts.Set(float64(posts))
	}
}

// RecordImage records an image proxy outcome.
func RecordImage(outcome string) {
	ImageProxyRequests.WithLabelValues(outcome).Inc()
}

// RecordHTTP records a served request.
func RecordHTTP(method, route string, status int) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
