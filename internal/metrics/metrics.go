// Package metrics provides Prometheus metrics for the ingestion pipeline and API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"reviewdash/pkg/middleware"
)

var (
	// ItemsSeen counts provider review items before normalization.
	ItemsSeen = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reviewdash",
			Subsystem: "ingest",
			Name:      "items_seen_total",
			Help:      "Total number of review items returned by providers",
		},
		[]string{"source"},
	)

	ItemsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reviewdash",
			Subsystem: "ingest",
			Name:      "items_rejected_total",
			Help:      "Total number of review items dropped by the normalizer, by reason",
		},
		[]string{"source", "reason"},
	)

	ItemsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reviewdash",
			Subsystem: "ingest",
			Name:      "items_inserted_total",
			Help:      "Total number of reviews newly inserted into the store",
		},
		[]string{"source"},
	)

	// Combinations tracks country/language combinations by outcome (ok, failed).
	Combinations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reviewdash",
			Subsystem: "ingest",
			Name:      "combinations_total",
			Help:      "Total number of attempted country/language combinations by status",
		},
		[]string{"source", "status"},
	)

	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reviewdash",
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Total number of provider page requests by outcome",
		},
		[]string{"source", "outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reviewdash",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reviewdash",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120},
		},
		[]string{"method", "route"},
	)
)

// HTTP returns the API collectors for middleware.Logger.
func HTTP() middleware.HTTPMetrics {
	return middleware.HTTPMetrics{Requests: HTTPRequestsTotal, Duration: HTTPRequestDuration}
}
