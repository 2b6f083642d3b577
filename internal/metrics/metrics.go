// Package metrics holds the Prometheus instrumentation shared by the HTTP
// surface and the client sync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teejay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teejay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	CommentsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teejay_comments_served_total",
			Help: "Comment nodes returned by listing endpoints",
		},
		[]string{"level"},
	)

	VotesApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teejay_votes_applied_total",
			Help: "Vote mutations applied",
		},
	)

	CommentsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teejay_comments_created_total",
			Help: "Comments created",
		},
	)

	// Client sync engine counters.
	ThreadRefreshTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teejay_thread_refresh_ticks_total",
			Help: "Background subtree refresh fetches issued",
		},
	)

	ThreadMergesApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teejay_thread_merges_applied_total",
			Help: "Merge passes applied to a comment tree",
		},
	)

	ThreadFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teejay_thread_fetch_failures_total",
			Help: "Client fetch failures by scope",
		},
		[]string{"scope"},
	)
)
