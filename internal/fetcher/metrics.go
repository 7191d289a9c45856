package fetcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// fetchRequests tracks HTTP attempts dispatched, including retries.
	fetchRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookmarks_fetch_requests_total",
		Help: "The total number of HTTP fetch attempts sent.",
	})
	// fetchErrors tracks fetches that ended in a terminal failure.
	fetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookmarks_fetch_errors_total",
		Help: "The total number of fetches that failed terminally.",
	})
	// fetchRetries tracks backoff-and-retry cycles.
	fetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookmarks_fetch_retries_total",
		Help: "The total number of fetch retries scheduled.",
	})
	// RateLimitDelay observes time spent waiting on the rolling window.
	RateLimitDelay = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bookmarks_rate_limit_delay_seconds",
		Help:    "Time spent waiting for the rolling-window rate limiter.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)
