// Package metrics holds the Prometheus collectors shared by the client packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransportRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bbs2ch_transport_requests_total",
			Help: "Requests sent to forum hosts, by method and status code.",
		},
		[]string{"method", "status"},
	)

	TransportErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bbs2ch_transport_errors_total",
			Help: "Requests that failed before a response was read, by kind.",
		},
		[]string{"kind"},
	)

	TransportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bbs2ch_transport_request_duration_seconds",
			Help:    "Time from sending a request to having its body decoded.",
			Buckets: prometheus.DefBuckets,
		},
	)

	ThreadSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bbs2ch_thread_syncs_total",
			Help: "Thread synchronizations, by fetch mode and outcome.",
		},
		[]string{"mode", "status"},
	)

	SyncedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bbs2ch_synced_messages_total",
			Help: "Messages written to the store by thread synchronization.",
		},
	)

	Refreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bbs2ch_refreshes_total",
			Help: "Menu and board index refreshes, by kind and outcome.",
		},
		[]string{"kind", "status"},
	)

	Posts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bbs2ch_posts_total",
			Help: "Post submissions, by outcome.",
		},
		[]string{"outcome"},
	)
)
