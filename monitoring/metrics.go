package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "Number of active connections",
		},
	)

	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Total number of dispatched notification events by delivery path",
		},
		[]string{"type", "path"},
	)

	PresenceSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_sessions",
			Help: "Number of live transport sessions joined to a user channel",
		},
	)

	PresenceOnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_online_users",
			Help: "Number of users with at least one live session",
		},
	)

	LivePublishTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "live_publish_timeouts_total",
			Help: "Total number of live publishes no session accepted before the deadline",
		},
	)

	StorageRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_retries_total",
			Help: "Total number of retried storage operations after a transient failure",
		},
		[]string{"operation"},
	)
)
