package middleware

import (
	"net/http"
	"strings"

	"sharexp/monitoring"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

type ServerMiddleware struct {
	handler http.Handler
}

func (m *ServerMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := PathLabel(r.URL.Path)

	// increment total request counter
	monitoring.HttpRequestsTotal.WithLabelValues(path).Inc()

	// increment number of active connections
	monitoring.ActiveConnections.Inc()
	defer monitoring.ActiveConnections.Dec()

	// begin timer to measure the requests duration
	timer := prometheus.NewTimer(monitoring.HttpRequestDuration.WithLabelValues(path))
	defer timer.ObserveDuration()

	m.handler.ServeHTTP(w, r)
}

func NewServerMiddleware(handlerToWrap http.Handler) *ServerMiddleware {
	return &ServerMiddleware{handlerToWrap}
}

// PathLabel collapses identifier segments so every route yields one label.
func PathLabel(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if _, err := uuid.Parse(segment); err == nil {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}
