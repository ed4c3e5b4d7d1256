// Package metrics provides Prometheus instrumentation for the campus client:
// realtime connection state, event and action throughput, REST status codes,
// forced logouts and bus relay results.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RealtimeState is the connection manager state: 0 disconnected,
	// 1 connecting, 2 connected.
	RealtimeState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "campus_realtime_state",
		Help: "Realtime connection state (0=disconnected, 1=connecting, 2=connected)",
	})

	// RealtimeConnects counts successful realtime dials.
	RealtimeConnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campus_realtime_connects_total",
		Help: "Total number of realtime connections opened",
	})

	// RealtimeEvents counts inbound realtime events by type. Undecodable
	// frames are counted as type "invalid".
	RealtimeEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_realtime_events_total",
		Help: "Total number of inbound realtime events",
	}, []string{"type"})

	// RealtimeActions counts outbound actions by action and result, where
	// result is "sent", "dropped" (no connection) or "failed" (write error).
	RealtimeActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_realtime_actions_total",
		Help: "Total number of outbound realtime actions",
	}, []string{"action", "result"})

	// HTTPRequests counts REST calls by method and status code ("error" for
	// transport failures).
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_http_requests_total",
		Help: "Total number of REST requests issued through the gateway",
	}, []string{"method", "code"})

	// ForcedLogouts counts sessions torn down by a 401 response.
	ForcedLogouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campus_session_forced_logouts_total",
		Help: "Total number of sessions cleared because the backend answered 401",
	})

	// RelayEvents counts realtime events forwarded to the message bus by
	// result ("published" or "failed").
	RelayEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_relay_events_total",
		Help: "Total number of realtime events forwarded to NATS",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		RealtimeState,
		RealtimeConnects,
		RealtimeEvents,
		RealtimeActions,
		HTTPRequests,
		ForcedLogouts,
		RelayEvents,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
