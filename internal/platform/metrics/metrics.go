package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the play-session proxy.
type Metrics struct {
	registry                *prometheus.Registry
	requestsTotal           prometheus.Counter
	errorsTotal             prometheus.Counter
	sessionsCreatedTotal    prometheus.Counter
	sessionsExpiredTotal    prometheus.Counter
	proxyFetchesTotal       prometheus.Counter
	playlistsRewrittenTotal prometheus.Counter
	upstreamFailuresTotal   prometheus.Counter
	liveSessions            prometheus.Gauge
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playgate_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playgate_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	sessionsCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playgate_sessions_created_total",
		Help: "Total number of play sessions created",
	})
	sessionsExpiredTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playgate_sessions_expired_total",
		Help: "Total number of play sessions removed by the expiry sweep",
	})
	proxyFetchesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playgate_proxy_fetches_total",
		Help: "Total number of upstream fetches issued by the proxy endpoint",
	})
	playlistsRewrittenTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playgate_playlists_rewritten_total",
		Help: "Total number of playlists rewritten to route through the proxy",
	})
	upstreamFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playgate_upstream_failures_total",
		Help: "Total number of upstream fetches that errored, timed out, or returned non-2xx",
	})
	liveSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playgate_live_sessions",
		Help: "Number of play sessions that have not expired",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		sessionsCreatedTotal,
		sessionsExpiredTotal,
		proxyFetchesTotal,
		playlistsRewrittenTotal,
		upstreamFailuresTotal,
		liveSessions,
	)

	return &Metrics{
		registry:                registry,
		requestsTotal:           requestsTotal,
		errorsTotal:             errorsTotal,
		sessionsCreatedTotal:    sessionsCreatedTotal,
		sessionsExpiredTotal:    sessionsExpiredTotal,
		proxyFetchesTotal:       proxyFetchesTotal,
		playlistsRewrittenTotal: playlistsRewrittenTotal,
		upstreamFailuresTotal:   upstreamFailuresTotal,
		liveSessions:            liveSessions,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncSessionsCreated increments the sessions created counter.
func (m *Metrics) IncSessionsCreated() {
	m.sessionsCreatedTotal.Inc()
}

// AddSessionsExpired adds n to the sessions expired counter.
func (m *Metrics) AddSessionsExpired(n int) {
	m.sessionsExpiredTotal.Add(float64(n))
}

// IncProxyFetches increments the proxy fetch counter.
func (m *Metrics) IncProxyFetches() {
	m.proxyFetchesTotal.Inc()
}

// IncPlaylistsRewritten increments the playlists rewritten counter.
func (m *Metrics) IncPlaylistsRewritten() {
	m.playlistsRewrittenTotal.Inc()
}

// IncUpstreamFailures increments the upstream failure counter.
func (m *Metrics) IncUpstreamFailures() {
	m.upstreamFailuresTotal.Inc()
}

// SetLiveSessions sets the live sessions gauge.
func (m *Metrics) SetLiveSessions(n int) {
	m.liveSessions.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. live sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
