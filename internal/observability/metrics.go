package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the auth counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	jwtIssued        prometheus.Counter
	jwtVerifications *prometheus.CounterVec
	refreshIssued    prometheus.Counter
	refreshRedeemed  *prometheus.CounterVec
	refreshRevoked   prometheus.Counter
	refreshSwept     prometheus.Counter
	loginAttempts    *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers every collector on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jwtIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_jwt_issued_total",
			Help: "Access tokens issued.",
		}),
		jwtVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_jwt_verifications_total",
			Help: "Access token verifications by result.",
		}, []string{"result"}),
		refreshIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_refresh_tokens_issued_total",
			Help: "Refresh tokens issued.",
		}),
		refreshRedeemed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_refresh_tokens_redeemed_total",
			Help: "Refresh token redemptions by result.",
		}, []string{"result"}),
		refreshRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_refresh_tokens_revoked_total",
			Help: "Refresh tokens revoked.",
		}),
		refreshSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_refresh_tokens_swept_total",
			Help: "Expired refresh tokens deleted by the sweep.",
		}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"path"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jwtIssued,
		m.jwtVerifications,
		m.refreshIssued,
		m.refreshRedeemed,
		m.refreshRevoked,
		m.refreshSwept,
		m.loginAttempts,
		m.rateLimited,
		m.httpInFlight,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) JWTIssued() {
	if m == nil {
		return
	}
	m.jwtIssued.Inc()
}

// JWTVerified records a verification outcome: "ok" or "invalid"
func (m *Metrics) JWTVerified(result string) {
	if m == nil {
		return
	}
	m.jwtVerifications.WithLabelValues(result).Inc()
}

func (m *Metrics) RefreshIssued() {
	if m == nil {
		return
	}
	m.refreshIssued.Inc()
}

// RefreshRedeemed records a redemption outcome: "ok", "not_found" or "replay"
func (m *Metrics) RefreshRedeemed(result string) {
	if m == nil {
		return
	}
	m.refreshRedeemed.WithLabelValues(result).Inc()
}

func (m *Metrics) RefreshRevoked(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.refreshRevoked.Add(float64(n))
}

func (m *Metrics) RefreshSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.refreshSwept.Add(float64(n))
}

// LoginAttempt records "ok" or "failed"
func (m *Metrics) LoginAttempt(result string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) RateLimited(path string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(path).Inc()
}
