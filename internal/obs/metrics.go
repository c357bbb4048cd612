package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	refreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_refreshes_total",
			Help: "Refresh-token rotations by outcome.",
		},
		[]string{"outcome"},
	)

	revocationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_revocations_total",
		Help: "Access tokens added to the revocation list.",
	})

	blacklistSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "auth_blacklist_entries",
		Help: "Entries currently held by the in-memory revocation list.",
	})
)

// Init registers all service metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		loginsTotal, refreshesTotal, revocationsTotal, blacklistSize,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLogin records a login attempt. Outcome is "ok" or "denied".
func ObserveLogin(outcome string) { loginsTotal.WithLabelValues(outcome).Inc() }

// ObserveRefresh records a rotation attempt. Outcome is "ok", "denied" or "reused".
func ObserveRefresh(outcome string) { refreshesTotal.WithLabelValues(outcome).Inc() }

// ObserveRevocation counts an access token entering the revocation list.
func ObserveRevocation() { revocationsTotal.Inc() }

// SetBlacklistSize publishes the current size of the revocation list.
func SetBlacklistSize(n int) { blacklistSize.Set(float64(n)) }

// Instrument wraps a handler with RPS, latency and in-flight tracking.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses resource identifiers to :id so the path label
// stays low-cardinality. Only the known /v1 collections are rewritten.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return p
	}
	switch parts[1] {
	case "users", "roles", "permissions":
	default:
		return p
	}
	parts[2] = ":id"
	if len(parts) > 4 {
		return p
	}
	return "/" + strings.Join(parts, "/")
}

// statusWriter captures the response code for the metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
