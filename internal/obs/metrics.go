package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
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
)

// Authorization pipeline metrics
var (
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_cache_lookups_total",
			Help: "Credential and setting cache lookups by result.",
		},
		[]string{"cache", "result"},
	)

	gateRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_rejections_total",
			Help: "Requests rejected by an authorization gate.",
		},
		[]string{"gate"},
	)

	policyDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_decisions_total",
			Help: "Dynamic permission decisions.",
		},
		[]string{"decision"},
	)

	policyReadFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "policy_read_failures_total",
		Help: "Permission policy reads that failed and were recovered as allow.",
	})
)

var initOnce sync.Once

// Init registers metrics in the default registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			cacheLookups, gateRejections, policyDecisions, policyReadFailures,
		)
	})
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CacheLookup counts a cache hit or miss.
func CacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(cache, result).Inc()
}

// GateRejection counts a request stopped by the named gate.
func GateRejection(gate string) {
	gateRejections.WithLabelValues(gate).Inc()
}

// PolicyDecision counts an allow or deny outcome.
func PolicyDecision(decision string) {
	policyDecisions.WithLabelValues(decision).Inc()
}

// PolicyReadFailure counts a recovered policy read error.
func PolicyReadFailure() {
	policyReadFailures.Inc()
}

// Instrument records RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses identifiers in known routes so label cardinality
// stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 3 && parts[0] == "v1" && parts[1] == "users":
		return "/v1/users/:id"
	case len(parts) == 4 && parts[0] == "v1" && parts[1] == "users" && parts[3] == "role":
		return "/v1/users/:id/role"
	case len(parts) == 3 && parts[0] == "v1" && parts[1] == "settings":
		return "/v1/settings/:key"
	case len(parts) == 4 && parts[0] == "v1" && parts[1] == "provider" && parts[2] == "tenants":
		return "/v1/provider/tenants/:id"
	case len(parts) == 5 && parts[0] == "v1" && parts[1] == "provider" && parts[2] == "tenants":
		switch parts[4] {
		case "plan", "features", "status":
			return "/v1/provider/tenants/:id/" + parts[4]
		}
	}
	return path
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
