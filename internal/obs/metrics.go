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

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the last readiness check passed.",
	})

	guardDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_decisions_total",
			Help: "Route guard decisions by outcome.",
		},
		[]string{"decision"},
	)

	permissionCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_cache_lookups_total",
			Help: "Permission cache lookups by result.",
		},
		[]string{"result"},
	)

	roleLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "role_lookups_total",
			Help: "Role lookups against user profile storage by outcome.",
		},
		[]string{"outcome"},
	)

	shareResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "share_resolutions_total",
			Help: "Share token resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	shareDownloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "share_downloads_total",
			Help: "Share download accounting attempts by outcome.",
		},
		[]string{"outcome"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build version and commit of the running binary.",
		},
		[]string{"version", "commit"},
	)

	initOnce sync.Once
)

// Init registers metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration, ready,
			guardDecisions, permissionCacheLookups, roleLookups,
			shareResolutions, shareDownloads, buildInfo,
		)
	})
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo publishes build_info{version,commit} = 1 as the only series.
func SetBuildInfo(version, commit string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit).Set(1)
}

// SetReady records the outcome of the last readiness check.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// ObserveGuardDecision counts a route guard decision.
func ObserveGuardDecision(decision string) {
	guardDecisions.WithLabelValues(decision).Inc()
}

// ObservePermissionCache counts a permission cache hit or miss.
func ObservePermissionCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	permissionCacheLookups.WithLabelValues(result).Inc()
}

// ObserveRoleLookup counts a role lookup outcome (elevated, not_elevated, error).
func ObserveRoleLookup(outcome string) {
	roleLookups.WithLabelValues(outcome).Inc()
}

// ObserveShareResolution counts a share resolution outcome (granted or a denial reason).
func ObserveShareResolution(outcome string) {
	shareResolutions.WithLabelValues(outcome).Inc()
}

// ObserveShareDownload counts a download accounting outcome.
func ObserveShareDownload(outcome string) {
	shareDownloads.WithLabelValues(outcome).Inc()
}

// Instrument records RPS, latency and in-flight requests for next.
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

// CanonicalPath collapses share tokens and ids so metric labels stay bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" && parts[1] == "shares" {
		switch len(parts) {
		case 3:
			return "/v1/shares/:id"
		case 4:
			if parts[3] == "downloads" {
				return "/v1/shares/:token/downloads"
			}
		}
	}
	if len(parts) == 5 && parts[0] == "v1" && parts[1] == "admin" && parts[2] == "resources" && parts[4] == "shares" {
		return "/v1/admin/resources/:id/shares"
	}
	return p
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
