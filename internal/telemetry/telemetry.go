// Package telemetry owns the service's Prometheus metrics and OpenTelemetry
// tracing setup.
package telemetry

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_crawl_pages_total",
			Help: "Pages processed by website crawls, labeled by site and outcome.",
		},
		[]string{"site", "status"},
	)

	crawlBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_crawl_bytes_total",
			Help: "HTML bytes scraped, labeled by site.",
		},
		[]string{"site"},
	)

	crawlsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_crawls_total",
			Help: "Website crawls finished, labeled by final crawl status.",
		},
		[]string{"status"},
	)

	crawlDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "onboarding_crawl_duration_seconds",
			Help:    "Wall time of a website crawl run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	activeCrawls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "onboarding_active_crawls",
			Help: "Crawl runs currently executing.",
		},
	)

	crawlQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "onboarding_crawl_queue_depth",
			Help: "Async crawl runs waiting for a worker.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "onboarding_crawl_rate_limit_delays_seconds",
			Help:    "Histogram of per-host rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)
)

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics keyed by
// route pattern, so path parameters do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, route, rec.statusCode, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// SanitizeSite extracts the lowercase hostname from a URL.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObservePage records one processed page.
func ObservePage(site, status string, bytesFetched int) {
	host := SanitizeSite(site)
	crawlPagesTotal.WithLabelValues(host, status).Inc()
	if bytesFetched > 0 {
		crawlBytesTotal.WithLabelValues(host).Add(float64(bytesFetched))
	}
}

// ObserveCrawl records a finished crawl run.
func ObserveCrawl(status string, duration time.Duration) {
	crawlsTotal.WithLabelValues(status).Inc()
	crawlDurationSeconds.Observe(duration.Seconds())
}

// IncActiveCrawls increments the running crawl gauge.
func IncActiveCrawls() {
	activeCrawls.Inc()
}

// DecActiveCrawls decrements the running crawl gauge.
func DecActiveCrawls() {
	activeCrawls.Dec()
}

// SetQueueDepth publishes the async queue length.
func SetQueueDepth(n int) {
	crawlQueueDepth.Set(float64(n))
}

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
