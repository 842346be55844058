// Package metrics exposes Prometheus collectors for the ranktrack service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	rankChecksTotal            *prometheus.CounterVec
	rankLookupDurationSeconds  *prometheus.HistogramVec
	reportsTotal               *prometheus.CounterVec
	schedulerRunsTotal         *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		rankChecksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranktrack_rank_checks_total",
				Help: "Total number of keyword rank checks, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		rankLookupDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ranktrack_rank_lookup_duration_seconds",
				Help:    "Histogram of ranking-provider lookup latencies, labeled by site.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		reportsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranktrack_reports_total",
				Help: "Total number of chat report deliveries, labeled by status.",
			},
			[]string{"status"},
		)

		schedulerRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranktrack_scheduler_runs_total",
				Help: "Total number of scheduler runs, labeled by status.",
			},
			[]string{"status"},
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
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRankCheck counts one keyword check outcome for a site.
func ObserveRankCheck(site, status string, duration time.Duration) {
	sanitized := SanitizeSite(site)
	rankChecksTotal.WithLabelValues(sanitized, status).Inc()
	rankLookupDurationSeconds.WithLabelValues(sanitized).Observe(duration.Seconds())
}

// ObserveReport counts one report delivery outcome.
func ObserveReport(status string) {
	reportsTotal.WithLabelValues(status).Inc()
}

// ObserveRun counts one scheduler run outcome.
func ObserveRun(status string) {
	schedulerRunsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
