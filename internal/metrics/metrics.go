// Package metrics exposes Prometheus collectors for the job watcher.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Page statuses.
const (
	PageOK     = "ok"
	PageFailed = "failed"
)

// Posting outcomes.
const (
	OutcomeMatched   = "matched"
	OutcomeInserted  = "inserted"
	OutcomeDuplicate = "duplicate"
)

// Delivery statuses.
const (
	DeliveryOK     = "ok"
	DeliveryFailed = "failed"
)

var (
	pagesTotal                 *prometheus.CounterVec
	postingsTotal              *prometheus.CounterVec
	deliveriesTotal            *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobwatch_pages_total",
				Help: "Total number of listing pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		postingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobwatch_postings_total",
				Help: "Postings seen by the pipeline, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		deliveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobwatch_deliveries_total",
				Help: "Report deliveries, labeled by method and status.",
			},
			[]string{"method", "status"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobwatch_runs_total",
				Help: "Completed watcher runs, labeled by mode.",
			},
			[]string{"mode"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jobwatch_run_duration_seconds",
				Help:    "Histogram of watcher run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
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
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts one fetched listing page.
func ObservePage(site, status string) {
	Init()
	pagesTotal.WithLabelValues(site, status).Inc()
}

// ObservePostings adds n postings with the given outcome.
func ObservePostings(site, outcome string, n int) {
	Init()
	if n <= 0 {
		return
	}
	postingsTotal.WithLabelValues(site, outcome).Add(float64(n))
}

// ObserveDelivery counts one report delivery attempt.
func ObserveDelivery(method, status string) {
	Init()
	deliveriesTotal.WithLabelValues(method, status).Inc()
}

// ObserveRun records a finished run.
func ObserveRun(mode string, duration time.Duration) {
	Init()
	runsTotal.WithLabelValues(mode).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
