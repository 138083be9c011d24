package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandwatch_search_requests_total",
			Help: "Search provider calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	ScrapeJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandwatch_scrape_jobs_total",
			Help: "Scrape jobs by platform and outcome",
		},
		[]string{"platform", "outcome"},
	)

	ScrapePollTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandwatch_scrape_poll_total",
			Help: "Status polls issued against scrape jobs",
		},
		[]string{"platform"},
	)

	ScrapeJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brandwatch_scrape_job_duration_seconds",
			Help:    "Wall-clock duration of scrape jobs from trigger to fetch",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"platform"},
	)

	PageFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandwatch_page_fetches_total",
			Help: "Direct page fetches executed by the collector",
		},
		[]string{"domain", "status", "detected", "detection_src"},
	)

	PageFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brandwatch_page_fetch_duration_seconds",
			Help:    "Duration of direct page fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	PageBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandwatch_page_bytes_total",
			Help: "Total bytes downloaded by direct page fetches",
		},
		[]string{"domain"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandwatch_proxy_failures_total",
			Help: "Total number of proxy failures",
		},
		[]string{"proxy_host"},
	)

	MonitorRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandwatch_monitor_runs_total",
			Help: "Monitoring runs by outcome",
		},
		[]string{"outcome"},
	)
)

// PageFetch is the subset of a fetch result the page metrics are derived from.
type PageFetch struct {
	StatusCode   int
	Failed       bool
	DetectedBot  bool
	DetectionSrc string
	Bytes        int
	Duration     time.Duration
}

// RecordSearch counts one provider call.
func RecordSearch(provider, outcome string) {
	SearchRequestsTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordScrapeJob counts a finished scrape job and observes its duration.
// A zero duration is not observed.
func RecordScrapeJob(platform, outcome string, d time.Duration) {
	ScrapeJobsTotal.WithLabelValues(platform, outcome).Inc()
	if d > 0 {
		ScrapeJobDuration.WithLabelValues(platform).Observe(d.Seconds())
	}
}

// RecordPageFetch updates the page metrics for a single fetch against domain.
func RecordPageFetch(domain string, f PageFetch) {
	status := strconv.Itoa(f.StatusCode)
	if f.Failed {
		status = "error"
	}
	PageFetchesTotal.WithLabelValues(domain, status, strconv.FormatBool(f.DetectedBot), f.DetectionSrc).Inc()
	PageFetchDuration.WithLabelValues(domain).Observe(f.Duration.Seconds())
	PageBytesTotal.WithLabelValues(domain).Add(float64(f.Bytes))
}

// Handler exposes the default registry for mounting on another mux.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
