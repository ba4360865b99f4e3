package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, status code, and host
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gonpm_http_requests_total",
			Help: "Total number of HTTP requests by method and status",
		},
		[]string{"method", "status_code", "host"},
	)

	// HTTPRequestDuration tracks HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gonpm_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to 16s
		},
		[]string{"method", "host"},
	)

	// HTTPRetriesTotal counts retried HTTP attempts by host
	HTTPRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gonpm_http_retries_total",
			Help: "Total number of retried HTTP attempts",
		},
		[]string{"host"},
	)

	// CacheHitsTotal counts registry cache hits by cache
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gonpm_cache_hits_total",
			Help: "Total number of cache hits by cache",
		},
		[]string{"cache"}, // index, manifest, archive, disk
	)

	// CacheMissesTotal counts registry cache misses by cache
	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gonpm_cache_misses_total",
			Help: "Total number of cache misses by cache",
		},
		[]string{"cache"},
	)

	// VersionSelectionsTotal counts version selections by outcome
	VersionSelectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gonpm_version_selections_total",
			Help: "Total number of version selections by outcome",
		},
		[]string{"outcome"}, // matched, fallback
	)

	// PackageInstallsTotal counts archive installs by status
	PackageInstallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gonpm_package_installs_total",
			Help: "Total number of package installs by status",
		},
		[]string{"status"}, // extracted, skipped, failed
	)

	// PackageInstallDuration tracks archive install duration in seconds
	PackageInstallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gonpm_package_install_duration_seconds",
			Help:    "Package install duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to 10s
		},
	)

	// ArchiveBytesTotal counts downloaded archive bytes
	ArchiveBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gonpm_archive_bytes_total",
			Help: "Total number of archive bytes downloaded",
		},
	)

	// VisitsInFlight tracks dependency visits currently running
	VisitsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gonpm_visits_in_flight",
			Help: "Number of dependency visits currently running",
		},
	)

	// DedupHitsTotal counts requests satisfied by an earlier claim of the same name
	DedupHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gonpm_dedup_hits_total",
			Help: "Total number of dependency requests satisfied by an existing claim",
		},
	)

	// CircuitBreakerState tracks circuit breaker state by host
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gonpm_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"host"},
	)

	// RateLimitRequestsTotal counts rate limited requests
	RateLimitRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gonpm_rate_limit_requests_total",
			Help: "Total number of rate limited requests",
		},
		[]string{"host", "allowed"},
	)
)

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// MetricsServer serves /metrics (and /healthz when a checker is given)
// while an install runs.
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
}

// StartMetricsServer starts serving metrics on addr in the background.
func StartMetricsServer(addr string, health *HealthChecker) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	if health != nil {
		mux.Handle("/healthz", health.Handler())
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	ms := &MetricsServer{
		server:   &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
	}
	go func() {
		_ = ms.server.Serve(ln)
	}()

	return ms, nil
}

// Addr returns the address the server listens on.
func (ms *MetricsServer) Addr() string {
	return ms.listener.Addr().String()
}

// Shutdown stops the server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	if err := ms.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// GetCounterValue retrieves the current value of a counter metric with the given labels
// This is primarily intended for testing
func GetCounterValue(counter *prometheus.CounterVec, labels ...string) (float64, error) {
	metric, err := counter.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0, err
	}
	return readCounter(metric)
}

// GetPlainCounterValue is GetCounterValue for counters without labels.
func GetPlainCounterValue(counter prometheus.Counter) (float64, error) {
	return readCounter(counter)
}

func readCounter(metric prometheus.Metric) (float64, error) {
	var pb dto.Metric
	if err := metric.Write(&pb); err != nil {
		return 0, err
	}

	if pb.Counter != nil {
		return pb.Counter.GetValue(), nil
	}

	return 0, nil
}
