package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the OpenFed host.
type Metrics struct {
	config MetricsConfig

	// Resolution metrics
	resolutionsTotal   *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	inflight           prometheus.Gauge

	// Artifact metrics
	artifactFetches  *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	cacheCoalesced   prometheus.Counter
	containersLoaded prometheus.Gauge

	// Shared dependency metrics
	sharedProvided *prometheus.CounterVec
	sharedBound    *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		resolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Total number of module resolutions",
			},
			[]string{"remote", "outcome"},
		),
		resolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_duration_seconds",
				Help:      "Duration of module resolution in seconds",
				Buckets:   buckets,
			},
			[]string{"remote"},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resolutions_inflight",
				Help:      "Current number of in-flight resolution requests",
			},
		),

		artifactFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifact_fetches_total",
				Help:      "Total number of artifact fetch attempts",
			},
			[]string{"scheme", "status"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "artifact_fetch_duration_seconds",
				Help:      "Duration of artifact fetches in seconds",
				Buckets:   buckets,
			},
			[]string{"scheme"},
		),
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifact_cache_hits_total",
				Help:      "Resolutions served from an already-loaded artifact",
			},
		),
		cacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifact_cache_misses_total",
				Help:      "Resolutions that triggered an artifact load",
			},
		),
		cacheCoalesced: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifact_cache_coalesced_total",
				Help:      "Resolutions that joined an in-flight artifact load",
			},
		),
		containersLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "containers_loaded",
				Help:      "Current number of loaded remote containers",
			},
		),

		sharedProvided: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shared_provided_total",
				Help:      "Shared dependency instances materialized, by provider origin",
			},
			[]string{"name", "origin"},
		),
		sharedBound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shared_bound_total",
				Help:      "Consumer bindings to existing shared dependency instances",
			},
			[]string{"name"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of resolution errors by error kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.resolutionsTotal,
		m.resolutionDuration,
		m.inflight,
		m.artifactFetches,
		m.fetchDuration,
		m.cacheHits,
		m.cacheMisses,
		m.cacheCoalesced,
		m.containersLoaded,
		m.sharedProvided,
		m.sharedBound,
		m.errorsByKind,
	)

	return m, nil
}

// Resolution Metrics

// ResolutionStarted increments the in-flight resolution gauge.
func (m *Metrics) ResolutionStarted() {
	if m.inflight == nil {
		return
	}
	m.inflight.Inc()
}

// ResolutionFinished decrements the in-flight resolution gauge.
func (m *Metrics) ResolutionFinished() {
	if m.inflight == nil {
		return
	}
	m.inflight.Dec()
}

// RecordResolution records a completed resolution. Outcome is "ok" or the
// error kind.
func (m *Metrics) RecordResolution(remote, outcome string, duration time.Duration) {
	if m.resolutionsTotal == nil {
		return
	}
	m.resolutionsTotal.WithLabelValues(remote, outcome).Inc()
	m.resolutionDuration.WithLabelValues(remote).Observe(duration.Seconds())
	if outcome != "ok" {
		m.errorsByKind.WithLabelValues(outcome).Inc()
	}
}

// Artifact Metrics

// RecordFetch records an artifact fetch attempt with its duration.
func (m *Metrics) RecordFetch(scheme, status string, duration time.Duration) {
	if m.artifactFetches == nil {
		return
	}
	m.artifactFetches.WithLabelValues(scheme, status).Inc()
	m.fetchDuration.WithLabelValues(scheme).Observe(duration.Seconds())
}

// CacheHit records a resolution served from a loaded artifact.
func (m *Metrics) CacheHit() {
	if m.cacheHits == nil {
		return
	}
	m.cacheHits.Inc()
}

// CacheMiss records a resolution that triggered a load.
func (m *Metrics) CacheMiss() {
	if m.cacheMisses == nil {
		return
	}
	m.cacheMisses.Inc()
}

// CacheCoalesced records a resolution that joined an in-flight load.
func (m *Metrics) CacheCoalesced() {
	if m.cacheCoalesced == nil {
		return
	}
	m.cacheCoalesced.Inc()
}

// ContainerLoaded increments the loaded container gauge.
func (m *Metrics) ContainerLoaded() {
	if m.containersLoaded == nil {
		return
	}
	m.containersLoaded.Inc()
}

// Shared Dependency Metrics

// SharedProvided records a materialized shared dependency instance.
func (m *Metrics) SharedProvided(name, origin string) {
	if m.sharedProvided == nil {
		return
	}
	m.sharedProvided.WithLabelValues(name, origin).Inc()
}

// SharedBound records a consumer binding to an existing instance.
func (m *Metrics) SharedBound(name string) {
	if m.sharedBound == nil {
		return
	}
	m.sharedBound.WithLabelValues(name).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
