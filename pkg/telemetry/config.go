package telemetry

import (
	"fmt"
	"sort"
	"time"
)

// Config wires up the observability surface of a federation host: the
// structured logger, the OTLP trace pipeline, the Prometheus metrics
// endpoint, and the in-process event bus.
type Config struct {
	// ServiceName identifies the host in traces and log fields.
	ServiceName string

	// ServiceVersion is stamped onto the trace resource.
	ServiceVersion string

	// Environment is the deployment environment (development, staging,
	// production).
	Environment string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
	Events  EventsConfig
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	// Level is the minimum level emitted (trace, debug, info, warn,
	// error, fatal).
	Level string

	// Format selects console or json output.
	Format string

	// Output is the sink: stdout, stderr, or a file path.
	Output string

	// EnableCaller stamps file:line onto each entry.
	EnableCaller bool

	// EnableSampling rate-limits repeated entries. SamplingInitial
	// entries per second pass through, then every SamplingThereafter-th.
	EnableSampling     bool
	SamplingInitial    int
	SamplingThereafter int

	// TimeFormat is unix or rfc3339.
	TimeFormat string
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled bool

	// Exporter is otlp, stdout, or none.
	Exporter string

	// Endpoint is the OTLP collector address, e.g. "localhost:4317".
	Endpoint string

	// SamplingRate is the head-sampling ratio in [0, 1].
	SamplingRate float64

	MaxExportBatchSize int
	ExportTimeout      time.Duration

	// Headers are sent with every OTLP export request.
	Headers map[string]string

	// Insecure disables TLS on the collector connection.
	Insecure bool
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool

	// ListenAddress is where the scrape endpoint binds, e.g. ":9464".
	ListenAddress string

	// Path is the scrape path, normally /metrics.
	Path string

	// Namespace prefixes every metric name.
	Namespace string

	// DefaultHistogramBuckets are latency buckets in seconds, ascending.
	DefaultHistogramBuckets []float64
}

// EventsConfig configures the event bus.
type EventsConfig struct {
	Enabled bool

	// BufferSize bounds the async delivery queue. Publishing to a full
	// queue drops the event rather than blocking a load.
	BufferSize int

	// MaxBatchSize caps how many events one dispatch drains.
	MaxBatchSize int

	// EnableAsync delivers events on a background goroutine. Disable
	// for deterministic ordering in tests.
	EnableAsync bool
}

// DefaultConfig returns a configuration suitable for local use: console
// logs, stdout traces, metrics on :9464.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "openfed",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:              "info",
			Format:             "console",
			Output:             "stdout",
			EnableCaller:       true,
			SamplingInitial:    100,
			SamplingThereafter: 100,
			TimeFormat:         "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:            true,
			Exporter:           "stdout",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
			Headers:            make(map[string]string),
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9464",
			Path:          "/metrics",
			Namespace:     "openfed",
			DefaultHistogramBuckets: []float64{
				0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
			},
		},
		Events: EventsConfig{
			Enabled:      true,
			BufferSize:   1000,
			MaxBatchSize: 100,
			EnableAsync:  true,
		},
	}
}

// ProductionConfig returns defaults tuned for production: json logs
// with sampling, OTLP export over TLS at a 10% sampling rate.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "production"
	cfg.Logging.Format = "json"
	cfg.Logging.EnableSampling = true
	cfg.Logging.TimeFormat = "unix"
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.Endpoint = "localhost:4317"
	cfg.Tracing.SamplingRate = 0.1
	cfg.Tracing.Insecure = false
	return cfg
}

// DevelopmentConfig returns defaults tuned for local development:
// debug-level console logs and full trace sampling to stdout.
func DevelopmentConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "development"
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "console"
	cfg.Tracing.Exporter = "stdout"
	cfg.Tracing.SamplingRate = 1.0
	return cfg
}

// Validate checks the configuration before the telemetry stack is built.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service version is required")
	}
	if err := c.Logging.validate(); err != nil {
		return err
	}
	if err := c.Tracing.validate(); err != nil {
		return err
	}
	if err := c.Metrics.validate(); err != nil {
		return err
	}
	return c.Events.validate()
}

var logLevels = map[string]bool{
	"trace": true, "debug": true, "info": true,
	"warn": true, "error": true, "fatal": true,
}

func (c *LoggingConfig) validate() error {
	if !logLevels[c.Level] {
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	if c.Format != "console" && c.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Format)
	}
	return nil
}

var traceExporters = map[string]bool{
	"otlp": true, "stdout": true, "none": true,
}

func (c *TracingConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if !traceExporters[c.Exporter] {
		return fmt.Errorf("invalid trace exporter: %s", c.Exporter)
	}
	if c.Exporter == "otlp" && c.Endpoint == "" {
		return fmt.Errorf("otlp exporter requires an endpoint")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.SamplingRate)
	}
	return nil
}

func (c *MetricsConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ListenAddress == "" {
		return fmt.Errorf("metrics listen address is required when metrics are enabled")
	}
	if len(c.DefaultHistogramBuckets) > 0 && !sort.Float64sAreSorted(c.DefaultHistogramBuckets) {
		return fmt.Errorf("histogram buckets must be ascending")
	}
	return nil
}

func (c *EventsConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got: %d", c.BufferSize)
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("event batch size must be positive, got: %d", c.MaxBatchSize)
	}
	return nil
}
