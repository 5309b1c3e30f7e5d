// Package telemetry provides observability instrumentation for OpenFed.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), metrics (Prometheus), and event publishing into a
// unified system for monitoring and debugging federation operations.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "openfed"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context
// propagation:
//
//	logger := tel.Logger.NewComponentLogger("artifact-cache")
//	logger = logger.WithRemote("mfe1").WithLocation("https://cdn/remoteEntry.wasm")
//	logger.Info("loading artifact")
//	logger.WithError(err).Error("artifact load failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into resolution flow and latency:
//
//	ctx, span := tel.Tracer.StartResolution(ctx, "mfe1", "FlightsModule")
//	defer span.End()
//
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development), none (testing).
//
// # Metrics
//
// Prometheus metrics track federation behavior and performance:
//
//	tel.Metrics.RecordResolution("mfe1", "ok", duration)
//	tel.Metrics.RecordFetch("https", "ok", duration)
//	tel.Metrics.SharedProvided("router", "mfe1")
//
// Key metrics exposed:
//
//   - openfed_resolutions_total{remote,outcome}
//   - openfed_resolution_duration_seconds{remote}
//   - openfed_artifact_fetches_total{scheme,status}
//   - openfed_artifact_cache_hits_total
//   - openfed_artifact_cache_coalesced_total
//   - openfed_shared_provided_total{name,origin}
//   - openfed_errors_by_kind_total{kind}
//
// Metrics are exposed via HTTP at /metrics (default: :9464/metrics).
//
// # Event Publishing
//
// The event bus provides async publishing with buffering and filtering:
//
//	tel.Events.PublishArtifactLoaded(location, duration)
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// Event filters: FilterByLevel, FilterByType, FilterByRemote, FilterByLocation.
package telemetry
