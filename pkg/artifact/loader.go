package artifact

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfed/openfed/pkg/federation"
	"github.com/openfed/openfed/pkg/telemetry"
)

// Loader performs one complete load: fetch the artifact bytes, then
// execute them into a container. The loader never retries and never
// rewrites errors; the fetcher's and executor's failures pass through to
// the caller unchanged.
type Loader struct {
	fetcher  Fetcher
	executor Executor
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLoaderLogger sets the loader logger.
func WithLoaderLogger(logger zerolog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger.With().Str("component", "artifact-loader").Logger()
	}
}

// WithLoaderMetrics attaches fetch metrics.
func WithLoaderMetrics(metrics *telemetry.Metrics) LoaderOption {
	return func(l *Loader) { l.metrics = metrics }
}

// WithLoaderTracer attaches fetch and execute spans.
func WithLoaderTracer(tracer *telemetry.Tracer) LoaderOption {
	return func(l *Loader) { l.tracer = tracer }
}

// NewLoader creates a loader over the given fetcher and executor.
func NewLoader(fetcher Fetcher, executor Executor, opts ...LoaderOption) *Loader {
	l := &Loader{
		fetcher:  fetcher,
		executor: executor,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches and executes the artifact at location.
func (l *Loader) Load(ctx context.Context, location string) (federation.Container, error) {
	start := time.Now()
	scheme := schemeOf(location)

	if l.tracer != nil {
		var span telemetry.SpanEnder
		ctx, span = l.tracer.StartFetchSpan(ctx, location)
		defer span.End()
	}

	data, err := l.fetcher.Fetch(ctx, location)
	if l.metrics != nil {
		status := "ok"
		if err != nil {
			status = string(federation.KindOf(err))
		}
		l.metrics.RecordFetch(scheme, status, time.Since(start))
	}
	if err != nil {
		l.logger.Warn().Err(err).Str("location", location).Msg("artifact fetch failed")
		return nil, err
	}

	container, err := l.executor.Execute(ctx, location, data)
	if err != nil {
		l.logger.Warn().Err(err).Str("location", location).Msg("artifact execution failed")
		return nil, err
	}

	l.logger.Info().
		Str("location", location).
		Str("container", container.Name()).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("artifact loaded")

	return container, nil
}
