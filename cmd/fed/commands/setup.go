package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfed/openfed/pkg/artifact"
	"github.com/openfed/openfed/pkg/config"
	"github.com/openfed/openfed/pkg/container"
	"github.com/openfed/openfed/pkg/federation"
	"github.com/openfed/openfed/pkg/policy"
	"github.com/openfed/openfed/pkg/shared"
	"github.com/openfed/openfed/pkg/telemetry"
)

// runtime bundles the wired host and its collaborators for a single
// command invocation.
type runtime struct {
	cfg      *config.HostConfig
	parser   *config.CUEParser
	tel      *telemetry.Telemetry
	cache    *artifact.Cache
	registry *shared.Registry
	engine   *policy.Engine
	host     *federation.Host
}

// loadConfig parses and validates the CUE config sources from the
// global --config flag.
func loadConfig(ctx context.Context) (*config.HostConfig, *config.CUEParser, error) {
	parser := config.NewCUEParser()

	cfg, err := parser.Evaluate(ctx, configSources)
	if err != nil {
		return nil, nil, err
	}

	return cfg, parser, nil
}

// buildRuntime wires telemetry, fetchers, cache, shared registry, and
// policy into a federation host per the given config.
func buildRuntime(ctx context.Context, cfg *config.HostConfig, parser *config.CUEParser, version string) (*runtime, error) {
	tel, err := buildTelemetry(cfg, version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	logger := tel.Logger.Zerolog()

	fetcher, err := buildFetcher(cfg, logger)
	if err != nil {
		return nil, err
	}

	executor := container.NewExecutor(fetcher, container.WithExecutorLogger(logger))

	loader := artifact.NewLoader(fetcher, executor,
		artifact.WithLoaderLogger(logger),
		artifact.WithLoaderMetrics(tel.Metrics),
		artifact.WithLoaderTracer(tel.Tracer),
	)

	cache := artifact.NewCache(loader,
		artifact.WithCacheLogger(logger),
		artifact.WithCacheMetrics(tel.Metrics),
		artifact.WithCacheEvents(tel.Events),
	)

	registry := shared.NewRegistry(shared.WithLogger(logger))
	if err := provisionShared(cfg, registry); err != nil {
		return nil, err
	}

	var checker federation.PolicyChecker
	var engine *policy.Engine
	if cfg.Policy != nil && cfg.Policy.Enabled {
		engine, checker, err = buildPolicy(ctx, cfg, logger, tel)
		if err != nil {
			return nil, err
		}
	}

	host := federation.NewHost(cache, registry, federation.Options{
		Policy:  checker,
		Logger:  logger,
		Metrics: tel.Metrics,
		Tracer:  tel.Tracer,
		Events:  tel.Events,
	})

	for _, remote := range cfg.Remotes {
		host.RegisterRemote(remote.Name, remote.Location)
	}

	return &runtime{
		cfg:      cfg,
		parser:   parser,
		tel:      tel,
		cache:    cache,
		registry: registry,
		engine:   engine,
		host:     host,
	}, nil
}

// Close shuts down telemetry. The cache and registry have no external
// resources of their own.
func (r *runtime) Close(ctx context.Context) error {
	return r.tel.Shutdown(ctx)
}

func buildTelemetry(cfg *config.HostConfig, version string) (*telemetry.Telemetry, error) {
	var tcfg *telemetry.Config
	if cfg.Environment == "production" {
		tcfg = telemetry.ProductionConfig()
	} else {
		tcfg = telemetry.DevelopmentConfig()
	}

	tcfg.ServiceName = cfg.Name
	tcfg.ServiceVersion = version
	if cfg.Environment != "" {
		tcfg.Environment = cfg.Environment
	}
	if verbose {
		tcfg.Logging.Level = "debug"
	}

	return telemetry.NewTelemetry(tcfg)
}

func buildFetcher(cfg *config.HostConfig, logger zerolog.Logger) (artifact.Fetcher, error) {
	httpOpts := []artifact.HTTPOption{artifact.WithHTTPLogger(logger)}
	if cfg.Fetch != nil {
		if cfg.Fetch.TimeoutSeconds > 0 {
			httpOpts = append(httpOpts, artifact.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
			}))
		}
		if cfg.Fetch.MaxArtifactBytes > 0 {
			httpOpts = append(httpOpts, artifact.WithHTTPMaxBytes(cfg.Fetch.MaxArtifactBytes))
		}
	}

	mux := artifact.NewFetcherMux(
		artifact.NewHTTPFetcher(httpOpts...),
		artifact.NewFileFetcher(logger),
	)

	if cfg.Fetch != nil && cfg.Fetch.SFTP != nil {
		sftpCfg := &artifact.SFTPConfig{
			User:           cfg.Fetch.SFTP.User,
			PrivateKeyPath: cfg.Fetch.SFTP.PrivateKeyPath,
			KnownHostsPath: cfg.Fetch.SFTP.KnownHostsPath,
		}
		if cfg.Fetch.SFTP.ConnectTimeoutSeconds > 0 {
			sftpCfg.ConnectTimeout = time.Duration(cfg.Fetch.SFTP.ConnectTimeoutSeconds) * time.Second
		}

		sftpFetcher, err := artifact.NewSFTPFetcher(sftpCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SFTP fetcher: %w", err)
		}
		mux.Register(sftpFetcher)
	}

	return mux, nil
}

// provisionShared seeds the registry with host-provided shared
// dependencies so they win first-provide over any remote's copy.
func provisionShared(cfg *config.HostConfig, registry *shared.Registry) error {
	for _, preset := range cfg.Shared {
		var value interface{}
		if len(preset.Value) > 0 {
			if err := json.Unmarshal(preset.Value, &value); err != nil {
				return fmt.Errorf("invalid value for shared dependency %s: %w", preset.Name, err)
			}
		}
		if _, err := registry.Provide(preset.Name, preset.Version, value, cfg.Name); err != nil {
			return fmt.Errorf("failed to provision shared dependency %s: %w", preset.Name, err)
		}
	}
	return nil
}

func buildPolicy(ctx context.Context, cfg *config.HostConfig, logger zerolog.Logger, tel *telemetry.Telemetry) (*policy.Engine, federation.PolicyChecker, error) {
	engine, err := policy.NewEngine(logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create policy engine: %w", err)
	}

	if len(cfg.Policy.Paths) > 0 {
		if err := engine.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
			return nil, nil, fmt.Errorf("failed to load policies: %w", err)
		}
	}

	opts := []policy.CheckerOption{
		policy.WithEvents(tel.Events),
		policy.WithEvalContext(&policy.Context{
			Environment: cfg.Environment,
			Timestamp:   time.Now().UTC(),
		}),
	}
	if cfg.Policy.Mode == "advisory" {
		opts = append(opts, policy.Advisory())
	}

	return engine, policy.NewChecker(engine, logger, opts...), nil
}
