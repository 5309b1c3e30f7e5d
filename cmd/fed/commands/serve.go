package commands

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfed/openfed/pkg/config"
	"github.com/openfed/openfed/pkg/policy"
	"github.com/openfed/openfed/pkg/stores"
)

func newServeCommand(version string) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the federation host",
		Long: `Run the federation host as a long-lived process.

The host registers the configured remotes and serves module
resolutions until interrupted. With --watch, changes to the CUE config
sources re-register remotes without a restart, and policy files under
policy.paths are hot reloaded. When store.path is set, artifact
history, resolution records, and events are persisted to SQLite.`,
		Example: `  # Run with configs from the current directory
  fed serve

  # Run with hot reload of configs and policies
  fed serve --watch -c ./configs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, parser, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			rt, err := buildRuntime(ctx, cfg, parser, version)
			if err != nil {
				return err
			}
			logger := rt.tel.Logger.Zerolog()

			if err := rt.tel.Metrics.StartMetricsServer(); err != nil {
				return err
			}

			store, err := setupStore(ctx, rt, logger)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			if watch {
				if err := setupWatchers(ctx, rt, logger); err != nil {
					return err
				}
			}

			logger.Info().
				Str("host", cfg.Name).
				Str("environment", cfg.Environment).
				Int("remotes", len(rt.host.Remotes())).
				Msg("federation host running")

			<-ctx.Done()

			logger.Info().Msg("federation host stopping")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return rt.Close(shutdownCtx)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "hot reload configs and policies on change")

	return cmd
}

// setupStore opens the configured SQLite store, attaches the event
// recorder, and starts retention pruning. Returns nil when no store is
// configured.
func setupStore(ctx context.Context, rt *runtime, logger zerolog.Logger) (*stores.SQLiteStore, error) {
	if rt.cfg.Store == nil || rt.cfg.Store.Path == "" {
		return nil, nil
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: rt.cfg.Store.Path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	recorder := stores.NewEventRecorder(store, logger)
	recorder.Attach(rt.tel.Events)

	if rt.cfg.Store.RetainDays > 0 {
		go pruneLoop(ctx, store, rt.cfg.Store.RetainDays, logger)
	}

	logger.Info().Str("path", rt.cfg.Store.Path).Msg("record store attached")
	return store, nil
}

// pruneLoop deletes resolution records past the retention window once
// per hour.
func pruneLoop(ctx context.Context, store *stores.SQLiteStore, retainDays int, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -retainDays)
			pruned, err := store.PruneResolutions(ctx, cutoff)
			if err != nil {
				logger.Error().Err(err).Msg("failed to prune resolution records")
				continue
			}
			if pruned > 0 {
				logger.Info().Int64("pruned", pruned).Msg("resolution records pruned")
			}
		}
	}
}

// setupWatchers starts config and policy hot reload.
func setupWatchers(ctx context.Context, rt *runtime, logger zerolog.Logger) error {
	watcher := config.NewWatcher(rt.parser, logger)
	if err := watcher.Watch(ctx, configSources, func(cfg *config.HostConfig) error {
		applyRemotes(rt, cfg)
		return nil
	}); err != nil {
		return err
	}

	if rt.engine != nil && rt.cfg.Policy != nil && rt.cfg.Policy.Watch && len(rt.cfg.Policy.Paths) > 0 {
		loader := policy.NewLoader(logger)
		if err := loader.Watch(ctx, rt.cfg.Policy.Paths, func(policies []policy.Policy) error {
			return rt.engine.ReplacePolicies(ctx, policies)
		}); err != nil {
			return err
		}
	}

	return nil
}

// applyRemotes reconciles the host's remote table with a reloaded
// config: new and changed remotes are registered, removed ones are
// unregistered. Already loaded containers stay cached under their old
// location until reset.
func applyRemotes(rt *runtime, cfg *config.HostConfig) {
	keep := make(map[string]bool, len(cfg.Remotes))
	for _, remote := range cfg.Remotes {
		keep[remote.Name] = true
		rt.host.RegisterRemote(remote.Name, remote.Location)
	}

	for name := range rt.host.Remotes() {
		if !keep[name] {
			rt.host.UnregisterRemote(name)
		}
	}
}
