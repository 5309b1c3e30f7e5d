package federation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfed/openfed/pkg/telemetry"
)

// Host orchestrates module resolution: it maps logical remote names to
// artifact locations, drives the artifact cache, negotiates shared
// dependencies, and resolves exports. A Host serves requests for the
// process lifetime; only individual requests reach a terminal state.
type Host struct {
	mu sync.RWMutex

	// remotes maps logical remote name to artifact location.
	remotes map[string]string

	cache    Cache
	registry SharedRegistry

	// negMu guards the negotiations map only. Each container carries its
	// own lock so that ProvideShared, which calls into guest code and can
	// run long, never blocks negotiation for other containers.
	negMu        sync.Mutex
	negotiations map[string]*negotiation

	policy  PolicyChecker
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	events  *telemetry.EventBus
}

// Options configures optional host collaborators. All fields may be zero;
// the host degrades to silent operation.
type Options struct {
	// Policy gates container loads after execution, before negotiation.
	Policy PolicyChecker

	// Logger is the base structured logger.
	Logger zerolog.Logger

	// Metrics records resolution counters and durations.
	Metrics *telemetry.Metrics

	// Tracer records spans around resolution phases.
	Tracer *telemetry.Tracer

	// Events receives resolution lifecycle events.
	Events *telemetry.EventBus
}

// NewHost creates a federation host over the given cache and shared
// dependency registry.
func NewHost(cache Cache, registry SharedRegistry, opts Options) *Host {
	return &Host{
		remotes:      make(map[string]string),
		negotiations: make(map[string]*negotiation),
		cache:        cache,
		registry:     registry,
		policy:       opts.Policy,
		logger:       opts.Logger.With().Str("component", "federation-host").Logger(),
		metrics:      opts.Metrics,
		tracer:       opts.Tracer,
		events:       opts.Events,
	}
}

// RegisterRemote maps a logical remote name to an artifact location.
// Re-registering a name replaces its location for future resolutions;
// already-loaded artifacts are unaffected.
func (h *Host) RegisterRemote(name, location string) {
	h.mu.Lock()
	h.remotes[name] = location
	h.mu.Unlock()

	h.logger.Debug().Str("remote", name).Str("location", location).Msg("remote registered")
	if h.events != nil {
		h.events.Publish(telemetry.Event{
			Type:    telemetry.EventTypeRemoteRegistered,
			Source:  "federation-host",
			Remote:  name,
			Message: "remote registered at " + location,
			Level:   telemetry.EventLevelInfo,
		})
	}
}

// UnregisterRemote removes a logical remote name from the mapping. Loaded
// containers stay loaded; only future name lookups are affected.
func (h *Host) UnregisterRemote(name string) {
	h.mu.Lock()
	delete(h.remotes, name)
	h.mu.Unlock()
}

// Remotes returns a snapshot of the logical name to location mapping.
func (h *Host) Remotes() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]string, len(h.remotes))
	for k, v := range h.remotes {
		out[k] = v
	}
	return out
}

// Location returns the registered location for a remote name.
func (h *Host) Location(name string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	loc, ok := h.remotes[name]
	return loc, ok
}

// ResolveModule resolves remoteName/exportName to a Module. This is the sole
// caller-facing entry point. Errors from any phase surface to the caller with
// their original kind; the host performs no retry and no fallback.
func (h *Host) ResolveModule(ctx context.Context, remoteName, exportName string) (Module, error) {
	req := newResolutionRequest(remoteName, exportName)
	logger := h.logger.With().
		Str("request_id", req.ID).
		Str("remote", remoteName).
		Str("export", exportName).
		Logger()

	if h.tracer != nil {
		var span telemetry.SpanEnder
		ctx, span = h.tracer.StartResolution(ctx, remoteName, exportName)
		defer span.End()
	}
	if h.metrics != nil {
		h.metrics.ResolutionStarted()
		defer h.metrics.ResolutionFinished()
	}

	module, err := h.resolve(ctx, req, logger)

	elapsed := time.Since(req.StartedAt)
	if err != nil {
		req.State = StateFailed
		logger.Error().Err(err).Str("state", string(req.State)).Dur("elapsed", elapsed).
			Msg("resolution failed")
		if h.metrics != nil {
			h.metrics.RecordResolution(remoteName, string(KindOf(err)), elapsed)
		}
		h.publishResolution(req, err)
		return nil, err
	}

	req.State = StateDone
	logger.Debug().Dur("elapsed", elapsed).Msg("resolution complete")
	if h.metrics != nil {
		h.metrics.RecordResolution(remoteName, "ok", elapsed)
	}
	h.publishResolution(req, nil)
	return module, nil
}

// resolve drives the request state machine.
func (h *Host) resolve(ctx context.Context, req *ResolutionRequest, logger zerolog.Logger) (Module, error) {
	// Idle -> ResolvingContainer
	req.State = StateResolvingContainer
	location, ok := h.Location(req.Remote)
	if !ok {
		return nil, NewNotFoundError("no location registered for remote", nil).
			WithRemote(req.Remote, req.Export)
	}
	req.Location = location

	container, err := h.cache.EnsureLoaded(ctx, location)
	if err != nil {
		return nil, err
	}

	if h.policy != nil {
		if err := h.policy.CheckContainer(ctx, container); err != nil {
			return nil, err
		}
	}

	// -> NegotiatingDependencies
	req.State = StateNegotiating
	if err := h.negotiate(ctx, container, logger); err != nil {
		return nil, err
	}

	// -> ResolvingExport
	req.State = StateResolvingExport
	return container.GetExport(ctx, req.Export)
}

// negotiate matches a container's declared shared dependencies against the
// registry. It runs strictly before any export resolution so that exported
// module code can assume its shared dependencies are materialized. A
// container is negotiated at most once; subsequent requests skip the step.
func (h *Host) negotiate(ctx context.Context, c Container, logger zerolog.Logger) error {
	reqs := c.DeclaredShared()
	if len(reqs) == 0 {
		return nil
	}

	n := h.negotiationFor(c.Name())
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done {
		return nil
	}

	for _, req := range reqs {
		if _, ok := h.registry.Lookup(req.Name); ok {
			h.registry.Bind(req.Name, c.Name())
			logger.Debug().Str("shared", req.Name).Msg("bound to existing shared instance")
			if h.metrics != nil {
				h.metrics.SharedBound(req.Name)
			}
			continue
		}

		if !req.CanProvide {
			// The container only consumes; absence is not an error here. The
			// module itself decides whether it can run without the dependency.
			logger.Warn().Str("shared", req.Name).Msg("shared dependency absent and container cannot provide")
			continue
		}

		instance, err := c.ProvideShared(ctx, req.Name)
		if err != nil {
			return err
		}
		if _, err := h.registry.Provide(req.Name, req.Version, instance, c.Name()); err != nil {
			return err
		}
		logger.Debug().Str("shared", req.Name).Msg("container self-provided shared dependency")
		if h.metrics != nil {
			h.metrics.SharedProvided(req.Name, c.Name())
		}
	}

	n.done = true
	return nil
}

// negotiation is the per-container once-state: requests for the same
// container serialize on mu, and done marks the declarations as matched.
type negotiation struct {
	mu   sync.Mutex
	done bool
}

func (h *Host) negotiationFor(container string) *negotiation {
	h.negMu.Lock()
	defer h.negMu.Unlock()
	n, ok := h.negotiations[container]
	if !ok {
		n = &negotiation{}
		h.negotiations[container] = n
	}
	return n
}

func (h *Host) publishResolution(req *ResolutionRequest, err error) {
	if h.events == nil {
		return
	}

	ev := telemetry.Event{
		Source:    "federation-host",
		Remote:    req.Remote,
		Export:    req.Export,
		RequestID: req.ID,
	}
	if err != nil {
		ev.Type = telemetry.EventTypeResolutionFailed
		ev.Level = telemetry.EventLevelError
		ev.Message = err.Error()
	} else {
		ev.Type = telemetry.EventTypeResolutionDone
		ev.Level = telemetry.EventLevelInfo
		ev.Message = "module resolved"
	}
	h.events.Publish(ev)
}
