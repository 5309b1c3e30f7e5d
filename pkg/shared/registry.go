// Package shared implements the process-wide registry of materialized
// shared dependency instances. The registry enforces the single-instance
// invariant: once a provider has been accepted for a logical name, every
// later provider for that name is redirected to the existing instance.
package shared

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfed/openfed/pkg/federation"
)

// OriginHost marks an instance materialized by the host application itself,
// as opposed to a container.
const OriginHost = "host"

// Entry is one materialized shared dependency.
type Entry struct {
	// Name is the logical dependency name.
	Name string `json:"name"`

	// Version is the version the provider declared, if any.
	Version string `json:"version,omitempty"`

	// Origin identifies who materialized the instance: OriginHost or a
	// container name.
	Origin string `json:"origin"`

	// Consumers are the parties bound to this instance.
	Consumers []string `json:"consumers,omitempty"`

	// ProvidedAt is when the instance was accepted.
	ProvidedAt time.Time `json:"provided_at"`

	// instance is the materialized value. Opaque to the registry.
	instance any
}

// Instance returns the materialized value.
func (e *Entry) Instance() any {
	return e.instance
}

// Registry is the process-wide shared dependency table. It implements
// federation.SharedRegistry and is safe for concurrent use; the mutex
// guards the check-then-set in Provide so the single-instance invariant
// holds under parallel negotiation.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	// strict rejects a second provider with a conflict error instead of
	// redirecting it to the first instance. Reserved for deployments that
	// forbid container fallback copies.
	strict bool

	logger zerolog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithStrictProviders makes a second Provide for an already-claimed name
// fail with a shared-dependency conflict instead of binding the caller.
func WithStrictProviders() Option {
	return func(r *Registry) { r.strict = true }
}

// WithLogger sets the registry logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger.With().Str("component", "shared-registry").Logger()
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*Entry),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Provide offers an instance for name on behalf of origin. The first
// provider for a name wins and gets its own instance back. A later provider
// gets the canonical instance back and is recorded as a consumer, unless
// the registry is strict, in which case it gets a conflict error. Version
// mismatches between the accepted entry and a later provider are logged but
// not rejected under the default policy.
func (r *Registry) Provide(name, version string, instance any, origin string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[name]; ok {
		if r.strict {
			return nil, federation.NewSharedConflictError(name, existing.Origin, origin)
		}
		if version != "" && existing.Version != "" && version != existing.Version {
			r.logger.Warn().
				Str("shared", name).
				Str("accepted_version", existing.Version).
				Str("rejected_version", version).
				Str("origin", origin).
				Msg("version mismatch on shared dependency, reusing accepted instance")
		}
		existing.Consumers = appendConsumer(existing.Consumers, origin)
		return existing.instance, nil
	}

	r.entries[name] = &Entry{
		Name:       name,
		Version:    version,
		Origin:     origin,
		ProvidedAt: time.Now(),
		instance:   instance,
	}
	r.logger.Debug().Str("shared", name).Str("origin", origin).Msg("shared dependency materialized")
	return instance, nil
}

// Lookup returns the materialized instance for name, if any.
func (r *Registry) Lookup(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return entry.instance, true
}

// Bind records consumer as bound to the instance for name. Binding an
// unclaimed name is a no-op; the consumer is expected to Lookup first.
func (r *Registry) Bind(name, consumer string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[name]
	if !ok {
		return
	}
	entry.Consumers = appendConsumer(entry.Consumers, consumer)
}

// Entries returns a snapshot of all entries, for inspection and audit.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		snapshot := *entry
		snapshot.Consumers = append([]string(nil), entry.Consumers...)
		out = append(out, snapshot)
	}
	return out
}

// Len returns the number of materialized entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func appendConsumer(consumers []string, consumer string) []string {
	for _, c := range consumers {
		if c == consumer {
			return consumers
		}
	}
	return append(consumers, consumer)
}
