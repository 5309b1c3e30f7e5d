package federation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Module is an opaque unit of exported functionality. The federation core
// never interprets a module's contents; it hands the same reference to every
// caller that resolves it.
type Module interface {
	// Name returns the export name this module was resolved under.
	Name() string

	// Container returns the logical name of the container that owns the module.
	Container() string

	// Invoke calls into the module with an opaque payload. The encoding of
	// input and output is a contract between the remote and its consumers.
	Invoke(ctx context.Context, fn string, input []byte) ([]byte, error)
}

// SharedRequirement is a container's declaration about one shared dependency.
type SharedRequirement struct {
	// Name is the logical dependency name, e.g. "router".
	Name string `json:"name"`

	// Version is the version the container was built against. Empty means
	// unversioned; no compatibility logic is applied beyond exact comparison.
	Version string `json:"version,omitempty"`

	// CanProvide indicates the container carries its own copy and can
	// materialize it if the host does not supply one.
	CanProvide bool `json:"can_provide"`

	// CanConsume indicates the container is able to use a host-supplied
	// instance instead of its own copy.
	CanConsume bool `json:"can_consume"`
}

// Container is a loaded artifact's exposed surface: export names mapped to
// lazily resolved modules, plus its shared-dependency declarations.
// Containers live until process teardown; there is no unload.
type Container interface {
	// Name returns the container's logical name.
	Name() string

	// GetExport resolves an exported module by public name. Resolving the
	// same name twice returns the same Module reference.
	GetExport(ctx context.Context, name string) (Module, error)

	// Exports lists the public export names the container offers.
	Exports() []string

	// DeclaredShared returns the container's shared-dependency declarations.
	// Containers that declare nothing skip negotiation entirely.
	DeclaredShared() []SharedRequirement

	// ProvideShared materializes the container's own copy of a declared
	// shared dependency. Called by the host only when the registry has no
	// instance for the name and the declaration allows providing.
	ProvideShared(ctx context.Context, name string) (any, error)
}

// Cache guarantees at-most-once fetch and execution per artifact location.
type Cache interface {
	// EnsureLoaded resolves a location to its loaded container, fetching and
	// executing at most once per location for the process lifetime.
	// Concurrent calls for the same location are coalesced onto one load.
	// A location that previously failed yields a load-aborted error until
	// explicitly reset.
	EnsureLoaded(ctx context.Context, location string) (Container, error)
}

// SharedRegistry is the process-wide table of materialized shared
// dependency instances. The first provider for a name wins; the registry
// never holds two instances for one name.
type SharedRegistry interface {
	// Provide offers an instance for name. If the name is unclaimed the
	// instance is accepted and returned. If already claimed, the canonical
	// instance is returned instead and the caller is recorded as a consumer,
	// unless the registry is strict, in which case a shared-conflict error
	// is returned.
	Provide(name, version string, instance any, origin string) (any, error)

	// Lookup returns the materialized instance for name, if any.
	Lookup(name string) (any, bool)

	// Bind records consumer as bound to the instance for name.
	Bind(name, consumer string)
}

// PolicyChecker gates container loads. Implementations evaluate deployment
// policy against a container's declarations after load but before any
// negotiation or export resolution.
type PolicyChecker interface {
	CheckContainer(ctx context.Context, c Container) error
}

// RequestState tracks a resolution request through the host's state machine.
type RequestState string

const (
	// StateIdle is the initial state of a resolution request.
	StateIdle RequestState = "idle"

	// StateResolvingContainer means the owning container is being located
	// and loaded through the artifact cache.
	StateResolvingContainer RequestState = "resolving_container"

	// StateNegotiating means shared dependencies are being matched against
	// the registry.
	StateNegotiating RequestState = "negotiating_dependencies"

	// StateResolvingExport means the export is being resolved on the
	// loaded container.
	StateResolvingExport RequestState = "resolving_export"

	// StateDone is the successful terminal state.
	StateDone RequestState = "done"

	// StateFailed is the failing terminal state.
	StateFailed RequestState = "failed"
)

// ResolutionRequest is one in-flight ask for remote/export. Requests are
// created per ResolveModule call and discarded on completion; they are
// never persisted.
type ResolutionRequest struct {
	// ID uniquely identifies the request for logging and audit.
	ID string `json:"id"`

	// Remote is the logical remote name being resolved.
	Remote string `json:"remote"`

	// Export is the requested export name.
	Export string `json:"export"`

	// Location is the artifact location the remote mapped to.
	Location string `json:"location,omitempty"`

	// State is the current state machine position.
	State RequestState `json:"state"`

	// StartedAt is when the request was created.
	StartedAt time.Time `json:"started_at"`
}

// newResolutionRequest creates a request in the idle state.
func newResolutionRequest(remote, export string) *ResolutionRequest {
	return &ResolutionRequest{
		ID:        uuid.NewString(),
		Remote:    remote,
		Export:    export,
		State:     StateIdle,
		StartedAt: time.Now(),
	}
}
