package container

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/openfed/openfed/pkg/federation"
)

// InvokeFunc executes one export call against the guest.
type InvokeFunc func(ctx context.Context, fn string, input []byte) ([]byte, error)

// ProvideFunc materializes a shared dependency instance.
type ProvideFunc func(ctx context.Context) (any, error)

// Container is a loaded remote container. It implements
// federation.Container: exports resolve to memoized module handles, and
// an unknown export name yields an export-not-found error. A container
// with zero exports is valid; it loaded and simply exposes nothing.
type Container struct {
	name    string
	version string

	mu      sync.Mutex
	modules map[string]federation.Module

	exports   map[string]string
	invoker   InvokeFunc
	shared    []federation.SharedRequirement
	providers map[string]ProvideFunc

	closer func(context.Context) error
}

// Name implements federation.Container.
func (c *Container) Name() string {
	return c.name
}

// Version returns the container version, if known.
func (c *Container) Version() string {
	return c.version
}

// Exports implements federation.Container, returning sorted export names.
func (c *Container) Exports() []string {
	names := make([]string, 0, len(c.exports))
	for name := range c.exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetExport implements federation.Container. The module handle for each
// export is created once and reused for all later resolutions.
func (c *Container) GetExport(ctx context.Context, name string) (federation.Module, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.modules[name]; ok {
		return m, nil
	}

	fn, ok := c.exports[name]
	if !ok {
		return nil, federation.NewExportNotFoundError(c.name, name)
	}

	m := &module{name: name, fn: fn, container: c}
	c.modules[name] = m
	return m, nil
}

// DeclaredShared implements federation.Container.
func (c *Container) DeclaredShared() []federation.SharedRequirement {
	out := make([]federation.SharedRequirement, len(c.shared))
	copy(out, c.shared)
	return out
}

// ProvideShared implements federation.Container. Asking for a dependency
// the container has no factory for is an execution failure: the
// container declared it could provide but cannot deliver.
func (c *Container) ProvideShared(ctx context.Context, name string) (any, error) {
	provider, ok := c.providers[name]
	if !ok {
		return nil, federation.NewExecutionError(
			fmt.Sprintf("container %s has no factory for shared dependency %q", c.name, name), nil)
	}
	instance, err := provider(ctx)
	if err != nil {
		return nil, federation.NewExecutionError(
			fmt.Sprintf("container %s failed to materialize shared dependency %q", c.name, name), err)
	}
	return instance, nil
}

// Close releases the container's runtime resources.
func (c *Container) Close(ctx context.Context) error {
	if c.closer == nil {
		return nil
	}
	return c.closer(ctx)
}

// module is one resolved export handle.
type module struct {
	name      string
	fn        string
	container *Container
}

// Name implements federation.Module.
func (m *module) Name() string {
	return m.name
}

// Container implements federation.Module.
func (m *module) Container() string {
	return m.container.name
}

// Invoke implements federation.Module. An empty fn calls the export's
// bound guest function; a non-empty fn addresses another function of the
// same export.
func (m *module) Invoke(ctx context.Context, fn string, input []byte) ([]byte, error) {
	if m.container.invoker == nil {
		return nil, federation.NewExecutionError(
			fmt.Sprintf("container %s has no invoker for export %q", m.container.name, m.name), nil)
	}
	if fn == "" {
		fn = m.fn
	}
	return m.container.invoker(ctx, fn, input)
}

// Builder assembles a Container. It is the registration surface handed to
// executors: raw artifacts register exports through host callbacks during
// their start function, bundles register from their manifest.
type Builder struct {
	c *Container
}

// NewBuilder starts a container with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{c: &Container{
		name:      name,
		modules:   make(map[string]federation.Module),
		exports:   make(map[string]string),
		providers: make(map[string]ProvideFunc),
	}}
}

// Version sets the container version.
func (b *Builder) Version(version string) *Builder {
	b.c.version = version
	return b
}

// Rename replaces the container name. Used when a raw artifact announces
// its own name during execution.
func (b *Builder) Rename(name string) *Builder {
	b.c.name = name
	return b
}

// AddExport registers an export backed by guest function fn. A repeated
// name overwrites the previous registration.
func (b *Builder) AddExport(name, fn string) *Builder {
	if fn == "" {
		fn = name
	}
	b.c.exports[name] = fn
	return b
}

// DeclareShared records a shared dependency requirement.
func (b *Builder) DeclareShared(req federation.SharedRequirement) *Builder {
	b.c.shared = append(b.c.shared, req)
	return b
}

// SharedProvider sets the factory used when the host asks this container
// to provide a shared dependency.
func (b *Builder) SharedProvider(name string, fn ProvideFunc) *Builder {
	b.c.providers[name] = fn
	return b
}

// Invoker sets the guest call function shared by all exports.
func (b *Builder) Invoker(fn InvokeFunc) *Builder {
	b.c.invoker = fn
	return b
}

// OnClose sets the resource cleanup hook.
func (b *Builder) OnClose(fn func(context.Context) error) *Builder {
	b.c.closer = fn
	return b
}

// Build returns the assembled container.
func (b *Builder) Build() *Container {
	return b.c
}
