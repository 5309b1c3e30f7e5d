package container

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/openfed/openfed/pkg/artifact"
	"github.com/openfed/openfed/pkg/federation"
)

// wasmMagic is the leading bytes of every WASM binary.
var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// hostModuleName is the import namespace guests use to reach the
// registration callbacks.
const hostModuleName = "openfed"

// Executor turns artifact bytes into live containers using wazero. Two
// artifact layouts are accepted: a raw WASM binary whose start function
// registers its own exports through host callbacks, and a YAML bundle
// manifest naming an entrypoint module and its exports declaratively.
type Executor struct {
	fetcher          artifact.Fetcher
	timeout          time.Duration
	memoryLimitPages uint32
	logger           zerolog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTimeout sets the per-call guest timeout.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

// WithMemoryLimitPages caps guest memory, in 64KB pages.
func WithMemoryLimitPages(pages uint32) ExecutorOption {
	return func(e *Executor) { e.memoryLimitPages = pages }
}

// WithExecutorLogger sets the executor logger.
func WithExecutorLogger(logger zerolog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger.With().Str("component", "wasm-executor").Logger()
	}
}

// NewExecutor creates an executor. The fetcher retrieves bundle
// entrypoint modules; it may be nil when only raw artifacts are served.
func NewExecutor(fetcher artifact.Fetcher, opts ...ExecutorOption) *Executor {
	e := &Executor{
		fetcher:          fetcher,
		timeout:          30 * time.Second,
		memoryLimitPages: 256,
		logger:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute implements the loader's executor contract.
func (e *Executor) Execute(ctx context.Context, location string, data []byte) (federation.Container, error) {
	if bytes.HasPrefix(data, wasmMagic) {
		return e.executeRaw(ctx, location, data)
	}
	return e.executeBundle(ctx, location, data)
}

// executeRaw instantiates a self-registering WASM artifact. The guest's
// start function calls back into the host to announce its name, exports,
// and shared declarations. A guest that starts cleanly but registers
// nothing yields an empty container.
func (e *Executor) executeRaw(ctx context.Context, location string, data []byte) (federation.Container, error) {
	builder := NewBuilder(location)
	return e.instantiate(ctx, location, data, builder)
}

// executeBundle parses a bundle manifest, fetches its entrypoint module,
// verifies the checksum, and instantiates it with the manifest's export
// table.
func (e *Executor) executeBundle(ctx context.Context, location string, data []byte) (federation.Container, error) {
	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, federation.NewExecutionError("artifact is neither a WASM binary nor a valid bundle manifest", err).WithLocation(location)
	}

	if e.fetcher == nil {
		return nil, federation.NewExecutionError("bundle artifacts are not supported without a fetcher", nil).WithLocation(location)
	}

	entrypoint, err := resolveEntrypoint(location, manifest.Entrypoint)
	if err != nil {
		return nil, federation.NewExecutionError(fmt.Sprintf("invalid entrypoint %q", manifest.Entrypoint), err).WithLocation(location)
	}

	module, err := e.fetcher.Fetch(ctx, entrypoint)
	if err != nil {
		return nil, err
	}
	if err := manifest.VerifyChecksum(module); err != nil {
		return nil, federation.NewExecutionError("bundle integrity check failed", err).WithLocation(location)
	}

	builder := NewBuilder(manifest.Name).Version(manifest.Version)
	for _, expose := range manifest.Exposes {
		builder.AddExport(expose.Name, expose.Function)
	}
	for _, req := range manifest.Requirements() {
		builder.DeclareShared(req)
	}

	return e.instantiate(ctx, location, module, builder)
}

// instantiate runs the wazero runtime for one container and wires the
// guest call path into the builder.
func (e *Executor) instantiate(ctx context.Context, location string, data []byte, builder *Builder) (federation.Container, error) {
	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(e.memoryLimitPages).
		WithCloseOnContextDone(true)
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, federation.NewExecutionError("failed to instantiate WASI", err).WithLocation(location)
	}

	if err := e.registerHostFunctions(ctx, runtime, builder); err != nil {
		runtime.Close(ctx)
		return nil, federation.NewExecutionError("failed to register host functions", err).WithLocation(location)
	}

	mod, err := runtime.Instantiate(ctx, data)
	if err != nil {
		runtime.Close(ctx)
		return nil, federation.NewExecutionError("artifact failed to execute", err).WithLocation(location)
	}

	guest := &guestCaller{module: mod, timeout: e.timeout}

	builder.Invoker(func(ctx context.Context, fn string, input []byte) ([]byte, error) {
		return guest.call(ctx, fn, input)
	})
	for _, req := range builder.c.shared {
		if !req.CanProvide {
			continue
		}
		name := req.Name
		builder.SharedProvider(name, func(ctx context.Context) (any, error) {
			return guest.call(ctx, "provide_shared", []byte(name))
		})
	}
	builder.OnClose(func(ctx context.Context) error {
		return runtime.Close(ctx)
	})

	container := builder.Build()
	e.logger.Debug().
		Str("location", location).
		Str("container", container.Name()).
		Strs("exports", container.Exports()).
		Msg("container instantiated")

	return container, nil
}

// registerHostFunctions exposes the registration callbacks raw artifacts
// call during their start function.
func (e *Executor) registerHostFunctions(ctx context.Context, runtime wazero.Runtime, builder *Builder) error {
	hostBuilder := runtime.NewHostModuleBuilder(hostModuleName)

	hostBuilder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, namePtr, nameLen uint32) {
			name, ok := readString(mod, namePtr, nameLen)
			if !ok {
				return
			}
			builder.Rename(name)
		}).
		Export("announce_name")

	hostBuilder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, namePtr, nameLen, fnPtr, fnLen uint32) uint32 {
			name, ok := readString(mod, namePtr, nameLen)
			if !ok {
				return 1
			}
			fn, ok := readString(mod, fnPtr, fnLen)
			if !ok {
				return 1
			}
			builder.AddExport(name, fn)
			return 0
		}).
		Export("register_export")

	hostBuilder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, namePtr, nameLen, verPtr, verLen, flags uint32) uint32 {
			name, ok := readString(mod, namePtr, nameLen)
			if !ok {
				return 1
			}
			version, ok := readString(mod, verPtr, verLen)
			if !ok {
				return 1
			}
			builder.DeclareShared(federation.SharedRequirement{
				Name:       name,
				Version:    version,
				CanProvide: flags&1 != 0,
				CanConsume: flags&2 != 0,
			})
			return 0
		}).
		Export("declare_shared")

	_, err := hostBuilder.Instantiate(ctx)
	return err
}

// guestCaller invokes guest functions using the packed pointer/length
// convention: fn(input_ptr, input_len) -> (output_ptr << 32) | output_len,
// with guest-exported malloc and free managing the crossings.
type guestCaller struct {
	module  api.Module
	timeout time.Duration
}

func (g *guestCaller) call(ctx context.Context, fn string, input []byte) ([]byte, error) {
	target := g.module.ExportedFunction(fn)
	if target == nil {
		return nil, federation.NewExecutionError(fmt.Sprintf("guest does not export function %q", fn), nil)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var inputPtr, inputLen uint32
	if len(input) > 0 {
		ptr, err := g.allocate(ctx, uint32(len(input)))
		if err != nil {
			return nil, err
		}
		defer g.deallocate(ctx, ptr)

		if !g.module.Memory().Write(ptr, input) {
			return nil, federation.NewExecutionError("failed to write input to guest memory", nil)
		}
		inputPtr, inputLen = ptr, uint32(len(input))
	}

	results, err := target.Call(ctx, uint64(inputPtr), uint64(inputLen))
	if err != nil {
		return nil, federation.NewExecutionError(fmt.Sprintf("guest function %q failed", fn), err)
	}
	if len(results) == 0 {
		return nil, federation.NewExecutionError(fmt.Sprintf("guest function %q returned no result", fn), nil)
	}

	packed := results[0]
	outputPtr := uint32(packed >> 32)
	outputLen := uint32(packed & 0xFFFFFFFF)
	if outputLen == 0 {
		return nil, nil
	}

	output, ok := g.module.Memory().Read(outputPtr, outputLen)
	if !ok {
		return nil, federation.NewExecutionError("failed to read output from guest memory", nil)
	}
	out := make([]byte, len(output))
	copy(out, output)

	g.deallocate(ctx, outputPtr)
	return out, nil
}

func (g *guestCaller) allocate(ctx context.Context, size uint32) (uint32, error) {
	malloc := g.module.ExportedFunction("malloc")
	if malloc == nil {
		return 0, federation.NewExecutionError("guest does not export malloc", nil)
	}
	results, err := malloc.Call(ctx, uint64(size))
	if err != nil || len(results) == 0 || results[0] == 0 {
		return 0, federation.NewExecutionError("guest allocation failed", err)
	}
	return uint32(results[0]), nil
}

func (g *guestCaller) deallocate(ctx context.Context, ptr uint32) {
	free := g.module.ExportedFunction("free")
	if free == nil {
		return
	}
	free.Call(ctx, uint64(ptr))
}

func readString(mod api.Module, ptr, length uint32) (string, bool) {
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return "", false
	}
	return string(data), true
}

// resolveEntrypoint resolves a manifest entrypoint against the manifest's
// own location.
func resolveEntrypoint(manifestLocation, entrypoint string) (string, error) {
	ref, err := url.Parse(entrypoint)
	if err != nil {
		return "", err
	}
	if ref.Scheme != "" {
		return entrypoint, nil
	}
	base, err := url.Parse(manifestLocation)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
