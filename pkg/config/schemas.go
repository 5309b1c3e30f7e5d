package config

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	ctx := cuecontext.New()
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	sr.registerBuiltInSchemas()

	return sr
}

func (sr *SchemaRegistry) registerBuiltInSchemas() {
	sr.RegisterSchema("remote", builtinRemoteSchema)
	sr.RegisterSchema("shared", builtinSharedSchema)
	sr.RegisterSchema("host", builtinHostSchema)
	sr.RegisterSchema("fetch", builtinFetchSchema)
}

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := definitionOf(schema).Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// definitionOf returns the last top-level definition in a schema value,
// or the value itself when it holds none. Schemas are authored as a
// single #Definition per registered name; helper definitions precede it.
func definitionOf(schema cue.Value) cue.Value {
	iter, err := schema.Fields(cue.Definitions(true))
	if err != nil {
		return schema
	}

	def := schema
	found := false
	for iter.Next() {
		if iter.Selector().IsDefinition() {
			def = iter.Value()
			found = true
		}
	}
	if !found {
		return schema
	}
	return def
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// Built-in schema definitions

const builtinRemoteSchema = `
// Remote schema for federation remote definitions
#Remote: {
	// Name is the logical remote name
	name: string & =~"^[a-zA-Z0-9_-]+$"

	// Location is the artifact URL
	location: string & =~"^(https?|file|sftp)://.+|^/.+"

	// Labels are key-value pairs for organizing remotes
	labels?: {[string]: string}
}
`

const builtinSharedSchema = `
// Shared schema for host-provided shared dependency presets
#Shared: {
	// Name is the shared dependency name
	name: string & =~"^[a-zA-Z0-9_-]+$"

	// Version is the version the host provides
	version?: string

	// Value is the concrete instance data
	value?: {...}
}
`

const builtinHostSchema = `
// Host schema for federation host configuration

#Remote: {
	name:     string & =~"^[a-zA-Z0-9_-]+$"
	location: string & =~"^(https?|file|sftp)://.+|^/.+"
	labels?: {[string]: string}
}

#Shared: {
	name:     string & =~"^[a-zA-Z0-9_-]+$"
	version?: string
	value?: {...}
}

#Fetch: {
	timeout_seconds?:    int & >=1
	max_artifact_bytes?: int & >=1
	sftp?: {
		user:                     string
		private_key_path?:        string
		known_hosts_path?:        string
		connect_timeout_seconds?: int & >=1
	}
}

#Host: {
	// Name is the host name
	name: string & =~"^[a-zA-Z0-9_-]+$"

	// Version is the configuration version
	version?: string

	// Environment is the deployment environment
	environment?: "development" | "staging" | "production"

	// Remotes lists the remotes known at startup
	remotes?: [...#Remote]

	// Shared lists shared dependencies the host pre-provisions
	shared?: [...#Shared]

	// Fetch configures artifact fetching
	fetch?: #Fetch

	// Policy configures policy enforcement
	policy?: {
		enabled: bool
		paths?: [...string]
		mode?: "advisory" | "enforcing"
		watch?: bool
	}

	// Store configures the persistent record store
	store?: {
		path?: string
		retain_days?: int & >=1
	}

	// Variables are host-level variables
	variables?: {[string]: _}

	// Metadata contains additional host metadata
	metadata?: {[string]: _}
}
`

const builtinFetchSchema = `
// Fetch schema for artifact fetching configuration
#Fetch: {
	// TimeoutSeconds bounds a single artifact fetch
	timeout_seconds?: int & >=1

	// MaxArtifactBytes caps the size of a fetched artifact
	max_artifact_bytes?: int & >=1

	// SFTP configures sftp:// artifact locations
	sftp?: {
		user: string
		private_key_path?: string
		known_hosts_path?: string
		connect_timeout_seconds?: int & >=1
	}
}
`

// ValidateRemote validates a remote configuration against the remote schema.
func (sr *SchemaRegistry) ValidateRemote(ctx context.Context, remote RemoteConfig) error {
	return sr.ValidateAgainstSchema(ctx, "remote", remote)
}

// ValidateHost validates a host configuration against the host schema.
func (sr *SchemaRegistry) ValidateHost(ctx context.Context, host HostConfig) error {
	return sr.ValidateAgainstSchema(ctx, "host", host)
}

// ValidateShared validates a shared preset against the shared schema.
func (sr *SchemaRegistry) ValidateShared(ctx context.Context, shared SharedPresetConfig) error {
	return sr.ValidateAgainstSchema(ctx, "shared", shared)
}
