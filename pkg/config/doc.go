// Package config provides CUE configuration parsing and Starlark evaluation
// for the OpenFed federation host.
//
// # Overview
//
// The config package implements the configuration phase of OpenFed,
// responsible for parsing CUE files that declare the host, its remotes,
// and its shared dependency presets, and for executing Starlark scripts
// that build remote definitions procedurally.
//
// # Features
//
//   - CUE configuration parsing from files, directories, and inline content
//   - Schema validation with built-in schemas for hosts, remotes, and shared presets
//   - Starlark script execution for procedural remote definitions
//   - Type-safe configuration structures
//   - Error reporting with file locations and line numbers
//   - Hot reload of configuration sources via file watching
//
// # Components
//
// CUEParser: Main parser for CUE configuration files. Produces a HostConfig
// that can be applied to a running federation host.
//
// SchemaRegistry: Manages CUE schemas for validation. Provides built-in
// schemas for common configuration patterns and supports custom schema
// registration.
//
// StarlarkEvaluator: Safe Starlark script execution with timeout enforcement
// and sandboxing. Provides built-in functions and type conversion between Go
// and Starlark.
//
// Watcher: Re-parses configuration when source files change, so remotes can
// be registered and replaced without restarting the host.
//
// # Usage Example
//
//	// Create a new parser
//	parser := config.NewCUEParser()
//
//	// Parse configuration files
//	cfg, err := parser.Evaluate(ctx, []string{"host.cue", "remotes.cue"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Register configured remotes with a running host
//	parser.ApplyRemotes(cfg, host)
//
//	// Execute Starlark for procedural remote definitions
//	input := map[string]interface{}{"env": "staging"}
//	remotes, err := parser.EvaluateStarlarkRemotes(ctx, script, input)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # CUE Configuration Structure
//
// OpenFed uses CUE to define the host and its remotes with strong typing
// and validation. A typical configuration includes:
//
//	host: {
//	    name: "storefront"
//	    environment: "production"
//	    shared: [
//	        {name: "ui-kit", version: "2.1.0"},
//	    ]
//	    policy: {
//	        enabled: true
//	        mode: "enforcing"
//	    }
//	}
//
//	remotes: {
//	    checkout: {
//	        location: "https://cdn.example.com/checkout/container.wasm"
//	        labels: {team: "payments"}
//	    }
//	    profile: {
//	        location: "sftp://artifacts.internal/profile/manifest.yaml"
//	    }
//	}
//
// # Starlark Integration
//
// Starlark scripts can build remote lists programmatically:
//
//	# One remote per tenant
//	remotes = [
//	    remote(
//	        "shop-" + tenant,
//	        location("https", cdn_host, tenant + "/container.wasm"),
//	    )
//	    for tenant in tenants
//	]
//
// The remote() and location() builders are predeclared alongside the
// host-supplied input variables. Plain dicts with name and location
// keys work too. Helper functions and underscore-prefixed globals stay
// private to the script.
//
// # Schema Validation
//
// Built-in schemas enforce configuration correctness:
//
//   - Host schema: Validates the top-level host configuration
//   - Remote schema: Validates remote name and location format
//   - Shared schema: Validates shared dependency presets
//   - Fetch schema: Validates artifact fetching settings
//
// Custom schemas can be registered for deployment-specific validation.
//
// # Error Handling
//
// All parsing and validation errors include detailed location information:
//
//	ValidationError{
//	    File: "remotes.cue",
//	    Line: 12,
//	    Column: 5,
//	    Path: "remotes.checkout",
//	    Message: "field 'location' is required",
//	    Severity: "error",
//	}
//
// # Security
//
// Starlark execution is sandboxed:
//   - No filesystem access
//   - No network access
//   - Timeout enforcement (default 30 seconds)
//   - Print statements suppressed
//   - Only safe built-in functions provided
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package config
