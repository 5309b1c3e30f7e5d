// Package policy provides Open Policy Agent (OPA) integration for OpenFed.
//
// This package gates remote container loading using the Rego policy
// language. Containers are evaluated against built-in and custom policies
// before the host resolves exports from them.
//
// # Architecture
//
// The policy system consists of four main components:
//
//  1. Engine - Compiles and evaluates Rego policies
//  2. Checker - Adapts the engine to the host's load gate
//  3. Loader - Loads policies from files, directories, and bundles
//  4. Built-in Policies - Pre-defined policies for common requirements
//
// # Usage
//
// Creating a policy engine and wiring it into a host:
//
//	logger := zerolog.New(os.Stdout)
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	checker := policy.NewChecker(engine, logger)
//	host := federation.NewHost(cache, registry, federation.Options{Policy: checker})
//
// Evaluating a container directly:
//
//	facts := &policy.ContainerFacts{
//	    Name:    "checkout",
//	    Exports: []string{"Cart", "Pay"},
//	}
//
//	result, err := engine.EvaluateContainer(ctx, facts, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if !result.Allowed {
//	    for _, violation := range result.Violations {
//	        fmt.Printf("policy %s violated: %s\n", violation.Policy, violation.Message)
//	    }
//	}
//
// Loading custom policies:
//
//	paths := []string{
//	    "/etc/openfed/policies",
//	    "/opt/policies/custom.rego",
//	}
//
//	err = engine.LoadPolicies(ctx, paths)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Built-in Policies
//
// The following policies are included by default:
//
//  1. export-naming - Enforces export naming conventions
//  2. versioned-shared - Flags shared dependencies declared without a version
//  3. provider-restraint - Limits how many shared dependencies one container provides
//  4. empty-container - Flags containers that export nothing
//
// # Custom Policies
//
// Custom policies can be written in Rego and loaded from files:
//
//	package custom.policies.trusted
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.container
//	    container := input.container
//
//	    # Only allow containers from the internal namespace
//	    not startswith(container.name, "internal-")
//
//	    violation := {
//	        "message": "Containers must come from the internal namespace",
//	        "severity": "error",
//	        "container": container.name,
//	    }
//	}
//
// # Severity Levels
//
// Violations have four severity levels:
//
//   - info: Informational messages
//   - warning: Issues that should be reviewed but don't block loading
//   - error: Issues that block loading
//   - critical: Severe issues requiring immediate attention
//
// Only error and critical violations block loading, and only when the
// checker is in enforcing mode. An advisory checker logs everything and
// blocks nothing.
//
// # Hot Reload
//
// The loader supports watching policy files for changes and reloading
// automatically:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return engine.ReplacePolicies(ctx, policies)
//	})
//
// # Performance
//
// Policies are compiled once and reused for multiple evaluations. The
// engine uses OPA's PreparedEvalQuery and caches parsed policies at both
// the loader and engine levels.
//
// # Context Injection
//
// Policy evaluations can include context information:
//
//   - Environment: Target environment (production, staging, etc.)
//   - Timestamp: When the evaluation occurred
//   - Metadata: Arbitrary deployment metadata
//
// This context allows policies to make environment-aware decisions, such
// as rejecting pre-release shared dependency versions in production.
package policy
