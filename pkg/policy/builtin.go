package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		exportNamingPolicy(),
		versionedSharedPolicy(),
		providerRestraintPolicy(),
		emptyContainerPolicy(),
	}
}

// exportNamingPolicy enforces export naming conventions.
func exportNamingPolicy() Policy {
	return Policy{
		Name:        "export-naming",
		Description: "Enforces export naming conventions (letters, digits, underscores, starting with a letter)",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openfed.policies.naming

import rego.v1

deny contains violation if {
	input.container
	some export in input.container.exports

	not regex.match("^[A-Za-z][A-Za-z0-9_]*$", export)
	violation := {
		"message": sprintf("export name '%s' must start with a letter and contain only letters, digits, and underscores", [export]),
		"severity": "error",
		"container": input.container.name,
	}
}

deny contains violation if {
	input.container
	some export in input.container.exports

	count(export) > 128
	violation := {
		"message": sprintf("export name '%s' exceeds 128 characters", [export]),
		"severity": "error",
		"container": input.container.name,
	}
}`,
	}
}

// versionedSharedPolicy flags unversioned shared dependency declarations.
func versionedSharedPolicy() Policy {
	return Policy{
		Name:        "versioned-shared",
		Description: "Flags shared dependency declarations without a version",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"shared", "versioning"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openfed.policies.shared

import rego.v1

deny contains violation if {
	input.container
	some dep in input.container.shared

	not dep.version
	violation := {
		"message": sprintf("shared dependency '%s' is declared without a version", [dep.name]),
		"severity": "warning",
		"container": input.container.name,
	}
}

deny contains violation if {
	input.container
	some dep in input.container.shared

	dep.version == ""
	violation := {
		"message": sprintf("shared dependency '%s' is declared without a version", [dep.name]),
		"severity": "warning",
		"container": input.container.name,
	}
}`,
	}
}

// providerRestraintPolicy warns about containers that offer to provide an
// unusually large number of shared dependencies.
func providerRestraintPolicy() Policy {
	return Policy{
		Name:        "provider-restraint",
		Description: "Warns when a container offers to provide more than 8 shared dependencies",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"shared", "hygiene"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openfed.policies.providers

import rego.v1

max_provided := 8

deny contains violation if {
	input.container

	provided := count([dep |
		some dep in input.container.shared
		dep.can_provide
	])
	provided > max_provided

	violation := {
		"message": sprintf("container offers to provide %d shared dependencies (limit %d)", [provided, max_provided]),
		"severity": "warning",
		"container": input.container.name,
	}
}

# Pre-release provider versions should not reach production.
deny contains violation if {
	input.container
	input.context
	input.context.environment == "production"
	some dep in input.container.shared

	dep.can_provide
	regex.match("(alpha|beta|rc)", dep.version)

	violation := {
		"message": sprintf("shared dependency '%s' version %s is pre-release and must not be provided in production", [dep.name, dep.version]),
		"severity": "error",
		"container": input.container.name,
	}
}`,
	}
}

// emptyContainerPolicy flags containers that executed but expose nothing.
func emptyContainerPolicy() Policy {
	return Policy{
		Name:        "empty-container",
		Description: "Flags containers that loaded but expose no exports",
		Severity:    SeverityInfo,
		Enabled:     true,
		Tags:        []string{"hygiene"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openfed.policies.empty

import rego.v1

deny contains violation if {
	input.container
	count(input.container.exports) == 0

	violation := {
		"message": "container exposes no exports",
		"severity": "info",
		"container": input.container.name,
	}
}`,
	}
}
