package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// RemoteConfig maps a logical remote name to an artifact location.
type RemoteConfig struct {
	// Name is the logical remote name, e.g. "checkout".
	Name string `json:"name" validate:"required"`

	// Location is the artifact URL (http, https, file, or sftp).
	Location string `json:"location" validate:"required"`

	// Labels are key-value pairs for organizing remotes.
	Labels map[string]string `json:"labels,omitempty"`
}

// SharedPresetConfig declares a shared dependency the host pre-provisions
// before any remote can offer its own copy.
type SharedPresetConfig struct {
	// Name is the shared dependency name, e.g. "ui-kit".
	Name string `json:"name" validate:"required"`

	// Version is the version the host provides.
	Version string `json:"version,omitempty"`

	// Value is the concrete instance data exposed to consumers.
	Value json.RawMessage `json:"value,omitempty"`
}

// FetchConfig configures artifact fetching.
type FetchConfig struct {
	// TimeoutSeconds bounds a single artifact fetch.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" validate:"omitempty,gte=1"`

	// MaxArtifactBytes caps the size of a fetched artifact.
	MaxArtifactBytes int64 `json:"max_artifact_bytes,omitempty" validate:"omitempty,gte=1"`

	// SFTP configures sftp:// artifact locations.
	SFTP *SFTPFetchConfig `json:"sftp,omitempty"`
}

// SFTPFetchConfig configures SFTP artifact fetching.
type SFTPFetchConfig struct {
	// User is the SSH user name.
	User string `json:"user" validate:"required"`

	// PrivateKeyPath is the path to the SSH private key.
	PrivateKeyPath string `json:"private_key_path,omitempty"`

	// KnownHostsPath is the path to the known_hosts file.
	KnownHostsPath string `json:"known_hosts_path,omitempty"`

	// ConnectTimeoutSeconds bounds SSH connection establishment.
	ConnectTimeoutSeconds int `json:"connect_timeout_seconds,omitempty" validate:"omitempty,gte=1"`
}

// PolicyConfig configures policy enforcement for container loads.
type PolicyConfig struct {
	// Enabled indicates if policy enforcement is enabled.
	Enabled bool `json:"enabled"`

	// Paths lists policy file paths.
	Paths []string `json:"paths,omitempty"`

	// Mode is the enforcement mode (advisory, enforcing).
	Mode string `json:"mode,omitempty" validate:"omitempty,oneof=advisory enforcing"`

	// Watch reloads policies when files under Paths change.
	Watch bool `json:"watch,omitempty"`
}

// StoreConfig configures the persistent record store.
type StoreConfig struct {
	// Path is the SQLite database path. Empty means in-memory.
	Path string `json:"path,omitempty"`

	// RetainDays is how long resolution records are kept.
	RetainDays int `json:"retain_days,omitempty" validate:"omitempty,gte=1"`
}

// HostConfig is the top-level federation host configuration.
type HostConfig struct {
	// Name is the host name.
	Name string `json:"name" validate:"required"`

	// Version is the configuration version.
	Version string `json:"version,omitempty"`

	// Environment is the deployment environment (development, staging,
	// production). Policy evaluation sees this value.
	Environment string `json:"environment,omitempty"`

	// Remotes lists the remotes known at startup.
	Remotes []RemoteConfig `json:"remotes,omitempty"`

	// Shared lists shared dependencies the host pre-provisions.
	Shared []SharedPresetConfig `json:"shared,omitempty"`

	// Fetch configures artifact fetching.
	Fetch *FetchConfig `json:"fetch,omitempty"`

	// Policy configures policy enforcement.
	Policy *PolicyConfig `json:"policy,omitempty"`

	// Store configures the persistent record store.
	Store *StoreConfig `json:"store,omitempty"`

	// Variables are host-level variables available to Starlark scripts.
	Variables map[string]interface{} `json:"variables,omitempty"`

	// Metadata contains additional host metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ParsedConfig represents the fully parsed configuration from CUE.
type ParsedConfig struct {
	// Host is the host configuration.
	Host HostConfig `json:"host"`

	// SourceFiles are the CUE files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the configuration was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists any validation errors.
	Errors []ValidationError `json:"errors,omitempty"`
}

// RemoteLocations returns the logical name to location mapping for all
// configured remotes. Later entries with a duplicate name win.
func (pc *ParsedConfig) RemoteLocations() map[string]string {
	locations := make(map[string]string, len(pc.Host.Remotes))
	for _, r := range pc.Host.Remotes {
		locations[r.Name] = r.Location
	}
	return locations
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error (e.g., "host.remotes.checkout").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

// Error formats the validation error with its source position when known.
func (e ValidationError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	default:
		return e.Message
	}
}

// ConfigSource represents a source of CUE configuration.
type ConfigSource struct {
	// Type is the source type (file, directory, inline).
	Type string `json:"type" validate:"required,oneof=file directory inline"`

	// Path is the file or directory path.
	Path string `json:"path,omitempty"`

	// Content is the inline CUE content.
	Content string `json:"content,omitempty"`
}

// StarlarkContext provides context for Starlark execution.
type StarlarkContext struct {
	// Input is the input data passed to Starlark.
	Input map[string]interface{} `json:"input,omitempty"`

	// Timeout is the execution timeout.
	Timeout time.Duration `json:"timeout"`

	// AllowedModules lists allowed Starlark modules.
	AllowedModules []string `json:"allowed_modules,omitempty"`

	// Builtins are additional built-in functions to provide.
	Builtins map[string]interface{} `json:"builtins,omitempty"`
}

// StarlarkResult represents the result of Starlark execution.
type StarlarkResult struct {
	// Output is the output data from Starlark.
	Output map[string]interface{} `json:"output,omitempty"`

	// ExecutionTime is how long the script took to execute.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}
