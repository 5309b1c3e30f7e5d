// Package federation provides the core types and interfaces for the OpenFed
// runtime federation host. It defines the resolution workflow:
// Register -> Load -> Negotiate -> Resolve.
package federation

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a resolution failure. Errors surface to the caller of
// ResolveModule with their kind unchanged; the host never wraps or retries.
type ErrorKind string

const (
	// KindNetwork indicates the artifact fetch failed at the transport level.
	// Examples: connection refused, DNS failure, truncated body.
	KindNetwork ErrorKind = "network"

	// KindNotFound indicates the artifact location does not exist (e.g. HTTP 404)
	// or the requested remote name has no registered location.
	KindNotFound ErrorKind = "not_found"

	// KindExportNotFound indicates the artifact loaded and executed but did not
	// register the requested export at the agreed handoff point.
	KindExportNotFound ErrorKind = "export_not_found"

	// KindSharedConflict indicates two parties attempted to be the authoritative
	// provider for the same shared dependency under a strict policy.
	KindSharedConflict ErrorKind = "shared_conflict"

	// KindLoadAborted indicates the artifact was previously marked failed and is
	// not re-attempted without an explicit cache reset.
	KindLoadAborted ErrorKind = "load_aborted"

	// KindExecution indicates the artifact fetched but failed to execute.
	KindExecution ErrorKind = "execution"
)

// Error is a classified federation error with resolution context.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Location is the artifact location involved, if applicable.
	Location string `json:"location,omitempty"`

	// Remote is the logical remote name involved, if applicable.
	Remote string `json:"remote,omitempty"`

	// Export is the export name involved, if applicable.
	Export string `json:"export,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Remote != "" {
		msg += fmt.Sprintf(" (remote=%s", e.Remote)
		if e.Export != "" {
			msg += fmt.Sprintf(", export=%s", e.Export)
		}
		msg += ")"
	} else if e.Location != "" {
		msg += fmt.Sprintf(" (location=%s)", e.Location)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithLocation adds the artifact location to an error.
func (e *Error) WithLocation(location string) *Error {
	e.Location = location
	return e
}

// WithRemote adds remote and export context to an error.
func (e *Error) WithRemote(remote, export string) *Error {
	e.Remote = remote
	e.Export = export
	return e
}

// NewNetworkError creates a network-kind error.
func NewNetworkError(message string, err error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Err: err}
}

// NewNotFoundError creates a not-found-kind error.
func NewNotFoundError(message string, err error) *Error {
	return &Error{Kind: KindNotFound, Message: message, Err: err}
}

// NewExportNotFoundError creates an export-not-found error for the given
// container and export name.
func NewExportNotFoundError(container, export string) *Error {
	return &Error{
		Kind:    KindExportNotFound,
		Message: fmt.Sprintf("container %s does not expose %q", container, export),
		Remote:  container,
		Export:  export,
	}
}

// NewSharedConflictError creates a shared-dependency conflict error.
func NewSharedConflictError(name, origin, claimant string) *Error {
	return &Error{
		Kind: KindSharedConflict,
		Message: fmt.Sprintf("shared dependency %q already provided by %s, rejected provider %s",
			name, origin, claimant),
	}
}

// NewLoadAbortedError creates a load-aborted error for a location whose
// previous load attempt failed.
func NewLoadAbortedError(location string, cause error) *Error {
	return &Error{
		Kind:     KindLoadAborted,
		Message:  "artifact previously failed to load, reset required",
		Location: location,
		Err:      cause,
	}
}

// NewExecutionError creates an execution-kind error.
func NewExecutionError(message string, err error) *Error {
	return &Error{Kind: KindExecution, Message: message, Err: err}
}

// KindOf returns the kind of a federation error, or an empty kind for
// foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNetwork reports whether err is classified as a network failure.
func IsNetwork(err error) bool { return KindOf(err) == KindNetwork }

// IsNotFound reports whether err is classified as not found.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsExportNotFound reports whether err is classified as a missing export.
func IsExportNotFound(err error) bool { return KindOf(err) == KindExportNotFound }

// IsSharedConflict reports whether err is a shared-dependency conflict.
func IsSharedConflict(err error) bool { return KindOf(err) == KindSharedConflict }

// IsLoadAborted reports whether err is classified as an aborted load.
func IsLoadAborted(err error) bool { return KindOf(err) == KindLoadAborted }

// IsExecution reports whether err is classified as an execution failure.
func IsExecution(err error) bool { return KindOf(err) == KindExecution }
