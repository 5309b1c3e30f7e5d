package stores

import (
	"context"
	"database/sql"
	"time"
)

// ArtifactState mirrors the cache lifecycle of an artifact record.
type ArtifactState string

const (
	ArtifactStateFetching ArtifactState = "fetching"
	ArtifactStateLoaded   ArtifactState = "loaded"
	ArtifactStateFailed   ArtifactState = "failed"
)

// ResolutionState is the terminal state of a recorded resolution request.
type ResolutionState string

const (
	ResolutionStateRunning  ResolutionState = "running"
	ResolutionStateResolved ResolutionState = "resolved"
	ResolutionStateFailed   ResolutionState = "failed"
)

// EventLevel represents the severity level of a recorded event.
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// ArtifactRecord is the persisted history of one artifact location.
type ArtifactRecord struct {
	Location  string        `json:"location"`
	Container string        `json:"container"`
	Version   string        `json:"version"`
	State     ArtifactState `json:"state"`
	Error     *string       `json:"error,omitempty"`
	SizeBytes int64         `json:"size_bytes"`
	FetchedAt time.Time     `json:"fetched_at"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ResolutionRecord is the audit entry for one module resolution request.
type ResolutionRecord struct {
	ID         string          `json:"id"`
	Remote     string          `json:"remote"`
	Export     string          `json:"export"`
	Location   *string         `json:"location,omitempty"`
	State      ResolutionState `json:"state"`
	Error      *string         `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	DurationMS *int64          `json:"duration_ms,omitempty"`
}

// SharedRecord is the provenance entry for one shared dependency: who
// provided it and which remotes consume it.
type SharedRecord struct {
	Name       string    `json:"name"`
	Version    string    `json:"version"`
	Origin     string    `json:"origin"`
	Consumers  string    `json:"consumers"` // JSON array of remote names
	ProvidedAt time.Time `json:"provided_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// EventRecord is a persisted telemetry event.
type EventRecord struct {
	ID        int64      `json:"id"`
	EventID   string     `json:"event_id"`
	Type      string     `json:"type"`
	Source    string     `json:"source"`
	Remote    *string    `json:"remote,omitempty"`
	Export    *string    `json:"export,omitempty"`
	Location  *string    `json:"location,omitempty"`
	Shared    *string    `json:"shared,omitempty"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// Store defines the interface for the persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Artifact operations
	UpsertArtifact(ctx context.Context, record *ArtifactRecord) error
	GetArtifact(ctx context.Context, location string) (*ArtifactRecord, error)
	ListArtifacts(ctx context.Context, limit, offset int) ([]*ArtifactRecord, error)
	DeleteArtifact(ctx context.Context, location string) error

	// Resolution operations
	CreateResolution(ctx context.Context, record *ResolutionRecord) error
	FinishResolution(ctx context.Context, id string, state ResolutionState, errMsg *string) error
	GetResolution(ctx context.Context, id string) (*ResolutionRecord, error)
	ListResolutions(ctx context.Context, remote *string, limit, offset int) ([]*ResolutionRecord, error)
	PruneResolutions(ctx context.Context, before time.Time) (int64, error)

	// Shared dependency provenance operations
	UpsertShared(ctx context.Context, record *SharedRecord) error
	GetShared(ctx context.Context, name string) (*SharedRecord, error)
	ListShared(ctx context.Context, limit, offset int) ([]*SharedRecord, error)

	// Event operations
	AppendEvent(ctx context.Context, event *EventRecord) error
	GetEvents(ctx context.Context, remote *string, level *EventLevel, limit, offset int) ([]*EventRecord, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
