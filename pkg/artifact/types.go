// Package artifact handles fetching, loading, and caching of remote
// container artifacts. The cache guarantees at most one fetch attempt per
// location: concurrent requests for the same artifact share a single
// in-flight load, and a failed load stays failed until explicitly reset.
package artifact

import (
	"context"
	"time"

	"github.com/openfed/openfed/pkg/federation"
)

// LoadState tracks the lifecycle of one cached artifact.
type LoadState string

const (
	// StateFetching means a load attempt is in flight.
	StateFetching LoadState = "fetching"

	// StateLoaded means the artifact was fetched and executed; the
	// container is available.
	StateLoaded LoadState = "loaded"

	// StateFailed means a load attempt failed. The entry stays failed
	// until Reset; further requests get a load-aborted error carrying the
	// original cause.
	StateFailed LoadState = "failed"
)

// Fetcher retrieves raw artifact bytes for one URL scheme.
type Fetcher interface {
	// Fetch downloads the artifact at location. Unreachable hosts and
	// transport failures yield a network error; a reachable host that
	// reports the artifact missing yields a not-found error.
	Fetch(ctx context.Context, location string) ([]byte, error)

	// Schemes lists the URL schemes this fetcher serves.
	Schemes() []string
}

// Executor turns fetched artifact bytes into a live container. A broken
// or crashing artifact yields an execution error; an artifact that runs
// but registers nothing yields an empty container, not an error.
type Executor interface {
	Execute(ctx context.Context, location string, data []byte) (federation.Container, error)
}

// Record is the observable state of one cache entry.
type Record struct {
	Location  string    `json:"location"`
	State     LoadState `json:"state"`
	Container string    `json:"container,omitempty"`
	Error     string    `json:"error,omitempty"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
	SizeBytes int64     `json:"size_bytes,omitempty"`
}
