package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfed/openfed/pkg/federation"
)

// maxArtifactSize caps a single artifact download at 256 MiB.
const maxArtifactSize = 256 << 20

// HTTPFetcher downloads artifacts over HTTP and HTTPS.
type HTTPFetcher struct {
	client   *http.Client
	logger   zerolog.Logger
	maxBytes int64
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(f *HTTPFetcher) { f.client = client }
}

// WithHTTPMaxBytes overrides the default artifact size limit.
func WithHTTPMaxBytes(n int64) HTTPOption {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithHTTPLogger sets the fetcher logger.
func WithHTTPLogger(logger zerolog.Logger) HTTPOption {
	return func(f *HTTPFetcher) {
		f.logger = logger.With().Str("component", "http-fetcher").Logger()
	}
}

// NewHTTPFetcher creates a fetcher with a 30 second request timeout.
func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   zerolog.Nop(),
		maxBytes: maxArtifactSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Schemes implements Fetcher.
func (f *HTTPFetcher) Schemes() []string {
	return []string{"http", "https"}
}

// Fetch implements Fetcher. A transport failure maps to a network error;
// an HTTP 404 or 410 maps to not-found; any other non-2xx status maps to
// a network error carrying the status.
func (f *HTTPFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, federation.NewNetworkError(fmt.Sprintf("invalid artifact location %q", location), err).WithLocation(location)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, federation.NewNetworkError("artifact fetch failed", err).WithLocation(location)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, federation.NewNotFoundError(fmt.Sprintf("artifact not found (HTTP %d)", resp.StatusCode), nil).WithLocation(location)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, federation.NewNetworkError(fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode), nil).WithLocation(location)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, federation.NewNetworkError("artifact download interrupted", err).WithLocation(location)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, federation.NewNetworkError(fmt.Sprintf("artifact exceeds size limit of %d bytes", f.maxBytes), nil).WithLocation(location)
	}

	f.logger.Debug().
		Str("location", location).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("artifact fetched")

	return data, nil
}

// FileFetcher reads artifacts from the local filesystem via file:// URLs
// or bare paths.
type FileFetcher struct {
	logger zerolog.Logger
}

// NewFileFetcher creates a filesystem fetcher.
func NewFileFetcher(logger zerolog.Logger) *FileFetcher {
	return &FileFetcher{logger: logger.With().Str("component", "file-fetcher").Logger()}
}

// Schemes implements Fetcher.
func (f *FileFetcher) Schemes() []string {
	return []string{"file", ""}
}

// Fetch implements Fetcher.
func (f *FileFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	path := strings.TrimPrefix(location, "file://")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, federation.NewNotFoundError("artifact file does not exist", err).WithLocation(location)
		}
		return nil, federation.NewNetworkError("artifact file unreadable", err).WithLocation(location)
	}

	f.logger.Debug().Str("location", location).Int("bytes", len(data)).Msg("artifact read from disk")
	return data, nil
}

// FetcherMux routes fetches to a registered fetcher by URL scheme.
type FetcherMux struct {
	byScheme map[string]Fetcher
}

// NewFetcherMux builds a mux over the given fetchers. Later fetchers win
// on scheme collisions.
func NewFetcherMux(fetchers ...Fetcher) *FetcherMux {
	m := &FetcherMux{byScheme: make(map[string]Fetcher)}
	for _, f := range fetchers {
		for _, scheme := range f.Schemes() {
			m.byScheme[scheme] = f
		}
	}
	return m
}

// Register adds or replaces the fetcher for its schemes.
func (m *FetcherMux) Register(f Fetcher) {
	for _, scheme := range f.Schemes() {
		m.byScheme[scheme] = f
	}
}

// Schemes implements Fetcher.
func (m *FetcherMux) Schemes() []string {
	schemes := make([]string, 0, len(m.byScheme))
	for scheme := range m.byScheme {
		schemes = append(schemes, scheme)
	}
	return schemes
}

// Fetch implements Fetcher, dispatching on the location's scheme. An
// unsupported scheme maps to a network error: the location is not
// retrievable by this host.
func (m *FetcherMux) Fetch(ctx context.Context, location string) ([]byte, error) {
	scheme := schemeOf(location)
	fetcher, ok := m.byScheme[scheme]
	if !ok {
		return nil, federation.NewNetworkError(fmt.Sprintf("no fetcher for scheme %q", scheme), nil).WithLocation(location)
	}
	return fetcher.Fetch(ctx, location)
}

func schemeOf(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	return u.Scheme
}
