package artifact

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfed/openfed/pkg/federation"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestHTTPFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/app.wasm":
			w.Write([]byte("artifact-bytes"))
		case "/gone":
			w.WriteHeader(http.StatusGone)
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher()

	t.Run("success", func(t *testing.T) {
		data, err := fetcher.Fetch(context.Background(), server.URL+"/app.wasm")
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if string(data) != "artifact-bytes" {
			t.Fatalf("unexpected payload %q", data)
		}
	})

	t.Run("missing artifact", func(t *testing.T) {
		_, err := fetcher.Fetch(context.Background(), server.URL+"/nope.wasm")
		if !federation.IsNotFound(err) {
			t.Fatalf("expected not-found error, got %v", err)
		}
	})

	t.Run("gone artifact", func(t *testing.T) {
		_, err := fetcher.Fetch(context.Background(), server.URL+"/gone")
		if !federation.IsNotFound(err) {
			t.Fatalf("expected not-found error, got %v", err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		_, err := fetcher.Fetch(context.Background(), server.URL+"/broken")
		if !federation.IsNetwork(err) {
			t.Fatalf("expected network error, got %v", err)
		}
	})

	t.Run("unreachable host", func(t *testing.T) {
		_, err := fetcher.Fetch(context.Background(), "http://127.0.0.1:1/app.wasm")
		if !federation.IsNetwork(err) {
			t.Fatalf("expected network error, got %v", err)
		}
	})
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.wasm")
	if err := os.WriteFile(path, []byte("local-artifact"), 0o644); err != nil {
		t.Fatal(err)
	}

	fetcher := NewFileFetcher(testLogger())

	t.Run("success", func(t *testing.T) {
		data, err := fetcher.Fetch(context.Background(), "file://"+path)
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if string(data) != "local-artifact" {
			t.Fatalf("unexpected payload %q", data)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := fetcher.Fetch(context.Background(), "file://"+filepath.Join(dir, "missing.wasm"))
		if !federation.IsNotFound(err) {
			t.Fatalf("expected not-found error, got %v", err)
		}
	})
}

func TestFetcherMux(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.wasm")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	mux := NewFetcherMux(NewHTTPFetcher(), NewFileFetcher(testLogger()))

	t.Run("routes by scheme", func(t *testing.T) {
		if _, err := mux.Fetch(context.Background(), "file://"+path); err != nil {
			t.Fatalf("file fetch via mux failed: %v", err)
		}
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := mux.Fetch(context.Background(), "ftp://example.com/app.wasm")
		if !federation.IsNetwork(err) {
			t.Fatalf("expected network error for unsupported scheme, got %v", err)
		}
	})
}
