package federation

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"network", NewNetworkError("dial failed", nil), KindNetwork},
		{"not found", NewNotFoundError("gone", nil), KindNotFound},
		{"export not found", NewExportNotFoundError("checkout", "Cart"), KindExportNotFound},
		{"shared conflict", NewSharedConflictError("ui-kit", "host", "checkout"), KindSharedConflict},
		{"load aborted", NewLoadAbortedError("https://x/a.wasm", nil), KindLoadAborted},
		{"execution", NewExecutionError("trap", nil), KindExecution},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.kind {
				t.Fatalf("got kind %q, want %q", got, tc.kind)
			}
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewNetworkError("fetch failed", cause).WithLocation("https://cdn.example.com/a.wasm")

	if !errors.Is(err, cause) {
		t.Fatal("cause should be reachable through the chain")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("message should include the cause: %s", err.Error())
	}
	if !strings.Contains(err.Error(), "cdn.example.com") {
		t.Fatalf("message should include the location: %s", err.Error())
	}

	aborted := NewLoadAbortedError("https://cdn.example.com/a.wasm", err)
	if KindOf(aborted) != KindLoadAborted {
		t.Fatal("outer kind should be load aborted")
	}
	if KindOf(errors.Unwrap(aborted)) != KindNetwork {
		t.Fatal("inner kind should be preserved")
	}
}

func TestErrorIsMatchesByKind(t *testing.T) {
	a := NewNetworkError("one", nil)
	b := NewNetworkError("two", nil)
	if !errors.Is(a, b) {
		t.Fatal("errors of the same kind should match")
	}
	if errors.Is(a, NewExecutionError("other", nil)) {
		t.Fatal("errors of different kinds should not match")
	}
}
