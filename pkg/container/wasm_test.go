package container

import (
	"context"
	"testing"

	"github.com/openfed/openfed/pkg/federation"
)

func TestExecuteRejectsGarbage(t *testing.T) {
	e := NewExecutor(nil)

	_, err := e.Execute(context.Background(), "https://cdn.example.com/app.bin", []byte("not an artifact"))
	if !federation.IsExecution(err) {
		t.Fatalf("expected execution error, got %v", err)
	}
}

func TestExecuteBundleRequiresFetcher(t *testing.T) {
	e := NewExecutor(nil)

	_, err := e.Execute(context.Background(), "https://cdn.example.com/manifest.yaml", []byte(validManifest))
	if !federation.IsExecution(err) {
		t.Fatalf("expected execution error, got %v", err)
	}
}

func TestExecuteTruncatedWASM(t *testing.T) {
	e := NewExecutor(nil)

	// Valid magic, invalid module body.
	data := []byte{0x00, 0x61, 0x73, 0x6d, 0x01}
	_, err := e.Execute(context.Background(), "https://cdn.example.com/app.wasm", data)
	if !federation.IsExecution(err) {
		t.Fatalf("expected execution error, got %v", err)
	}
}
