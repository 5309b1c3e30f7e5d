package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const validHostCUE = `
host: {
	name:        "storefront"
	version:     "1.0"
	environment: "staging"
	shared: [
		{name: "ui-kit", version: "2.1.0"},
	]
	policy: {
		enabled: true
		mode:    "enforcing"
	}
	store: {
		path: "/var/lib/openfed/records.db"
	}
}

remotes: {
	checkout: {
		location: "https://cdn.example.com/checkout/container.wasm"
		labels: {team: "payments"}
	}
	profile: {
		location: "sftp://artifacts.internal/profile/manifest.yaml"
	}
}
`

func TestParseInline(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	parsed, err := parser.ParseInline(ctx, validHostCUE)
	if err != nil {
		t.Fatalf("ParseInline failed: %v", err)
	}

	if len(parsed.Errors) > 0 {
		t.Fatalf("unexpected validation errors: %v", parsed.Errors)
	}

	if parsed.Host.Name != "storefront" {
		t.Errorf("host name = %q, want storefront", parsed.Host.Name)
	}
	if parsed.Host.Environment != "staging" {
		t.Errorf("environment = %q, want staging", parsed.Host.Environment)
	}

	if len(parsed.Host.Shared) != 1 || parsed.Host.Shared[0].Name != "ui-kit" {
		t.Errorf("unexpected shared presets: %+v", parsed.Host.Shared)
	}

	if parsed.Host.Policy == nil || !parsed.Host.Policy.Enabled || parsed.Host.Policy.Mode != "enforcing" {
		t.Errorf("unexpected policy config: %+v", parsed.Host.Policy)
	}

	if len(parsed.Host.Remotes) != 2 {
		t.Fatalf("expected 2 remotes, got %d", len(parsed.Host.Remotes))
	}

	locations := parsed.RemoteLocations()
	if locations["checkout"] != "https://cdn.example.com/checkout/container.wasm" {
		t.Errorf("unexpected checkout location: %q", locations["checkout"])
	}
	if locations["profile"] != "sftp://artifacts.internal/profile/manifest.yaml" {
		t.Errorf("unexpected profile location: %q", locations["profile"])
	}
}

func TestParseInline_RemoteList(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	content := `
host: name: "storefront"

remotes: [
	{name: "checkout", location: "https://cdn.example.com/checkout.wasm"},
	{name: "search", location: "file:///opt/remotes/search.wasm"},
]
`

	parsed, err := parser.ParseInline(ctx, content)
	if err != nil {
		t.Fatalf("ParseInline failed: %v", err)
	}
	if len(parsed.Errors) > 0 {
		t.Fatalf("unexpected validation errors: %v", parsed.Errors)
	}

	if len(parsed.Host.Remotes) != 2 {
		t.Fatalf("expected 2 remotes, got %d", len(parsed.Host.Remotes))
	}
	if parsed.Host.Remotes[1].Name != "search" {
		t.Errorf("remotes[1].Name = %q, want search", parsed.Host.Remotes[1].Name)
	}
}

func TestParseInline_MissingLocation(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	content := `
remotes: {
	checkout: {
		labels: {team: "payments"}
	}
}
`

	parsed, err := parser.ParseInline(ctx, content)
	if err != nil {
		t.Fatalf("ParseInline failed: %v", err)
	}

	if len(parsed.Errors) == 0 {
		t.Fatal("expected validation error for remote without location")
	}
}

func TestParseInline_SyntaxError(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	parsed, err := parser.ParseInline(ctx, "host: { name: ")
	if err != nil {
		t.Fatalf("ParseInline failed: %v", err)
	}

	if len(parsed.Errors) == 0 {
		t.Fatal("expected parse errors for invalid CUE")
	}
}

func TestParseFile(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "host.cue")

	if err := os.WriteFile(configFile, []byte(validHostCUE), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	parsed, err := parser.Parse(ctx, []string{configFile})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(parsed.Errors) > 0 {
		t.Fatalf("unexpected validation errors: %v", parsed.Errors)
	}

	if parsed.Host.Name != "storefront" {
		t.Errorf("host name = %q, want storefront", parsed.Host.Name)
	}
	if len(parsed.SourceFiles) != 1 || parsed.SourceFiles[0] != configFile {
		t.Errorf("unexpected source files: %v", parsed.SourceFiles)
	}
}

func TestParse_MultipleSources(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	tmpDir := t.TempDir()
	hostFile := filepath.Join(tmpDir, "host.cue")
	remotesFile := filepath.Join(tmpDir, "remotes.cue")

	hostContent := `
host: {
	name:        "storefront"
	environment: "development"
}
`
	remotesContent := `
remotes: {
	checkout: location: "https://cdn.example.com/checkout.wasm"
}
`

	if err := os.WriteFile(hostFile, []byte(hostContent), 0644); err != nil {
		t.Fatalf("failed to write host file: %v", err)
	}
	if err := os.WriteFile(remotesFile, []byte(remotesContent), 0644); err != nil {
		t.Fatalf("failed to write remotes file: %v", err)
	}

	parsed, err := parser.Parse(ctx, []string{hostFile, remotesFile})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(parsed.Errors) > 0 {
		t.Fatalf("unexpected validation errors: %v", parsed.Errors)
	}

	if parsed.Host.Name != "storefront" {
		t.Errorf("host name = %q, want storefront", parsed.Host.Name)
	}
	if len(parsed.Host.Remotes) != 1 || parsed.Host.Remotes[0].Name != "checkout" {
		t.Errorf("unexpected remotes: %+v", parsed.Host.Remotes)
	}
}

func TestParse_MissingSource(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	if _, err := parser.Parse(ctx, []string{"/nonexistent/host.cue"}); err == nil {
		t.Error("expected error for missing source")
	}

	if _, err := parser.Parse(ctx, nil); err == nil {
		t.Error("expected error for empty sources")
	}
}

func TestEvaluate(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "host.cue")

	if err := os.WriteFile(configFile, []byte(validHostCUE), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := parser.Evaluate(ctx, []string{configFile})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if cfg.Name != "storefront" {
		t.Errorf("host name = %q, want storefront", cfg.Name)
	}
	if len(cfg.Remotes) != 2 {
		t.Errorf("expected 2 remotes, got %d", len(cfg.Remotes))
	}
}

func TestEvaluate_FailsOnValidationErrors(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "host.cue")

	content := `
remotes: {
	checkout: {}
}
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := parser.Evaluate(ctx, []string{configFile}); err == nil {
		t.Error("expected Evaluate to fail on validation errors")
	}
}

type registrarStub struct {
	registered map[string]string
}

func (r *registrarStub) RegisterRemote(name, location string) {
	if r.registered == nil {
		r.registered = make(map[string]string)
	}
	r.registered[name] = location
}

func TestApplyRemotes(t *testing.T) {
	parser := NewCUEParser()

	cfg := &HostConfig{
		Remotes: []RemoteConfig{
			{Name: "checkout", Location: "https://cdn.example.com/checkout.wasm"},
			{Name: "profile", Location: "file:///opt/remotes/profile.wasm"},
		},
	}

	registrar := &registrarStub{}
	parser.ApplyRemotes(cfg, registrar)

	if len(registrar.registered) != 2 {
		t.Fatalf("expected 2 registrations, got %d", len(registrar.registered))
	}
	if registrar.registered["checkout"] != "https://cdn.example.com/checkout.wasm" {
		t.Errorf("unexpected checkout location: %q", registrar.registered["checkout"])
	}
}

func TestEvaluateStarlarkRemotes(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	script := `
remotes = [
    {
        "name": "shop-" + tenant,
        "location": base_url + "/" + tenant + "/container.wasm",
    }
    for tenant in tenants
]
`

	input := map[string]interface{}{
		"base_url": "https://cdn.example.com",
		"tenants":  []interface{}{"alfa", "bravo"},
	}

	remotes, err := parser.EvaluateStarlarkRemotes(ctx, script, input)
	if err != nil {
		t.Fatalf("EvaluateStarlarkRemotes failed: %v", err)
	}

	if len(remotes) != 2 {
		t.Fatalf("expected 2 remotes, got %d", len(remotes))
	}
	if remotes[0].Name != "shop-alfa" {
		t.Errorf("remotes[0].Name = %q, want shop-alfa", remotes[0].Name)
	}
	if remotes[1].Location != "https://cdn.example.com/bravo/container.wasm" {
		t.Errorf("unexpected location: %q", remotes[1].Location)
	}
}

func TestEvaluateStarlarkRemotes_Errors(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	t.Run("missing remotes global", func(t *testing.T) {
		_, err := parser.EvaluateStarlarkRemotes(ctx, `other = 1`, nil)
		if err == nil {
			t.Error("expected error for missing remotes global")
		}
	})

	t.Run("remote without location", func(t *testing.T) {
		script := `remotes = [{"name": "broken"}]`
		_, err := parser.EvaluateStarlarkRemotes(ctx, script, nil)
		if err == nil {
			t.Error("expected validation error for remote without location")
		}
	})
}

func TestExtractValue(t *testing.T) {
	parser := NewCUEParser()

	val := parser.ctx.CompileString(validHostCUE)

	name, err := parser.ExtractValue(val, "host.name")
	if err != nil {
		t.Fatalf("ExtractValue failed: %v", err)
	}
	if name != "storefront" {
		t.Errorf("host.name = %v, want storefront", name)
	}

	if _, err := parser.ExtractValue(val, "host.missing"); err == nil {
		t.Error("expected error for missing path")
	}
}
