package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func testLoader(t *testing.T) *Loader {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	return NewLoader(logger)
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := testLoader(t)

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "trusted-origin.rego")

	regoContent := `package test.policies.trusted

# Containers must come from trusted origins

import rego.v1

deny contains violation if {
	input.container.name == "untrusted"
	violation := {
		"message": "untrusted container",
		"severity": "error",
		"container": input.container.name,
	}
}`

	err := os.WriteFile(policyFile, []byte(regoContent), 0644)
	if err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	policy, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "trusted-origin" {
		t.Errorf("Expected name 'trusted-origin', got '%s'", policy.Name)
	}

	if policy.Rego != regoContent {
		t.Error("Rego content doesn't match")
	}

	if !policy.Enabled {
		t.Error("Policy should be enabled by default")
	}

	if policy.Severity != SeverityWarning {
		t.Errorf("Expected default severity %s, got %s", SeverityWarning, policy.Severity)
	}

	if policy.Description != "Containers must come from trusted origins" {
		t.Errorf("Unexpected description: %q", policy.Description)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := testLoader(t)

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "export-limit.json")

	jsonPolicy := Policy{
		Name:        "export-limit",
		Description: "Limits exports per container",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package test.policies.limit

import rego.v1

deny contains violation if {
	count(input.container.exports) > 64
	violation := {
		"message": "too many exports",
		"severity": "error",
		"container": input.container.name,
	}
}`,
	}

	data, err := json.Marshal(jsonPolicy)
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}

	if err := os.WriteFile(policyFile, data, 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	policy, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "export-limit" {
		t.Errorf("Expected name 'export-limit', got '%s'", policy.Name)
	}

	if policy.Severity != SeverityError {
		t.Errorf("Expected severity %s, got %s", SeverityError, policy.Severity)
	}
}

func TestLoadFromFile_UnsupportedType(t *testing.T) {
	loader := testLoader(t)

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "policy.yaml")

	if err := os.WriteFile(policyFile, []byte("name: nope"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := loader.loadFromFile(context.Background(), policyFile); err == nil {
		t.Error("Expected error for unsupported file type")
	}
}

func TestLoadFromPaths_Directory(t *testing.T) {
	loader := testLoader(t)

	tmpDir := t.TempDir()

	regoContent := `package test.policies.a

import rego.v1

deny contains violation if {
	input.container.name == "blocked"
	violation := {"message": "blocked", "severity": "error", "container": input.container.name}
}`

	files := map[string]string{
		"a.rego":     regoContent,
		"notes.txt":  "not a policy",
		"broken.json": "{not json",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	// Broken and non-policy files are skipped, not fatal.
	policies, err := loader.LoadFromPaths(context.Background(), []string{tmpDir})
	if err != nil {
		t.Fatalf("Failed to load from directory: %v", err)
	}

	if len(policies) != 1 {
		t.Fatalf("Expected 1 policy, got %d", len(policies))
	}
	if policies[0].Name != "a" {
		t.Errorf("Expected policy 'a', got '%s'", policies[0].Name)
	}
}

func TestLoadFromPaths_MissingPath(t *testing.T) {
	loader := testLoader(t)

	_, err := loader.LoadFromPaths(context.Background(), []string{"/nonexistent/policies"})
	if err == nil {
		t.Error("Expected error for missing path")
	}
}

func TestLoaderCache(t *testing.T) {
	loader := testLoader(t)

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "cached.rego")

	if err := os.WriteFile(policyFile, []byte("package test.cached\n"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	first, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	// Second load returns the cached instance even if the file changed.
	if err := os.WriteFile(policyFile, []byte("package test.changed\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite test file: %v", err)
	}

	second, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if first != second {
		t.Error("Expected cached policy instance")
	}

	loader.ClearCache()

	third, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if third.Rego == first.Rego {
		t.Error("Expected fresh content after cache clear")
	}
}

func TestLoadBundle(t *testing.T) {
	loader := testLoader(t)

	tmpDir := t.TempDir()
	bundleFile := filepath.Join(tmpDir, "bundle.json")

	bundle := Bundle{
		Name:    "governance",
		Version: "1.0.0",
		Policies: []Policy{
			{Name: "one", Rego: "package test.one\n", Severity: SeverityWarning},
			{Name: "two", Rego: "package test.two\n", Severity: SeverityError},
		},
	}

	data, err := json.Marshal(bundle)
	if err != nil {
		t.Fatalf("Failed to marshal bundle: %v", err)
	}
	if err := os.WriteFile(bundleFile, data, 0644); err != nil {
		t.Fatalf("Failed to write bundle: %v", err)
	}

	loaded, err := loader.LoadBundle(context.Background(), bundleFile)
	if err != nil {
		t.Fatalf("Failed to load bundle: %v", err)
	}

	if loaded.Name != "governance" {
		t.Errorf("Expected bundle 'governance', got '%s'", loaded.Name)
	}
	if len(loaded.Policies) != 2 {
		t.Errorf("Expected 2 policies, got %d", len(loaded.Policies))
	}
}

func TestExtractDescription(t *testing.T) {
	loader := testLoader(t)

	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name: "leading comments",
			content: `# First line
# Second line
package test.policy`,
			expected: "First line Second line",
		},
		{
			name:     "no comments",
			content:  "package test.policy\n",
			expected: "",
		},
		{
			name: "stops at code",
			content: `# Description here
package test.policy
# Later comment ignored`,
			expected: "Description here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := loader.extractDescription(tt.content)
			if got != tt.expected {
				t.Errorf("extractDescription() = %q, want %q", got, tt.expected)
			}
		})
	}
}
