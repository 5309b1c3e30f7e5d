package config

import (
	"context"
	"testing"
	"time"
)

func TestStarlarkEvaluator_Evaluate(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name      string
		script    string
		input     map[string]interface{}
		checkFunc func(*testing.T, *StarlarkResult)
		wantErr   bool
	}{
		{
			name: "simple arithmetic",
			script: `
result = 2 + 2
`,
			input: nil,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != int64(4) {
					t.Errorf("expected result=4, got %v", sr.Output["result"])
				}
			},
			wantErr: false,
		},
		{
			name: "use input variables",
			script: `
location = base_url + "/checkout/container.wasm"
`,
			input: map[string]interface{}{
				"base_url": "https://cdn.example.com",
			},
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				want := "https://cdn.example.com/checkout/container.wasm"
				if sr.Output["location"] != want {
					t.Errorf("expected location=%q, got %v", want, sr.Output["location"])
				}
			},
			wantErr: false,
		},
		{
			name: "generate remotes with function",
			script: `
def make_remotes(tenants):
    remotes = []
    for tenant in tenants:
        remotes.append({
            "name": "shop-" + tenant,
            "location": "https://cdn.example.com/" + tenant + "/container.wasm",
        })
    return remotes

remotes = make_remotes(["alfa", "bravo", "charlie"])
`,
			input: nil,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				remotes, ok := sr.Output["remotes"].([]interface{})
				if !ok {
					t.Fatalf("expected remotes to be a list, got %T", sr.Output["remotes"])
				}
				if len(remotes) != 3 {
					t.Errorf("expected 3 remotes, got %d", len(remotes))
				}

				first, ok := remotes[0].(map[string]interface{})
				if !ok {
					t.Fatalf("expected remotes[0] to be a dict")
				}
				if first["name"] != "shop-alfa" {
					t.Errorf("expected name 'shop-alfa', got %v", first["name"])
				}
			},
			wantErr: false,
		},
		{
			name: "list comprehension over environments",
			script: `
envs = ["dev", "staging", "prod"]
locations = ["https://" + env + ".example.com/app.wasm" for env in envs]
`,
			input: nil,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				locations, ok := sr.Output["locations"].([]interface{})
				if !ok {
					t.Fatalf("expected locations to be a list")
				}
				if len(locations) != 3 {
					t.Errorf("expected 3 locations, got %d", len(locations))
				}
			},
			wantErr: false,
		},
		{
			name: "dict comprehension with enumerate",
			script: `
names = ["checkout", "profile", "search"]
ports = {name: 9000 + i for i, name in enumerate(names)}
`,
			input: nil,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				ports, ok := sr.Output["ports"].(map[string]interface{})
				if !ok {
					t.Fatalf("expected ports to be a dict")
				}
				if len(ports) != 3 {
					t.Errorf("expected 3 entries, got %d", len(ports))
				}
				if ports["profile"] != int64(9001) {
					t.Errorf("expected ports['profile']=9001, got %v", ports["profile"])
				}
			},
			wantErr: false,
		},
		{
			name: "underscore globals are private",
			script: `
_internal = "hidden"
visible = "shown"
`,
			input: nil,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if _, ok := sr.Output["_internal"]; ok {
					t.Error("underscore globals should not appear in output")
				}
				if sr.Output["visible"] != "shown" {
					t.Errorf("expected visible='shown', got %v", sr.Output["visible"])
				}
			},
			wantErr: false,
		},
		{
			name: "remote builder",
			script: `
remotes = [
    remote("checkout", location("https", "cdn.example.com", "checkout/container.wasm")),
    remote("search", "https://cdn.example.com/search.wasm", labels={"team": "discovery"}),
]
`,
			input: nil,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				remotes, ok := sr.Output["remotes"].([]interface{})
				if !ok {
					t.Fatalf("expected remotes to be a list, got %T", sr.Output["remotes"])
				}
				first, ok := remotes[0].(map[string]interface{})
				if !ok {
					t.Fatalf("expected remotes[0] to be a dict")
				}
				if first["name"] != "checkout" {
					t.Errorf("expected name 'checkout', got %v", first["name"])
				}
				if first["location"] != "https://cdn.example.com/checkout/container.wasm" {
					t.Errorf("unexpected location: %v", first["location"])
				}
				second, ok := remotes[1].(map[string]interface{})
				if !ok {
					t.Fatalf("expected remotes[1] to be a dict")
				}
				labels, ok := second["labels"].(map[string]interface{})
				if !ok {
					t.Fatalf("expected labels to be a dict")
				}
				if labels["team"] != "discovery" {
					t.Errorf("expected labels['team']='discovery', got %v", labels["team"])
				}
			},
			wantErr: false,
		},
		{
			name: "location with port",
			script: `
loc = location("sftp", "artifacts.internal", "drops/app.wasm", port=2022)
`,
			input: nil,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				want := "sftp://artifacts.internal:2022/drops/app.wasm"
				if sr.Output["loc"] != want {
					t.Errorf("expected loc=%q, got %v", want, sr.Output["loc"])
				}
			},
			wantErr: false,
		},
		{
			name: "location rejects unknown scheme",
			script: `
loc = location("gopher", "example.com", "app.wasm")
`,
			input:   nil,
			wantErr: true,
		},
		{
			name: "remote requires a name",
			script: `
r = remote("", "https://cdn.example.com/app.wasm")
`,
			input:   nil,
			wantErr: true,
		},
		{
			name: "syntax error",
			script: `
invalid syntax here
`,
			input:   nil,
			wantErr: true,
		},
		{
			name: "runtime error",
			script: `
result = undefined_variable
`,
			input:   nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, tt.script, tt.input)

			if tt.wantErr {
				if err == nil && result.Error == "" {
					t.Errorf("expected error, got none")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if result.Error != "" {
					t.Errorf("unexpected result error: %s", result.Error)
				}
				if tt.checkFunc != nil {
					tt.checkFunc(t, result)
				}
			}

			if result != nil && result.ExecutionTime == 0 {
				t.Error("expected non-zero execution time")
			}
		})
	}
}

func TestStarlarkEvaluator_Timeout(t *testing.T) {
	evaluator := NewStarlarkEvaluator(100 * time.Millisecond)
	ctx := context.Background()

	script := `
def slow_function():
    result = 0
    for i in range(10000000):
        result = result + i
    return result

output = slow_function()
`

	result, err := evaluator.Evaluate(ctx, script, nil)
	if err == nil {
		t.Error("expected timeout error")
	}

	if result != nil && result.Error == "" {
		t.Error("expected timeout error in result")
	}
}

func TestStarlarkEvaluator_TypeConversion(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name      string
		input     map[string]interface{}
		script    string
		checkFunc func(*testing.T, *StarlarkResult)
	}{
		{
			name: "bool conversion",
			input: map[string]interface{}{
				"enforcing": true,
			},
			script: `
result = enforcing and True
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != true {
					t.Errorf("expected result=true, got %v", sr.Output["result"])
				}
			},
		},
		{
			name: "int conversion",
			input: map[string]interface{}{
				"replicas": 42,
			},
			script: `
result = replicas + 8
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != int64(50) {
					t.Errorf("expected result=50, got %v", sr.Output["result"])
				}
			},
		},
		{
			name: "float conversion",
			input: map[string]interface{}{
				"rate": 0.25,
			},
			script: `
result = rate * 2
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				result, ok := sr.Output["result"].(float64)
				if !ok {
					t.Fatalf("expected result to be float64")
				}
				if result != 0.5 {
					t.Errorf("expected result=0.5, got %v", result)
				}
			},
		},
		{
			name: "string conversion",
			input: map[string]interface{}{
				"name": "checkout",
			},
			script: `
result = name + "-v2"
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != "checkout-v2" {
					t.Errorf("expected result='checkout-v2', got %v", sr.Output["result"])
				}
			},
		},
		{
			name: "list conversion",
			input: map[string]interface{}{
				"remotes": []interface{}{"checkout", "profile", "search"},
			},
			script: `
result = len(remotes)
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != int64(3) {
					t.Errorf("expected result=3, got %v", sr.Output["result"])
				}
			},
		},
		{
			name: "dict conversion",
			input: map[string]interface{}{
				"endpoint": map[string]interface{}{
					"host": "cdn.example.com",
					"port": 8443,
				},
			},
			script: `
result = endpoint["host"] + ":" + str(endpoint["port"])
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != "cdn.example.com:8443" {
					t.Errorf("expected result='cdn.example.com:8443', got %v", sr.Output["result"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, tt.script, tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Error != "" {
				t.Fatalf("unexpected result error: %s", result.Error)
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, result)
			}
		})
	}
}

func TestStarlarkEvaluator_Security(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	// Print output is suppressed but the script still runs.
	script := `
print("this should not appear")
result = "done"
`

	result, err := evaluator.Evaluate(ctx, script, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Output["result"] != "done" {
		t.Errorf("expected result='done', got %v", result.Output["result"])
	}
}
