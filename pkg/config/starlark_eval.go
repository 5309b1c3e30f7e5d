package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// StarlarkEvaluator runs remote-generation scripts in a sandbox. Scripts
// see the host variables as predeclared bindings plus the remote and
// location builders; they cannot reach the filesystem, the network, or
// the process environment, and a runaway script is cut off by the
// evaluator timeout.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates an evaluator with the given script timeout.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkEvaluator{timeout: timeout}
}

// Evaluate executes script with input bound as predeclared globals and
// returns the script's own exportable globals. Helper functions and
// names starting with an underscore stay private to the script.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, script string, input map[string]interface{}) (*StarlarkResult, error) {
	start := time.Now()

	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	resultCh := make(chan *StarlarkResult, 1)
	errCh := make(chan error, 1)

	go func() {
		result, err := se.run(script, input)
		if err != nil {
			errCh <- err
		} else {
			resultCh <- result
		}
	}()

	select {
	case <-evalCtx.Done():
		return &StarlarkResult{
			ExecutionTime: time.Since(start),
			Error:         fmt.Sprintf("execution timeout after %v", se.timeout),
		}, fmt.Errorf("starlark execution timeout")
	case err := <-errCh:
		return &StarlarkResult{
			ExecutionTime: time.Since(start),
			Error:         err.Error(),
		}, err
	case result := <-resultCh:
		result.ExecutionTime = time.Since(start)
		return result, nil
	}
}

func (se *StarlarkEvaluator) run(script string, input map[string]interface{}) (*StarlarkResult, error) {
	thread := &starlark.Thread{
		Name: "openfed",
		// Print is swallowed; scripts produce values, not output.
		Print: func(_ *starlark.Thread, _ string) {},
	}

	predeclared := starlark.StringDict{
		"struct":   starlark.NewBuiltin("struct", starlarkstruct.Make),
		"remote":   starlark.NewBuiltin("remote", builtinRemote),
		"location": starlark.NewBuiltin("location", builtinLocation),
	}

	for key, val := range input {
		sv, err := goToStarlark(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = sv
	}

	globals, err := starlark.ExecFile(thread, "config.star", script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	output := make(map[string]interface{})
	for name, val := range globals {
		if !exported(name, val) {
			continue
		}
		gv, err := starlarkToGo(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		output[name] = gv
	}

	return &StarlarkResult{Output: output}, nil
}

// exported reports whether a global belongs in the script's output.
// Underscore names are script-private, and def helpers are part of the
// script's machinery, not its result.
func exported(name string, val starlark.Value) bool {
	if strings.HasPrefix(name, "_") {
		return false
	}
	switch val.(type) {
	case *starlark.Function, *starlark.Builtin:
		return false
	}
	return true
}

// builtinRemote builds a remote registration dict:
//
//	remote("checkout", "https://cdn.example.com/checkout.wasm", labels={"team": "cart"})
func builtinRemote(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, loc string
	var labels *starlark.Dict

	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "location", &loc, "labels?", &labels); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("remote: name must not be empty")
	}
	if loc == "" {
		return nil, fmt.Errorf("remote: location must not be empty")
	}

	dict := starlark.NewDict(3)
	_ = dict.SetKey(starlark.String("name"), starlark.String(name))
	_ = dict.SetKey(starlark.String("location"), starlark.String(loc))
	if labels != nil {
		if err := dict.SetKey(starlark.String("labels"), labels); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

// fetchSchemes are the location schemes the artifact fetchers serve.
var fetchSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"file":  true,
	"sftp":  true,
}

// builtinLocation assembles an artifact URL from parts:
//
//	location("https", "cdn.example.com", "tenants/alfa/container.wasm")
//	location("sftp", "artifacts.internal", "drops/app.wasm", port=2022)
func builtinLocation(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var scheme, host, path string
	var port int

	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "scheme", &scheme, "host", &host, "path", &path, "port?", &port); err != nil {
		return nil, err
	}
	if !fetchSchemes[scheme] {
		return nil, fmt.Errorf("location: unsupported scheme %q", scheme)
	}
	if host == "" {
		return nil, fmt.Errorf("location: host must not be empty")
	}

	var sb strings.Builder
	sb.WriteString(scheme)
	sb.WriteString("://")
	sb.WriteString(host)
	if port > 0 {
		fmt.Fprintf(&sb, ":%d", port)
	}
	if !strings.HasPrefix(path, "/") {
		sb.WriteString("/")
	}
	sb.WriteString(path)

	return starlark.String(sb.String()), nil
}

// goToStarlark converts a Go value into its Starlark counterpart.
func goToStarlark(v interface{}) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		items := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := goToStarlark(item)
			if err != nil {
				return nil, err
			}
			items[i] = sv
		}
		return starlark.NewList(items), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := goToStarlark(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// starlarkToGo converts a Starlark value back into plain Go data.
func starlarkToGo(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		items := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := starlarkToGo(val.Index(i))
			if err != nil {
				return nil, err
			}
			items[i] = gv
		}
		return items, nil
	case starlark.Tuple:
		items := make([]interface{}, len(val))
		for i, item := range val {
			gv, err := starlarkToGo(item)
			if err != nil {
				return nil, err
			}
			items[i] = gv
		}
		return items, nil
	case *starlark.Dict:
		dict := make(map[string]interface{}, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			gv, err := starlarkToGo(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = gv
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			gv, err := starlarkToGo(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = gv
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
