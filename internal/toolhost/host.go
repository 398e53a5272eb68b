// Package toolhost defines the tool-dispatch interface spec.md §9 leaves
// out of scope, plus a deterministic default implementation. Grounded on
// meridian's tools.ToolExecutor
// (internal/service/llm/tools/executor.go) — a single-method,
// thread-safe, context-aware Execute contract — generalized from one
// in-process tool to a named-tool registry so the Tool executor can
// dispatch by the function name carried on a ToolCall.
package toolhost

import (
	"context"
	"fmt"
)

// Tool executes one named function call. The returned value must be
// JSON-serializable; it becomes the content of the resulting tool message.
type Tool interface {
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// ToolFunc adapts a plain function to the Tool interface.
type ToolFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

func (f ToolFunc) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return f(ctx, args)
}

// Host dispatches a named tool call. The tool executor (internal/executor)
// depends only on this interface, never on a concrete tool set.
type Host interface {
	Execute(ctx context.Context, name string, args map[string]interface{}) (interface{}, error)
}

// Registry is a Host backed by a name→Tool map. Unknown tool names are an
// error rather than a silent no-op, matching spec.md §4.4's "tool faults
// are captured as an error event" contract.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds an empty Registry. The "echo" tool (see DefaultRegistry) is
// not registered automatically; callers compose the tool set they need.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a named tool.
func (r *Registry) Register(name string, t Tool) {
	r.tools[name] = t
}

func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %q not registered", name)
	}
	return t.Execute(ctx, args)
}

// Echo is a deterministic default tool that returns its arguments
// wrapped under an "echo" key, replacing spec.md §9's "mock that sleeps a random duration"
// with a predictable tool useful for exercising the tool-call loop in
// tests and local development without a real tool backend.
func Echo() Tool {
	return ToolFunc(func(_ context.Context, args map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{"echo": args}, nil
	})
}

// DefaultRegistry builds a Registry with Echo registered under "echo".
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("echo", Echo())
	return r
}
