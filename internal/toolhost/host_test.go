package toolhost

import (
	"context"
	"testing"
)

func TestRegistry_DispatchesRegisteredTool(t *testing.T) {
	r := NewRegistry()
	r.Register("double", ToolFunc(func(_ context.Context, args map[string]interface{}) (interface{}, error) {
		x := args["x"].(float64)
		return map[string]interface{}{"result": x * 2}, nil
	}))

	out, err := r.Execute(context.Background(), "double", map[string]interface{}{"x": 4.0})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	got := out.(map[string]interface{})["result"]
	if got != 8.0 {
		t.Errorf("expected 8.0, got %v", got)
	}
}

func TestRegistry_UnknownToolIsAnError(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Execute(context.Background(), "nope", nil); err == nil {
		t.Fatal("expected an error for an unregistered tool name")
	}
}

func TestEcho_ReturnsArgsUnchanged(t *testing.T) {
	out, err := Echo().Execute(context.Background(), map[string]interface{}{"a": "b"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	echoed := out.(map[string]interface{})["echo"].(map[string]interface{})
	if echoed["a"] != "b" {
		t.Errorf("expected echoed arg 'b', got %v", echoed["a"])
	}
}

func TestDefaultRegistry_RegistersEcho(t *testing.T) {
	r := DefaultRegistry()
	if _, err := r.Execute(context.Background(), "echo", map[string]interface{}{}); err != nil {
		t.Fatalf("expected echo to be registered by default, got %v", err)
	}
}
