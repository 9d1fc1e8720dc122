package codemode

import (
	"context"
	"errors"
	"io"
	"testing"

	utcp "github.com/utcp-go/utcp-core"
)

// mockStream is grounded on the teacher's codemode_test.go mockStream,
// adapted to this repo's io.EOF-terminated StreamResult contract.
type mockStream struct {
	items []any
	index int
}

func (m *mockStream) Next() (any, error) {
	if m.index >= len(m.items) {
		return nil, io.EOF
	}
	item := m.items[m.index]
	m.index++
	return item, nil
}

func (m *mockStream) Close() error { return nil }

type mockClient struct {
	callToolFn       func(name string, args map[string]any) (any, error)
	callToolStreamFn func(name string, args map[string]any) (utcp.StreamResult, error)
	searchToolsFn    func(query string, limit int) ([]utcp.Tool, error)
}

func (m *mockClient) RegisterToolProvider(context.Context, utcp.Provider) ([]utcp.Tool, error) {
	return nil, nil
}
func (m *mockClient) DeregisterToolProvider(context.Context, string) error { return nil }

func (m *mockClient) CallTool(_ context.Context, name string, args map[string]any) (any, error) {
	return m.callToolFn(name, args)
}

func (m *mockClient) CallToolStream(_ context.Context, name string, args map[string]any) (utcp.StreamResult, error) {
	return m.callToolStreamFn(name, args)
}

func (m *mockClient) SearchTools(_ context.Context, query string, limit int) ([]utcp.Tool, error) {
	return m.searchToolsFn(query, limit)
}

func TestCodeModeExecuteSimple(t *testing.T) {
	cm := New(&mockClient{})

	res, err := cm.Execute(context.Background(), Args{Code: `__out = 2 + 3`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Value.(int) != 5 {
		t.Fatalf("expected 5, got %#v", res.Value)
	}
}

func TestCodeModeExecuteTimeout(t *testing.T) {
	cm := New(&mockClient{})

	timeout := 50
	_, err := cm.Execute(context.Background(), Args{
		Code:    "for {\n}",
		Timeout: &timeout,
	})
	if err == nil {
		t.Fatalf("expected timeout error, got nil")
	}
}

func TestCodeModeExecuteCallTool(t *testing.T) {
	mock := &mockClient{
		callToolFn: func(name string, args map[string]any) (any, error) {
			if name != "math.add" {
				t.Fatalf("unexpected tool name: %s", name)
			}
			return map[string]any{"result": 9}, nil
		},
	}
	cm := New(mock)

	res, err := cm.Execute(context.Background(), Args{Code: `
		out, _ := codemode.CallTool("math.add", map[string]any{
			"a": 4,
			"b": 5,
		})
		__out = out
	`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resultMap, ok := res.Value.(map[string]any)
	if !ok {
		t.Fatalf("expected a map, got %T", res.Value)
	}
	if resultMap["result"] != 9 {
		t.Fatalf("expected result 9, got %#v", resultMap["result"])
	}
}

func TestCodeModeExecuteMultipleCallTool(t *testing.T) {
	mock := &mockClient{
		callToolFn: func(name string, args map[string]any) (any, error) {
			a, _ := args["a"].(int)
			b, _ := args["b"].(int)
			switch name {
			case "math.add":
				return map[string]any{"result": a + b}, nil
			case "math.multiply":
				return map[string]any{"result": a * b}, nil
			default:
				return nil, errors.New("unknown tool")
			}
		},
	}
	cm := New(mock)

	res, err := cm.Execute(context.Background(), Args{Code: `
		addRes, _ := codemode.CallTool("math.add", map[string]any{"a": 4, "b": 5})
		intermediate := addRes.(map[string]any)["result"].(int)
		multRes, _ := codemode.CallTool("math.multiply", map[string]any{"a": intermediate, "b": 2})
		__out = multRes
	`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resultMap, ok := res.Value.(map[string]any)
	if !ok {
		t.Fatalf("expected a map, got %T", res.Value)
	}
	if resultMap["result"] != 18 {
		t.Fatalf("expected result 18, got %#v", resultMap["result"])
	}
}

func TestCodeModeExecuteCallToolStream(t *testing.T) {
	mock := &mockClient{
		callToolStreamFn: func(name string, args map[string]any) (utcp.StreamResult, error) {
			return &mockStream{items: []any{"hello", "world"}}, nil
		},
	}
	cm := New(mock)

	res, err := cm.Execute(context.Background(), Args{Code: `
		chunks, _ := codemode.CallToolStream("stream.echo", map[string]any{"value": "ignored"})
		result := ""
		for _, c := range chunks {
			result = result + c.(string)
		}
		__out = result
	`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Value != "helloworld" {
		t.Fatalf("expected 'helloworld', got %#v", res.Value)
	}
}

func TestCodeModeExecuteSearchTools(t *testing.T) {
	mock := &mockClient{
		searchToolsFn: func(query string, limit int) ([]utcp.Tool, error) {
			return []utcp.Tool{{Name: "memory.store"}, {Name: "memory.get"}}, nil
		},
	}
	cm := New(mock)

	res, err := cm.Execute(context.Background(), Args{Code: `
		ts, _ := codemode.SearchTools("memory", 10)
		__out = len(ts)
	`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Value.(int) != 2 {
		t.Fatalf("expected 2 tools, got %#v", res.Value)
	}
}

func TestCodeModeExecuteJSONFastPath(t *testing.T) {
	cm := New(&mockClient{})

	res, err := cm.Execute(context.Background(), Args{Code: `{"already": "json"}`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := res.Value.(map[string]any)
	if !ok || m["already"] != "json" {
		t.Fatalf("expected the JSON literal passed through unchanged, got %#v", res.Value)
	}
}
