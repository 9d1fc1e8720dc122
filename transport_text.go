package utcp

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/utcp-go/utcp-core/internal/ijson"
)

// TextClientTransport implements C5 over a local JSON file holding a
// UtcpManual and, for tools registered in-process via RegisterTextTool,
// an in-memory handler table keyed by provider name, grounded on the
// teacher's TextClientTransport.
type TextClientTransport struct {
	logger func(format string, args ...any)

	mu       sync.RWMutex
	handlers map[string]map[string]ToolHandler
}

func NewTextClientTransport(logger func(format string, args ...any)) *TextClientTransport {
	if logger == nil {
		logger = func(string, ...any) {}
	}
	return &TextClientTransport{logger: logger, handlers: make(map[string]map[string]ToolHandler)}
}

// RegisterTextTool attaches an in-process handler for bareName under
// providerName, used by TextProvider entries with no BasePath (e.g.
// codemode's own synthetic tool).
func (t *TextClientTransport) RegisterTextTool(providerName, bareName string, tool Tool, handler ToolHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handlers[providerName] == nil {
		t.handlers[providerName] = make(map[string]ToolHandler)
	}
	t.handlers[providerName][bareName] = handler
}

func (t *TextClientTransport) RegisterToolProvider(ctx context.Context, provider Provider) ([]Tool, error) {
	p, ok := provider.(*TextProvider)
	if !ok {
		return nil, &ConfigError{Msg: "TextClientTransport received a non-TextProvider"}
	}
	if p.BasePath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(p.BasePath)
	if err != nil {
		return nil, &TransportError{Protocol: "text", Msg: "reading manual file", Err: err}
	}
	var manual struct {
		Tools []Tool `json:"tools"`
	}
	if err := ijson.Unmarshal(data, &manual); err != nil {
		return nil, &TransportError{Protocol: "text", Msg: "parsing manual file", Err: err}
	}
	return manual.Tools, nil
}

func (t *TextClientTransport) DeregisterToolProvider(ctx context.Context, provider Provider) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, provider.Base().Name)
	return nil
}

func (t *TextClientTransport) CallTool(ctx context.Context, callName string, args map[string]any, provider Provider) (any, error) {
	p, ok := provider.(*TextProvider)
	if !ok {
		return nil, &ConfigError{Msg: "TextClientTransport received a non-TextProvider"}
	}

	t.mu.RLock()
	handler, ok := t.handlers[p.Name][callName]
	t.mu.RUnlock()
	if ok {
		result, err := handler(map[string]any{"provider": p.Name}, args)
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	if p.BasePath == "" {
		return nil, &TransportError{Protocol: "text", Msg: "no handler registered for tool " + callName}
	}
	data, err := os.ReadFile(p.BasePath)
	if err != nil {
		return nil, &TransportError{Protocol: "text", Msg: "reading manual file", Err: err}
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, &TransportError{Protocol: "text", Msg: "parsing manual file", Err: err}
	}
	return v, nil
}

func (t *TextClientTransport) CallToolStream(ctx context.Context, callName string, args map[string]any, provider Provider) (StreamResult, error) {
	return nil, &UnsupportedOperationError{Protocol: "text", Operation: "call_tool_stream"}
}
