package utcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// SSEClientTransport implements C5 over Server-Sent Events, grounded on
// the teacher's SSEClientTransport / transports.go.
type SSEClientTransport struct {
	httpClient *http.Client
	logger     func(format string, args ...any)
}

func NewSSEClientTransport(logger func(format string, args ...any)) *SSEClientTransport {
	if logger == nil {
		logger = func(string, ...any) {}
	}
	return &SSEClientTransport{httpClient: &http.Client{Timeout: 30 * time.Second}, logger: logger}
}

func (t *SSEClientTransport) RegisterToolProvider(ctx context.Context, provider Provider) ([]Tool, error) {
	p, ok := provider.(*SSEProvider)
	if !ok {
		return nil, &ConfigError{Msg: "SSEClientTransport received a non-SSEProvider"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, &TransportError{Protocol: "sse", Msg: "building discovery request", Err: err}
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
	if err := applyHTTPAuth(req, p.Auth); err != nil {
		return nil, err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger("sse discovery for %s failed: %v", p.Name, err)
		return nil, nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Protocol: "sse", Msg: "reading discovery response", Err: err}
	}
	var tools []Tool
	if err := json.Unmarshal(body, &tools); err == nil {
		return tools, nil
	}
	return nil, nil
}

func (t *SSEClientTransport) DeregisterToolProvider(ctx context.Context, provider Provider) error { return nil }

func (t *SSEClientTransport) CallTool(ctx context.Context, callName string, args map[string]any, provider Provider) (any, error) {
	stream, err := t.CallToolStream(ctx, callName, args, provider)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	var items []any
	for {
		item, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if len(items) == 1 {
		return items[0], nil
	}
	return items, nil
}

func (t *SSEClientTransport) CallToolStream(ctx context.Context, callName string, args map[string]any, provider Provider) (StreamResult, error) {
	p, ok := provider.(*SSEProvider)
	if !ok {
		return nil, &ConfigError{Msg: "SSEClientTransport received a non-SSEProvider"}
	}

	bare := stripProviderPrefix(callName)
	url := joinURL(p.URL, bare)

	headerArgs, bodyArgs := splitHeaderFields(args, p.HeaderFields)
	payload, err := json.Marshal(bodyArgs)
	if err != nil {
		return nil, &TransportError{Protocol: "sse", Msg: "encoding request body", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Protocol: "sse", Msg: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range headerArgs {
		req.Header.Set(k, toString(v))
	}
	if err := applyHTTPAuth(req, p.Auth); err != nil {
		return nil, err
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Protocol: "sse", Msg: "request failed", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &TransportError{Protocol: "sse", Msg: "non-2xx status " + resp.Status + ": " + string(body)}
	}

	ch := make(chan any, 16)
	go decodeSSEStream(ctx, resp.Body, ch)
	return NewChannelStreamResult(ch, func() error { return resp.Body.Close() }), nil
}

// decodeSSEStream parses "data: " lines per spec.md §6: an empty line
// dispatches the accumulated buffer as one JSON value; the trailing
// buffer (if any) is flushed at EOF.
func decodeSSEStream(ctx context.Context, body io.ReadCloser, ch chan<- any) {
	defer close(ch)
	defer body.Close()
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var buf bytes.Buffer
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		var v any
		text := buf.String()
		buf.Reset()
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			select {
			case ch <- &StreamError{Msg: "decoding SSE frame", Err: err}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case ch <- v:
		case <-ctx.Done():
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			flush()
			continue
		}
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			buf.WriteString(strings.TrimPrefix(data, " "))
		}
	}
	flush()
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}
