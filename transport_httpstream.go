package utcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// StreamableHTTPClientTransport implements C5 for HTTP endpoints whose
// body is an incremental stream of JSON values rather than one envelope,
// grounded on the teacher's StreamableHTTPClientTransport.
type StreamableHTTPClientTransport struct {
	httpClient *http.Client
	logger     func(format string, args ...any)
}

func NewStreamableHTTPClientTransport(logger func(format string, args ...any)) *StreamableHTTPClientTransport {
	if logger == nil {
		logger = func(string, ...any) {}
	}
	return &StreamableHTTPClientTransport{httpClient: &http.Client{Timeout: 30 * time.Second}, logger: logger}
}

func (t *StreamableHTTPClientTransport) RegisterToolProvider(ctx context.Context, provider Provider) ([]Tool, error) {
	// No manifest endpoint for this protocol; discovery returns nothing.
	return nil, nil
}

func (t *StreamableHTTPClientTransport) DeregisterToolProvider(ctx context.Context, provider Provider) error {
	return nil
}

func (t *StreamableHTTPClientTransport) newRequest(ctx context.Context, p *StreamableHttpProvider, callName string, args map[string]any) (*http.Request, error) {
	method := p.HTTPMethod
	if method == "" {
		method = http.MethodPost
	}
	url := joinURL(p.URL, stripProviderPrefix(callName))
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, &TransportError{Protocol: "http_stream", Msg: "encoding request body", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Protocol: "http_stream", Msg: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
	if err := applyHTTPAuth(req, p.Auth); err != nil {
		return nil, err
	}
	return req, nil
}

func (t *StreamableHTTPClientTransport) CallTool(ctx context.Context, callName string, args map[string]any, provider Provider) (any, error) {
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

func (t *StreamableHTTPClientTransport) CallToolStream(ctx context.Context, callName string, args map[string]any, provider Provider) (StreamResult, error) {
	p, ok := provider.(*StreamableHttpProvider)
	if !ok {
		return nil, &ConfigError{Msg: "StreamableHTTPClientTransport received a non-StreamableHttpProvider"}
	}

	req, err := t.newRequest(ctx, p, callName, args)
	if err != nil {
		return nil, err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Protocol: "http_stream", Msg: "request failed", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &TransportError{Protocol: "http_stream", Msg: "non-2xx status " + resp.Status + ": " + string(body)}
	}

	ch := make(chan any, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		dec := json.NewDecoder(resp.Body)
		for dec.More() {
			var v any
			if err := dec.Decode(&v); err != nil {
				if err != io.EOF {
					ch <- &StreamError{Msg: "decoding stream frame", Err: err}
				}
				return
			}
			select {
			case ch <- v:
			case <-ctx.Done():
				return
			}
		}
	}()

	return NewChannelStreamResult(ch, func() error { return resp.Body.Close() }), nil
}

func joinURL(base, suffix string) string {
	if len(base) == 0 {
		return suffix
	}
	if base[len(base)-1] == '/' {
		return base + suffix
	}
	return base + "/" + suffix
}

func stripProviderPrefix(name string) string {
	_, bare, ok := splitToolName(name)
	if !ok {
		return name
	}
	return bare
}
