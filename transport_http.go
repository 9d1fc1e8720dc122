package utcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClientTransport implements C5 for plain request/response REST
// endpoints, grounded on the teacher's src/transports/http/http_transport.go.
type HTTPClientTransport struct {
	httpClient *http.Client
	logger     func(format string, args ...any)
}

// NewHTTPClientTransport builds an HTTPClientTransport with the teacher's
// ~30s default timeout. A nil logger defaults to a no-op.
func NewHTTPClientTransport(logger func(format string, args ...any)) *HTTPClientTransport {
	if logger == nil {
		logger = func(string, ...any) {}
	}
	return &HTTPClientTransport{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// discoveryToolsWrapper is the shape a well-behaved discovery endpoint
// returns; we also accept a bare array.
type discoveryToolsWrapper struct {
	Tools []Tool `json:"tools"`
}

func (t *HTTPClientTransport) RegisterToolProvider(ctx context.Context, provider Provider) ([]Tool, error) {
	p, ok := provider.(*HttpProvider)
	if !ok {
		return nil, &ConfigError{Msg: "HTTPClientTransport received a non-HttpProvider"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, &TransportError{Protocol: "http", Msg: "building discovery request", Err: err}
	}
	if err := applyHTTPAuth(req, p.Auth); err != nil {
		return nil, err
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// Discovery is best-effort for plain HTTP providers with no manifest
		// endpoint; a transport-level failure here is not fatal.
		t.logger("http discovery for %s failed: %v", p.Name, err)
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Protocol: "http", Msg: "reading discovery response", Err: err}
	}

	var wrapper discoveryToolsWrapper
	if err := json.Unmarshal(body, &wrapper); err == nil && len(wrapper.Tools) > 0 {
		return wrapper.Tools, nil
	}
	var bare []Tool
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}
	return nil, nil
}

func (t *HTTPClientTransport) DeregisterToolProvider(ctx context.Context, provider Provider) error {
	return nil
}

func (t *HTTPClientTransport) CallTool(ctx context.Context, callName string, args map[string]any, provider Provider) (any, error) {
	p, ok := provider.(*HttpProvider)
	if !ok {
		return nil, &ConfigError{Msg: "HTTPClientTransport received a non-HttpProvider"}
	}

	url, remaining := substitutePathParams(p.URL, args)
	req, err := t.buildRequest(ctx, p, url, callName, remaining)
	if err != nil {
		return nil, err
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Protocol: "http", Msg: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Protocol: "http", Msg: "reading response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Protocol: "http", Msg: fmt.Sprintf("status %d: %s", resp.StatusCode, string(body))}
	}

	var value any
	if len(body) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(body, &value); err != nil {
		return string(body), nil
	}
	return value, nil
}

func (t *HTTPClientTransport) CallToolStream(ctx context.Context, callName string, args map[string]any, provider Provider) (StreamResult, error) {
	return nil, &UnsupportedOperationError{Protocol: "http", Operation: "call_tool_stream"}
}

func (t *HTTPClientTransport) buildRequest(ctx context.Context, p *HttpProvider, url, callName string, args map[string]any) (*http.Request, error) {
	method := p.HTTPMethod
	if method == "" {
		method = http.MethodGet
	}

	headerArgs, bodyArgs := splitHeaderFields(args, p.HeaderFields)

	var req *http.Request
	var err error
	if method == http.MethodGet || method == http.MethodDelete {
		req, err = http.NewRequestWithContext(ctx, method, url, nil)
		if err == nil {
			q := req.URL.Query()
			for k, v := range bodyArgs {
				q.Set(k, fmt.Sprintf("%v", v))
			}
			req.URL.RawQuery = q.Encode()
		}
	} else {
		var body any = bodyArgs
		if p.BodyField != nil {
			if v, ok := bodyArgs[*p.BodyField]; ok {
				body = v
			}
		}
		encoded, mErr := json.Marshal(body)
		if mErr != nil {
			return nil, &TransportError{Protocol: "http", Msg: "encoding body", Err: mErr}
		}
		req, err = http.NewRequestWithContext(ctx, method, url, bytes.NewReader(encoded))
	}
	if err != nil {
		return nil, &TransportError{Protocol: "http", Msg: "building request", Err: err}
	}

	contentType := p.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	if method != http.MethodGet && method != http.MethodDelete {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range headerArgs {
		req.Header.Set(k, fmt.Sprintf("%v", v))
	}
	if err := applyHTTPAuth(req, p.Auth); err != nil {
		return nil, err
	}
	return req, nil
}

// splitHeaderFields pulls the keys named in headerFields out of args into
// their own map, leaving the rest as body/query arguments.
func splitHeaderFields(args map[string]any, headerFields []string) (headers map[string]any, rest map[string]any) {
	headers = make(map[string]any)
	rest = make(map[string]any, len(args))
	headerSet := make(map[string]struct{}, len(headerFields))
	for _, h := range headerFields {
		headerSet[h] = struct{}{}
	}
	for k, v := range args {
		if _, ok := headerSet[k]; ok {
			headers[k] = v
		} else {
			rest[k] = v
		}
	}
	return headers, rest
}

// substitutePathParams replaces "{param}" placeholders in url with string
// forms of matching args, returning the rewritten URL and the remaining
// (unconsumed) arguments.
func substitutePathParams(url string, args map[string]any) (string, map[string]any) {
	remaining := make(map[string]any, len(args))
	for k, v := range args {
		remaining[k] = v
	}
	out := url
	for k, v := range args {
		placeholder := "{" + k + "}"
		if strings.Contains(out, placeholder) {
			out = strings.ReplaceAll(out, placeholder, fmt.Sprintf("%v", v))
			delete(remaining, k)
		}
	}
	return out, remaining
}
