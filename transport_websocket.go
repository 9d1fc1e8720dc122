package utcp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketClientTransport implements C5 over a long-lived WebSocket
// connection, grounded on the teacher's WebSocketClientTransport and
// wiring github.com/gorilla/websocket per SPEC_FULL.md.
type WebSocketClientTransport struct {
	logger func(format string, args ...any)

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

func NewWebSocketClientTransport(logger func(format string, args ...any)) *WebSocketClientTransport {
	if logger == nil {
		logger = func(string, ...any) {}
	}
	return &WebSocketClientTransport{logger: logger, conns: make(map[string]*websocket.Conn)}
}

func (t *WebSocketClientTransport) dial(ctx context.Context, p *WebSocketProvider) (*websocket.Conn, error) {
	t.mu.Lock()
	if conn, ok := t.conns[p.Name]; ok {
		t.mu.Unlock()
		return conn, nil
	}
	t.mu.Unlock()

	dialURL, headers, err := t.upgradeRequest(p)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, _, err := dialer.DialContext(ctx, dialURL, headers)
	if err != nil {
		return nil, &TransportError{Protocol: "websocket", Msg: "dial failed", Err: err}
	}

	t.mu.Lock()
	t.conns[p.Name] = conn
	t.mu.Unlock()
	return conn, nil
}

// upgradeRequest applies auth per spec.md §4.2: header/cookie forms
// inject into the upgrade request headers, query form rewrites the URL.
func (t *WebSocketClientTransport) upgradeRequest(p *WebSocketProvider) (string, http.Header, error) {
	headers := http.Header{}
	for k, v := range p.Headers {
		headers.Set(k, v)
	}

	dialURL := p.URL
	if p.Auth != nil {
		switch a := p.Auth.(type) {
		case *ApiKeyAuth:
			switch a.Location {
			case AuthLocationHeader:
				headers.Set(a.VarName, a.APIKey)
			case AuthLocationQuery:
				u, err := url.Parse(dialURL)
				if err != nil {
					return "", nil, &TransportError{Protocol: "websocket", Msg: "parsing url", Err: err}
				}
				q := u.Query()
				q.Set(a.VarName, a.APIKey)
				u.RawQuery = q.Encode()
				dialURL = u.String()
			case AuthLocationCookie:
				headers.Set("Cookie", a.VarName+"="+a.APIKey)
			default:
				return "", nil, &AuthError{Msg: "unsupported api_key location for websocket"}
			}
		case *BasicAuth:
			headers.Set("Authorization", basicAuthHeaderValue(a.Username, a.Password))
		case *OAuth2Auth:
			return "", nil, &AuthError{Msg: "oauth2 is not supported by the websocket plugin"}
		}
	}
	if p.Protocol != nil {
		headers.Set("Sec-WebSocket-Protocol", *p.Protocol)
	}
	return dialURL, headers, nil
}

func (t *WebSocketClientTransport) RegisterToolProvider(ctx context.Context, provider Provider) ([]Tool, error) {
	p, ok := provider.(*WebSocketProvider)
	if !ok {
		return nil, &ConfigError{Msg: "WebSocketClientTransport received a non-WebSocketProvider"}
	}
	conn, err := t.dial(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(map[string]string{"action": "list_tools"}); err != nil {
		return nil, &TransportError{Protocol: "websocket", Msg: "sending discovery request", Err: err}
	}
	var tools []Tool
	if err := conn.ReadJSON(&tools); err != nil {
		t.logger("websocket discovery for %s failed: %v", p.Name, err)
		return nil, nil
	}
	return tools, nil
}

func (t *WebSocketClientTransport) DeregisterToolProvider(ctx context.Context, provider Provider) error {
	name := provider.Base().Name
	t.mu.Lock()
	conn, ok := t.conns[name]
	delete(t.conns, name)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return conn.Close()
}

func (t *WebSocketClientTransport) CallTool(ctx context.Context, callName string, args map[string]any, provider Provider) (any, error) {
	p, ok := provider.(*WebSocketProvider)
	if !ok {
		return nil, &ConfigError{Msg: "WebSocketClientTransport received a non-WebSocketProvider"}
	}
	conn, err := t.dial(ctx, p)
	if err != nil {
		return nil, err
	}
	req := map[string]any{"tool": callName, "args": args}
	if err := conn.WriteJSON(req); err != nil {
		return nil, &TransportError{Protocol: "websocket", Msg: "sending call request", Err: err}
	}
	var result any
	if err := conn.ReadJSON(&result); err != nil {
		return nil, &TransportError{Protocol: "websocket", Msg: "reading call response", Err: err}
	}
	return result, nil
}

func (t *WebSocketClientTransport) CallToolStream(ctx context.Context, callName string, args map[string]any, provider Provider) (StreamResult, error) {
	p, ok := provider.(*WebSocketProvider)
	if !ok {
		return nil, &ConfigError{Msg: "WebSocketClientTransport received a non-WebSocketProvider"}
	}
	conn, err := t.dial(ctx, p)
	if err != nil {
		return nil, err
	}
	req := map[string]any{"tool": callName, "args": args, "stream": true}
	if err := conn.WriteJSON(req); err != nil {
		return nil, &TransportError{Protocol: "websocket", Msg: "sending stream request", Err: err}
	}

	ch := make(chan any, 16)
	go func() {
		defer close(ch)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || err == io.EOF {
					return
				}
				select {
				case ch <- &StreamError{Msg: "reading websocket frame", Err: err}:
				case <-ctx.Done():
				}
				return
			}
			var v any
			if err := json.Unmarshal(data, &v); err != nil {
				select {
				case ch <- &StreamError{Msg: "decoding websocket frame", Err: err}:
				case <-ctx.Done():
				}
				continue
			}
			select {
			case ch <- v:
			case <-ctx.Done():
				return
			}
		}
	}()

	return NewChannelStreamResult(ch, nil), nil
}
