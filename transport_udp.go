package utcp

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"time"
)

// UDPClientTransport implements C5 over a single-datagram request/reply
// exchange. Auth is always ignored per spec.md §4.2; there is no
// streaming notion for a connectionless datagram socket.
type UDPClientTransport struct {
	logger func(format string, args ...any)
}

func NewUDPClientTransport(logger func(format string, args ...any)) *UDPClientTransport {
	if logger == nil {
		logger = func(string, ...any) {}
	}
	return &UDPClientTransport{logger: logger}
}

func (t *UDPClientTransport) exchange(ctx context.Context, p *UDPProvider, payload any) (any, error) {
	timeout := time.Duration(p.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	addr := net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, &TransportError{Protocol: "udp", Msg: "dial failed", Err: err}
	}
	defer conn.Close()

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, &TransportError{Protocol: "udp", Msg: "encoding request", Err: err}
	}
	if _, err := conn.Write(encoded); err != nil {
		return nil, &TransportError{Protocol: "udp", Msg: "writing datagram", Err: err}
	}

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 64*1024)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, &TransportError{Protocol: "udp", Msg: "reading datagram", Err: err}
	}

	var v any
	if err := json.Unmarshal(buf[:n], &v); err != nil {
		return string(buf[:n]), nil
	}
	return v, nil
}

func (t *UDPClientTransport) RegisterToolProvider(ctx context.Context, provider Provider) ([]Tool, error) {
	// UDP has no introspection notion; discovery is always empty.
	return nil, nil
}

func (t *UDPClientTransport) DeregisterToolProvider(ctx context.Context, provider Provider) error {
	return nil
}

func (t *UDPClientTransport) CallTool(ctx context.Context, callName string, args map[string]any, provider Provider) (any, error) {
	p, ok := provider.(*UDPProvider)
	if !ok {
		return nil, &ConfigError{Msg: "UDPClientTransport received a non-UDPProvider"}
	}
	return t.exchange(ctx, p, map[string]any{"tool": callName, "args": args})
}

func (t *UDPClientTransport) CallToolStream(ctx context.Context, callName string, args map[string]any, provider Provider) (StreamResult, error) {
	return nil, &UnsupportedOperationError{Protocol: "udp", Operation: "call_tool_stream"}
}
