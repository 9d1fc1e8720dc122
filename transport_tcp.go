package utcp

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strconv"
	"strings"
	"time"
)

// TCPClientTransport implements C5 over a newline-delimited JSON TCP
// socket, grounded on the teacher's tcp_transport.go. Auth is always
// ignored per spec.md §4.2.
type TCPClientTransport struct {
	logger func(format string, args ...any)
}

func NewTCPClientTransport(logger func(format string, args ...any)) *TCPClientTransport {
	if logger == nil {
		logger = func(string, ...any) {}
	}
	return &TCPClientTransport{logger: logger}
}

func (t *TCPClientTransport) dial(ctx context.Context, p *TCPProvider) (net.Conn, error) {
	timeout := time.Duration(p.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(p.Host, strconv.Itoa(p.Port)))
	if err != nil {
		return nil, &TransportError{Protocol: "tcp", Msg: "dial failed", Err: err}
	}
	return conn, nil
}

func (t *TCPClientTransport) sendAndReceive(conn net.Conn, payload any) (any, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, &TransportError{Protocol: "tcp", Msg: "encoding request", Err: err}
	}
	if _, err := conn.Write(append(encoded, '\n')); err != nil {
		return nil, &TransportError{Protocol: "tcp", Msg: "writing request", Err: err}
	}
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, &TransportError{Protocol: "tcp", Msg: "reading response", Err: err}
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			return nil, &StreamError{Msg: "decoding tcp response", Err: err}
		}
		return v, nil
	}
}

func (t *TCPClientTransport) RegisterToolProvider(ctx context.Context, provider Provider) ([]Tool, error) {
	p, ok := provider.(*TCPProvider)
	if !ok {
		return nil, &ConfigError{Msg: "TCPClientTransport received a non-TCPProvider"}
	}
	conn, err := t.dial(ctx, p)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	result, err := t.sendAndReceive(conn, map[string]string{"action": "list"})
	if err != nil {
		t.logger("tcp discovery for %s failed: %v", p.Name, err)
		return nil, nil
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, nil
	}
	var tools []Tool
	if err := json.Unmarshal(encoded, &tools); err == nil {
		return tools, nil
	}
	return nil, nil
}

func (t *TCPClientTransport) DeregisterToolProvider(ctx context.Context, provider Provider) error {
	return nil
}

func (t *TCPClientTransport) CallTool(ctx context.Context, callName string, args map[string]any, provider Provider) (any, error) {
	p, ok := provider.(*TCPProvider)
	if !ok {
		return nil, &ConfigError{Msg: "TCPClientTransport received a non-TCPProvider"}
	}
	conn, err := t.dial(ctx, p)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return t.sendAndReceive(conn, map[string]any{"tool": callName, "args": args})
}

func (t *TCPClientTransport) CallToolStream(ctx context.Context, callName string, args map[string]any, provider Provider) (StreamResult, error) {
	p, ok := provider.(*TCPProvider)
	if !ok {
		return nil, &ConfigError{Msg: "TCPClientTransport received a non-TCPProvider"}
	}
	conn, err := t.dial(ctx, p)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(map[string]any{"tool": callName, "args": args, "stream": true})
	if err != nil {
		conn.Close()
		return nil, &TransportError{Protocol: "tcp", Msg: "encoding request", Err: err}
	}
	if _, err := conn.Write(append(encoded, '\n')); err != nil {
		conn.Close()
		return nil, &TransportError{Protocol: "tcp", Msg: "writing request", Err: err}
	}

	ch := make(chan any, 16)
	go func() {
		defer close(ch)
		defer conn.Close()
		reader := bufio.NewReader(conn)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var v any
			if err := json.Unmarshal([]byte(line), &v); err != nil {
				select {
				case ch <- &StreamError{Msg: "decoding tcp stream frame", Err: err}:
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
	return NewChannelStreamResult(ch, func() error { return conn.Close() }), nil
}
