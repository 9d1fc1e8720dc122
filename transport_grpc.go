package utcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
)

// jsonCodecName is registered once so grpc.CallContentSubtype can select
// it without any generated .pb.go stubs: tool calls are carried as raw
// JSON bytes rather than a protobuf message, letting any UTCP-aware gRPC
// server expose arbitrary tools behind one fixed method.
const jsonCodecName = "utcp-json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return jsonCodecName }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	if b, ok := v.(*rawGRPCMessage); ok {
		return b.data, nil
	}
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if b, ok := v.(*rawGRPCMessage); ok {
		b.data = append([]byte(nil), data...)
		return nil
	}
	return json.Unmarshal(data, v)
}

// rawGRPCMessage carries a JSON payload through the grpc.Codec boundary
// untouched in either direction.
type rawGRPCMessage struct{ data []byte }

// basicAuthCreds implements credentials.PerRPCCredentials, grounded on
// the teacher's src/transports/grpc/grpc_transport.go.
type basicAuthCreds struct {
	username, password string
}

func (c *basicAuthCreds) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"authorization": basicAuthHeaderValue(c.username, c.password)}, nil
}

func (c *basicAuthCreds) RequireTransportSecurity() bool { return false }

// apiKeyCreds carries an api_key credential in gRPC metadata; only the
// "header" location is supported per spec.md §4.2.
type apiKeyCreds struct {
	headerName, value string
}

func (c *apiKeyCreds) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{c.headerName: c.value}, nil
}

func (c *apiKeyCreds) RequireTransportSecurity() bool { return false }

// GRPCClientTransport implements C5 over a gRPC channel, grounded on the
// teacher's src/transports/grpc/grpc_transport.go.
type GRPCClientTransport struct {
	logger func(format string, args ...any)
}

func NewGRPCClientTransport(logger func(format string, args ...any)) *GRPCClientTransport {
	if logger == nil {
		logger = func(string, ...any) {}
	}
	return &GRPCClientTransport{logger: logger}
}

func (t *GRPCClientTransport) dial(p *GRPCProvider) (*grpc.ClientConn, error) {
	opts := []grpc.DialOption{grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName))}
	if p.UseSSL {
		return nil, &TransportError{Protocol: "grpc", Msg: "TLS dialing is not implemented; use_ssl=false only"}
	}
	opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))

	if auth, ok := p.Auth.(*BasicAuth); ok {
		opts = append(opts, grpc.WithPerRPCCredentials(&basicAuthCreds{username: auth.Username, password: auth.Password}))
	} else if auth, ok := p.Auth.(*ApiKeyAuth); ok {
		if auth.Location != AuthLocationHeader {
			return nil, &AuthError{Msg: "grpc plugin only supports api_key in header location"}
		}
		opts = append(opts, grpc.WithPerRPCCredentials(&apiKeyCreds{headerName: auth.VarName, value: auth.APIKey}))
	} else if _, ok := p.Auth.(*OAuth2Auth); ok {
		return nil, &AuthError{Msg: "oauth2 is not supported by the grpc plugin"}
	}

	target := fmt.Sprintf("%s:%d", p.Host, p.Port)
	return grpc.NewClient(target, opts...)
}

const grpcToolMethod = "/utcp.ToolService/CallTool"
const grpcListMethod = "/utcp.ToolService/ListTools"

func (t *GRPCClientTransport) RegisterToolProvider(ctx context.Context, provider Provider) ([]Tool, error) {
	p, ok := provider.(*GRPCProvider)
	if !ok {
		return nil, &ConfigError{Msg: "GRPCClientTransport received a non-GRPCProvider"}
	}
	conn, err := t.dial(p)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	req := &rawGRPCMessage{data: []byte("{}")}
	resp := &rawGRPCMessage{}
	if err := conn.Invoke(addGNMIStyleTarget(ctx, p.Target), grpcListMethod, req, resp); err != nil {
		t.logger("grpc discovery for %s failed: %v", p.Name, err)
		return nil, nil
	}
	var tools []Tool
	if err := json.Unmarshal(resp.data, &tools); err != nil {
		return nil, nil
	}
	return tools, nil
}

func (t *GRPCClientTransport) DeregisterToolProvider(ctx context.Context, provider Provider) error {
	return nil
}

func (t *GRPCClientTransport) CallTool(ctx context.Context, callName string, args map[string]any, provider Provider) (any, error) {
	p, ok := provider.(*GRPCProvider)
	if !ok {
		return nil, &ConfigError{Msg: "GRPCClientTransport received a non-GRPCProvider"}
	}
	conn, err := t.dial(p)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	payload, err := json.Marshal(map[string]any{"tool": callName, "args": args})
	if err != nil {
		return nil, &TransportError{Protocol: "grpc", Msg: "encoding request", Err: err}
	}
	req := &rawGRPCMessage{data: payload}
	resp := &rawGRPCMessage{}
	if err := conn.Invoke(addGNMIStyleTarget(ctx, p.Target), grpcToolMethod, req, resp); err != nil {
		return nil, &TransportError{Protocol: "grpc", Msg: "RPC failed", Err: err}
	}
	var value any
	if err := json.Unmarshal(resp.data, &value); err != nil {
		return string(resp.data), nil
	}
	return value, nil
}

func (t *GRPCClientTransport) CallToolStream(ctx context.Context, callName string, args map[string]any, provider Provider) (StreamResult, error) {
	p, ok := provider.(*GRPCProvider)
	if !ok {
		return nil, &ConfigError{Msg: "GRPCClientTransport received a non-GRPCProvider"}
	}
	conn, err := t.dial(p)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{"tool": callName, "args": args})
	if err != nil {
		conn.Close()
		return nil, &TransportError{Protocol: "grpc", Msg: "encoding request", Err: err}
	}

	desc := &grpc.StreamDesc{StreamName: "CallToolStream", ServerStreams: true}
	stream, err := conn.NewStream(addGNMIStyleTarget(ctx, p.Target), desc, "/utcp.ToolService/CallToolStream", grpc.CallContentSubtype(jsonCodecName))
	if err != nil {
		conn.Close()
		return nil, &TransportError{Protocol: "grpc", Msg: "opening stream", Err: err}
	}
	if err := stream.SendMsg(&rawGRPCMessage{data: payload}); err != nil {
		conn.Close()
		return nil, &TransportError{Protocol: "grpc", Msg: "sending stream request", Err: err}
	}
	if err := stream.CloseSend(); err != nil {
		conn.Close()
		return nil, &TransportError{Protocol: "grpc", Msg: "closing send side", Err: err}
	}

	ch := make(chan any, 16)
	go func() {
		defer close(ch)
		defer conn.Close()
		for {
			msg := &rawGRPCMessage{}
			if err := stream.RecvMsg(msg); err != nil {
				if err != io.EOF {
					select {
					case ch <- &StreamError{Msg: "receiving grpc stream frame", Err: err}:
					case <-ctx.Done():
					}
				}
				return
			}
			var v any
			if err := json.Unmarshal(msg.data, &v); err != nil {
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

// addGNMIStyleTarget mirrors the teacher's addTargetToContext, attaching
// a gNMI-style "target" metadata entry when a provider carries one; kept
// for providers speaking to gNMI-flavored gRPC gateways.
func addGNMIStyleTarget(ctx context.Context, target string) context.Context {
	if target == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "target", target)
}
