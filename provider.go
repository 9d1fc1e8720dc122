package utcp

import (
	"encoding/json"
	"fmt"
)

// ProtocolTag is the wire-protocol discriminator shared by providers,
// plugins, and the registry.
type ProtocolTag string

const (
	ProtocolHTTP       ProtocolTag = "http"
	ProtocolSSE        ProtocolTag = "sse"
	ProtocolHTTPStream ProtocolTag = "http_stream"
	ProtocolCLI        ProtocolTag = "cli"
	ProtocolWebSocket  ProtocolTag = "websocket"
	ProtocolGRPC       ProtocolTag = "grpc"
	ProtocolGraphQL    ProtocolTag = "graphql"
	ProtocolTCP        ProtocolTag = "tcp"
	ProtocolUDP        ProtocolTag = "udp"
	ProtocolWebRTC     ProtocolTag = "webrtc"
	ProtocolMCP        ProtocolTag = "mcp"
	ProtocolText       ProtocolTag = "text"
)

// Provider is implemented by every concrete provider variant. The kernel
// only ever reads base fields plus Type() — no downcasting outside of the
// owning plugin.
type Provider interface {
	Type() ProtocolTag
	Base() *BaseProvider
}

// BaseProvider holds the fields every provider variant shares.
type BaseProvider struct {
	Name                        string        `json:"name"`
	ProviderType                ProtocolTag   `json:"provider_type"`
	Auth                        Auth          `json:"-"`
	AllowedCommunicationProtos  []ProtocolTag `json:"allowed_communication_protocols,omitempty"`
}

func (b *BaseProvider) Type() ProtocolTag   { return b.ProviderType }
func (b *BaseProvider) Base() *BaseProvider { return b }

// AllowedProtocols returns the effective allow-list: an absent/empty list
// means "only my own protocol", per spec.md §3/§9.
func (b *BaseProvider) AllowedProtocols() []ProtocolTag {
	if len(b.AllowedCommunicationProtos) == 0 {
		return []ProtocolTag{b.ProviderType}
	}
	return b.AllowedCommunicationProtos
}

// IsProtocolAllowed reports whether tag is in the effective allow-list.
func (b *BaseProvider) IsProtocolAllowed(tag ProtocolTag) bool {
	for _, p := range b.AllowedProtocols() {
		if p == tag {
			return true
		}
	}
	return false
}

// HttpProvider is a RESTful HTTP/HTTPS API.
type HttpProvider struct {
	BaseProvider
	URL          string            `json:"url"`
	HTTPMethod   string            `json:"http_method"`
	ContentType  string            `json:"content_type"`
	Headers      map[string]string `json:"headers,omitempty"`
	BodyField    *string           `json:"body_field,omitempty"`
	HeaderFields []string          `json:"header_fields,omitempty"`
}

// SSEProvider is a Server-Sent Events endpoint.
type SSEProvider struct {
	BaseProvider
	URL          string            `json:"url"`
	Headers      map[string]string `json:"headers,omitempty"`
	BodyField    *string           `json:"body_field,omitempty"`
	HeaderFields []string          `json:"header_fields,omitempty"`
}

// StreamableHttpProvider is HTTP with an incrementally-decoded JSON body.
type StreamableHttpProvider struct {
	BaseProvider
	URL        string            `json:"url"`
	HTTPMethod string            `json:"http_method"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// CliProvider runs a local command-line tool. Auth is always ignored.
type CliProvider struct {
	BaseProvider
	CommandName string            `json:"command_name"`
	EnvVars     map[string]string `json:"env_vars,omitempty"`
	WorkingDir  *string           `json:"working_dir,omitempty"`
}

// WebSocketProvider is a WebSocket connection.
type WebSocketProvider struct {
	BaseProvider
	URL       string            `json:"url"`
	Protocol  *string           `json:"protocol,omitempty"`
	KeepAlive bool              `json:"keep_alive"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// GRPCProvider is a gRPC service.
type GRPCProvider struct {
	BaseProvider
	Host   string `json:"host"`
	Port   int    `json:"port"`
	UseSSL bool   `json:"use_ssl"`
	// Target, when set, is attached to outgoing calls as a gNMI-style
	// "target" metadata entry for gRPC gateways that multiplex several
	// logical devices/services behind one channel.
	Target string `json:"target,omitempty"`
}

// GraphQLProvider is a GraphQL endpoint.
type GraphQLProvider struct {
	BaseProvider
	URL           string            `json:"url"`
	OperationType string            `json:"operation_type"`
	OperationName *string           `json:"operation_name,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
}

// TCPProvider is a raw TCP socket. Auth is always ignored.
type TCPProvider struct {
	BaseProvider
	Host      string `json:"host"`
	Port      int    `json:"port"`
	TimeoutMs int    `json:"timeout_ms"`
}

// UDPProvider is a raw UDP socket. Auth is always ignored.
type UDPProvider struct {
	BaseProvider
	Host      string `json:"host"`
	Port      int    `json:"port"`
	TimeoutMs int    `json:"timeout_ms"`
}

// WebRTCProvider is a WebRTC data channel. Auth is always ignored for the
// data channel itself; it may apply to the signaling handshake.
type WebRTCProvider struct {
	BaseProvider
	SignalingServer    string   `json:"signaling_server"`
	ICEServers         []string `json:"ice_servers,omitempty"`
	ChannelLabel       string   `json:"channel_label"`
	Ordered            *bool    `json:"ordered,omitempty"`
	MaxPacketLifeTime  *int     `json:"max_packet_life_time,omitempty"`
	MaxRetransmits     *int     `json:"max_retransmits,omitempty"`
}

// IsOrdered reports the effective ordered setting, defaulting to true per
// spec.md §6 when the manifest omits the field.
func (p *WebRTCProvider) IsOrdered() bool {
	return p.Ordered == nil || *p.Ordered
}

// MCPProvider reaches an MCP server either over HTTP JSON-RPC (URL set) or
// over stdio (Command set).
type MCPProvider struct {
	BaseProvider
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	EnvVars map[string]string `json:"env_vars,omitempty"`
}

// IsStdio reports whether this provider should be driven over a spawned
// subprocess rather than HTTP.
func (p *MCPProvider) IsStdio() bool { return p.Command != "" }

// TextProvider reads tool definitions (and, for CallTool, handlers) from a
// local file or in-process registry keyed by BasePath.
type TextProvider struct {
	BaseProvider
	BasePath string `json:"base_path,omitempty"`
}

// unmarshalProvider inspects "provider_type" (or the v1.0
// "call_template_type", or legacy "type") and returns the right concrete
// struct, mirroring the teacher's UnmarshalProvider.
func unmarshalProvider(data []byte) (Provider, error) {
	var disc struct {
		ProviderType     ProtocolTag     `json:"provider_type"`
		CallTemplateType ProtocolTag     `json:"call_template_type"`
		Type             ProtocolTag     `json:"type"`
		Auth             json.RawMessage `json:"auth"`
	}
	if err := json.Unmarshal(data, &disc); err != nil {
		return nil, &ConfigError{Msg: "invalid provider JSON", Err: err}
	}
	tag := disc.ProviderType
	if tag == "" {
		tag = disc.CallTemplateType
	}
	if tag == "" {
		tag = disc.Type
	}

	var p Provider
	switch tag {
	case ProtocolHTTP:
		p = &HttpProvider{}
	case ProtocolSSE:
		p = &SSEProvider{}
	case ProtocolHTTPStream:
		p = &StreamableHttpProvider{}
	case ProtocolCLI:
		p = &CliProvider{}
	case ProtocolWebSocket:
		p = &WebSocketProvider{}
	case ProtocolGRPC:
		p = &GRPCProvider{}
	case ProtocolGraphQL:
		p = &GraphQLProvider{}
	case ProtocolTCP:
		p = &TCPProvider{}
	case ProtocolUDP:
		p = &UDPProvider{}
	case ProtocolWebRTC:
		p = &WebRTCProvider{}
	case ProtocolMCP:
		p = &MCPProvider{}
	case ProtocolText:
		p = &TextProvider{}
	default:
		return nil, &ConfigError{Msg: fmt.Sprintf("unsupported provider_type %q", tag)}
	}

	if err := json.Unmarshal(data, p); err != nil {
		return nil, &ConfigError{Msg: "invalid provider JSON", Err: err}
	}
	base := p.Base()
	base.ProviderType = tag
	if auth, err := unmarshalAuth(disc.Auth); err != nil {
		return nil, &ConfigError{Msg: "invalid auth block", Err: err}
	} else {
		base.Auth = auth
	}
	applyProviderDefaults(p)
	return p, nil
}

// applyProviderDefaults fills in the per-type defaults spec.md §6 names.
func applyProviderDefaults(p Provider) {
	switch v := p.(type) {
	case *HttpProvider:
		if v.HTTPMethod == "" {
			v.HTTPMethod = "GET"
		}
		if v.ContentType == "" {
			v.ContentType = "application/json"
		}
	case *StreamableHttpProvider:
		if v.HTTPMethod == "" {
			v.HTTPMethod = "POST"
		}
	case *GraphQLProvider:
		if v.OperationType == "" {
			v.OperationType = "query"
		}
	case *WebRTCProvider:
		if v.ChannelLabel == "" {
			v.ChannelLabel = "utcp-data"
		}
	}
}
