package utcp

import "log"

// defaultLogger adapts the standard logger to the logger callback shape
// every plugin accepts, matching the teacher's defaultLogger.
func defaultLogger(format string, args ...any) {
	log.Printf(format, args...)
}

func init() {
	RegisterDefaultTransports(defaultRegistry, defaultLogger)
}

// RegisterDefaultTransports seeds registry with one instance per built-in
// protocol (C6's "process start" seeding from spec.md §4.3).
func RegisterDefaultTransports(registry *ProtocolRegistry, logger func(format string, args ...any)) {
	registry.Register(ProtocolHTTP, NewHTTPClientTransport(logger))
	registry.Register(ProtocolSSE, NewSSEClientTransport(logger))
	registry.Register(ProtocolHTTPStream, NewStreamableHTTPClientTransport(logger))
	registry.Register(ProtocolCLI, NewCLIClientTransport(logger))
	registry.Register(ProtocolWebSocket, NewWebSocketClientTransport(logger))
	registry.Register(ProtocolGRPC, NewGRPCClientTransport(logger))
	registry.Register(ProtocolGraphQL, NewGraphQLClientTransport(logger))
	registry.Register(ProtocolTCP, NewTCPClientTransport(logger))
	registry.Register(ProtocolUDP, NewUDPClientTransport(logger))
	registry.Register(ProtocolWebRTC, NewWebRTCClientTransport(logger))
	registry.Register(ProtocolMCP, NewMCPClientTransport(logger))
	registry.Register(ProtocolText, NewTextClientTransport(logger))
}
