package utcp

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	mcpsdk "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"
	"github.com/stretchr/testify/require"
)

// startHelloMCPServer spins up a real mark3labs/mcp-go Streamable HTTP
// server with a single "hello" tool, grounded on the teacher's
// src/transports/mcp/mcp_transport_http_test.go.
func startHelloMCPServer(addr string) *mcpserver.StreamableHTTPServer {
	srv := mcpserver.NewMCPServer("demo", "1.0.0")
	hello := mcpsdk.NewTool("hello", mcpsdk.WithString("name"))
	srv.AddTool(hello, func(ctx context.Context, req mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		name := cast.ToString(req.GetArguments()["name"])
		if name == "" {
			name = "World"
		}
		return mcpsdk.NewToolResultText(fmt.Sprintf("Hello, %s!", name)), nil
	})
	httpSrv := mcpserver.NewStreamableHTTPServer(srv)
	go func() { _ = httpSrv.Start(addr) }()
	time.Sleep(100 * time.Millisecond)
	return httpSrv
}

func TestMCPClientTransportHTTPRoundTrip(t *testing.T) {
	httpSrv := startHelloMCPServer(":8398")
	defer httpSrv.Shutdown(context.Background())

	transport := NewMCPClientTransport(nil)
	provider := &MCPProvider{BaseProvider: BaseProvider{Name: "demo"}, URL: "http://localhost:8398/mcp"}

	ctx := context.Background()
	tools, err := transport.RegisterToolProvider(ctx, provider)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, "hello", tools[0].Name)

	result, err := transport.CallTool(ctx, "hello", map[string]any{"name": "Go"}, provider)
	require.NoError(t, err)
	require.Equal(t, "Hello, Go!", result)

	require.NoError(t, transport.DeregisterToolProvider(ctx, provider))
}

func TestMCPClientTransportHTTPStreamWrapsSingleResult(t *testing.T) {
	httpSrv := startHelloMCPServer(":8399")
	defer httpSrv.Shutdown(context.Background())

	transport := NewMCPClientTransport(nil)
	provider := &MCPProvider{BaseProvider: BaseProvider{Name: "demo"}, URL: "http://localhost:8399/mcp"}

	ctx := context.Background()
	_, err := transport.RegisterToolProvider(ctx, provider)
	require.NoError(t, err)

	stream, err := transport.CallToolStream(ctx, "hello", map[string]any{"name": "Stream"}, provider)
	require.NoError(t, err)
	defer stream.Close()

	v, err := stream.Next()
	require.NoError(t, err)
	require.Equal(t, "Hello, Stream!", v)

	_, err = stream.Next()
	require.ErrorIs(t, err, io.EOF)
}
