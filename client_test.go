package utcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory ClientTransport used to exercise the
// kernel without a real network/process dependency.
type fakeTransport struct {
	discovered map[string][]Tool
	lastCall   struct {
		callName string
		args     map[string]any
	}
	callResult   any
	registerErr  error
	deregistered []string
}

func (f *fakeTransport) RegisterToolProvider(_ context.Context, provider Provider) ([]Tool, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return f.discovered[provider.Base().Name], nil
}

func (f *fakeTransport) DeregisterToolProvider(_ context.Context, provider Provider) error {
	f.deregistered = append(f.deregistered, provider.Base().Name)
	return nil
}

func (f *fakeTransport) CallTool(_ context.Context, callName string, args map[string]any, _ Provider) (any, error) {
	f.lastCall.callName = callName
	f.lastCall.args = args
	return f.callResult, nil
}

func (f *fakeTransport) CallToolStream(ctx context.Context, callName string, args map[string]any, provider Provider) (StreamResult, error) {
	v, err := f.CallTool(ctx, callName, args, provider)
	if err != nil {
		return nil, err
	}
	return newSingleItemStream(v, nil), nil
}

func newTestClient(t *testing.T, tag ProtocolTag, transport ClientTransport) *UtcpClient {
	t.Helper()
	registry := NewProtocolRegistry()
	registry.Register(tag, transport)
	return NewUtcpClient(NewClientConfig(), registry)
}

func TestRegisterToolProviderNormalizesToolNames(t *testing.T) {
	transport := &fakeTransport{discovered: map[string][]Tool{"weather": {{Name: "forecast"}}}}
	client := newTestClient(t, ProtocolHTTP, transport)

	provider := &HttpProvider{BaseProvider: BaseProvider{Name: "weather", ProviderType: ProtocolHTTP}, URL: "https://x"}
	tools, err := client.RegisterToolProvider(context.Background(), provider)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, "weather.forecast", tools[0].Name)
}

func TestRegisterToolProviderIsIdempotent(t *testing.T) {
	calls := 0
	transport := &countingTransport{fakeTransport: fakeTransport{discovered: map[string][]Tool{"weather": {{Name: "forecast"}}}}, calls: &calls}
	client := newTestClient(t, ProtocolHTTP, transport)
	provider := &HttpProvider{BaseProvider: BaseProvider{Name: "weather", ProviderType: ProtocolHTTP}, URL: "https://x"}

	_, err := client.RegisterToolProvider(context.Background(), provider)
	require.NoError(t, err)
	_, err = client.RegisterToolProvider(context.Background(), provider)
	require.NoError(t, err)
	require.Equal(t, 1, calls, "a second registration of the same provider name must be a cache hit")
}

type countingTransport struct {
	fakeTransport
	calls *int
}

func (c *countingTransport) RegisterToolProvider(ctx context.Context, provider Provider) ([]Tool, error) {
	*c.calls++
	return c.fakeTransport.RegisterToolProvider(ctx, provider)
}

func TestCallToolRoutesThroughResolvedProtocol(t *testing.T) {
	transport := &fakeTransport{
		discovered: map[string][]Tool{"weather": {{Name: "forecast"}}},
		callResult: "sunny",
	}
	client := newTestClient(t, ProtocolHTTP, transport)
	provider := &HttpProvider{BaseProvider: BaseProvider{Name: "weather", ProviderType: ProtocolHTTP}, URL: "https://x"}
	_, err := client.RegisterToolProvider(context.Background(), provider)
	require.NoError(t, err)

	result, err := client.CallTool(context.Background(), "weather.forecast", map[string]any{"city": "nyc"})
	require.NoError(t, err)
	require.Equal(t, "sunny", result)
	require.Equal(t, "weather.forecast", transport.lastCall.callName)
}

func TestCallToolStripsPrefixForMCPAndText(t *testing.T) {
	transport := &fakeTransport{discovered: map[string][]Tool{"local": {{Name: "run_code"}}}}
	client := newTestClient(t, ProtocolText, transport)
	provider := &TextProvider{BaseProvider: BaseProvider{Name: "local", ProviderType: ProtocolText}, BasePath: "/tmp/manual.json"}
	_, err := client.RegisterToolProvider(context.Background(), provider)
	require.NoError(t, err)

	_, err = client.CallTool(context.Background(), "local.run_code", nil)
	require.NoError(t, err)
	require.Equal(t, "run_code", transport.lastCall.callName, "text/mcp providers must be called with the bare tool name")
}

func TestCallToolDeniedWhenProtocolNotInAllowlist(t *testing.T) {
	transport := &fakeTransport{discovered: map[string][]Tool{"weather": {{Name: "forecast"}}}}
	client := newTestClient(t, ProtocolHTTP, transport)
	provider := &HttpProvider{
		BaseProvider: BaseProvider{
			Name:                       "weather",
			ProviderType:               ProtocolHTTP,
			AllowedCommunicationProtos: []ProtocolTag{ProtocolGRPC},
		},
		URL: "https://x",
	}
	_, err := client.RegisterToolProvider(context.Background(), provider)
	require.NoError(t, err)

	_, err = client.CallTool(context.Background(), "weather.forecast", nil)
	require.Error(t, err)
	var denied *ProtocolNotAllowedError
	require.ErrorAs(t, err, &denied)
}

func TestDeregisterToolProviderEvictsCachesAndCallsPlugin(t *testing.T) {
	transport := &fakeTransport{discovered: map[string][]Tool{"weather": {{Name: "forecast"}}}}
	client := newTestClient(t, ProtocolHTTP, transport)
	provider := &HttpProvider{BaseProvider: BaseProvider{Name: "weather", ProviderType: ProtocolHTTP}, URL: "https://x"}
	_, err := client.RegisterToolProvider(context.Background(), provider)
	require.NoError(t, err)

	require.NoError(t, client.DeregisterToolProvider(context.Background(), "weather"))
	require.Equal(t, []string{"weather"}, transport.deregistered)

	_, err = client.CallTool(context.Background(), "weather.forecast", nil)
	require.Error(t, err, "resolving a tool after its provider is deregistered must fail")
}

func TestCallToolUnknownProviderErrors(t *testing.T) {
	client := newTestClient(t, ProtocolHTTP, &fakeTransport{})
	_, err := client.CallTool(context.Background(), "ghost.tool", nil)
	require.Error(t, err)
}

func TestCallToolInvalidNameErrors(t *testing.T) {
	client := newTestClient(t, ProtocolHTTP, &fakeTransport{})
	_, err := client.CallTool(context.Background(), "no-dot-here", nil)
	require.Error(t, err)
	var invalid *InvalidToolNameError
	require.ErrorAs(t, err, &invalid)
}
