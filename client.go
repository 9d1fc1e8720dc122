package utcp

import (
	"context"
	"sync"
)

// resolvedTool is the kernel's per-call-name cache entry (C11).
type resolvedTool struct {
	provider Provider
	protocol ClientTransport
	callName string
}

// UtcpClientInterface is the façade applications hold: two verbs,
// call_tool and call_tool_stream, plus the registration lifecycle and
// search.
type UtcpClientInterface interface {
	RegisterToolProvider(ctx context.Context, provider Provider) ([]Tool, error)
	DeregisterToolProvider(ctx context.Context, name string) error
	CallTool(ctx context.Context, toolName string, args map[string]any) (any, error)
	CallToolStream(ctx context.Context, toolName string, args map[string]any) (StreamResult, error)
	SearchTools(ctx context.Context, query string, limit int) ([]Tool, error)
}

// UtcpClient is the reference client kernel (C11).
type UtcpClient struct {
	config     *ClientConfig
	protocols  map[ProtocolTag]ClientTransport
	repository ToolRepository
	search     SearchStrategy

	providerCacheMu sync.RWMutex
	providerCache   map[string][]Tool

	resolvedCacheMu sync.RWMutex
	resolvedCache   map[string]resolvedTool
}

// NewUtcpClient builds a kernel snapshotting registry's current plugin set,
// with an in-memory repository and a tag search strategy, matching the
// teacher's NewUtcpClient constructor shape.
func NewUtcpClient(config *ClientConfig, registry *ProtocolRegistry) *UtcpClient {
	if config == nil {
		config = NewClientConfig()
	}
	if registry == nil {
		registry = DefaultProtocolRegistry()
	}
	repo := NewInMemoryToolRepository()
	return &UtcpClient{
		config:        config,
		protocols:     registry.Snapshot(),
		repository:    repo,
		search:        NewTagSearchStrategy(repo, 1.0),
		providerCache: make(map[string][]Tool),
		resolvedCache: make(map[string]resolvedTool),
	}
}

// LoadProviders parses a manifest document and registers every provider
// it materializes, in order, stopping at the first registration failure.
func (c *UtcpClient) LoadProviders(ctx context.Context, data []byte) error {
	providers, err := LoadProvidersFromBytes(data, c.config)
	if err != nil {
		return err
	}
	for _, p := range providers {
		if _, err := c.RegisterToolProvider(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (c *UtcpClient) RegisterToolProvider(ctx context.Context, provider Provider) ([]Tool, error) {
	name := provider.Base().Name

	c.providerCacheMu.RLock()
	if cached, ok := c.providerCache[name]; ok {
		c.providerCacheMu.RUnlock()
		return cached, nil
	}
	c.providerCacheMu.RUnlock()

	protocol, ok := c.protocols[provider.Type()]
	if !ok {
		return nil, &UnknownProtocolError{Protocol: string(provider.Type())}
	}

	bareTools, err := protocol.RegisterToolProvider(ctx, provider)
	if err != nil {
		return nil, err
	}

	normalized := make([]Tool, len(bareTools))
	for i, t := range bareTools {
		normalized[i] = t
		normalized[i].Name = normalizeToolName(name, t.Name)
	}

	if err := c.repository.SaveProviderWithTools(ctx, provider, normalized); err != nil {
		return nil, err
	}

	c.providerCacheMu.Lock()
	c.providerCache[name] = normalized
	c.providerCacheMu.Unlock()

	// resolvedCache is deliberately left untouched here: populating it now
	// would bypass resolveTool's allowed-protocol check on every first
	// call, since resolveTool returns on a cache hit before ever reaching
	// that check. Per spec.md §4.7/§9, allowlist enforcement belongs at
	// call time, not registration time — resolveTool populates the cache
	// itself, after the check passes.
	return normalized, nil
}

// normalizeToolName rewrites bare into "<providerName>.<bare>" unless it
// is already prefixed with providerName+".".
func normalizeToolName(providerName, bare string) string {
	prefix := providerName + "."
	if len(bare) > len(prefix) && bare[:len(prefix)] == prefix {
		return bare
	}
	return prefix + stripLeadingDots(bare)
}

func (c *UtcpClient) DeregisterToolProvider(ctx context.Context, name string) error {
	provider, err := c.repository.GetProvider(ctx, name)
	if err != nil {
		return err
	}

	if protocol, ok := c.protocols[provider.Type()]; ok {
		_ = protocol.DeregisterToolProvider(ctx, provider)
	}

	if err := c.repository.RemoveProvider(ctx, name); err != nil {
		return err
	}

	c.providerCacheMu.Lock()
	delete(c.providerCache, name)
	c.providerCacheMu.Unlock()

	prefix := name + "."
	c.resolvedCacheMu.Lock()
	for k := range c.resolvedCache {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.resolvedCache, k)
		}
	}
	c.resolvedCacheMu.Unlock()

	return nil
}

// resolveTool implements resolve_tool from spec.md §4.7: cache hit, else
// split/lookup/protocol-lookup/call-name-computation, with allowed-
// protocol enforcement happening here rather than at registration.
func (c *UtcpClient) resolveTool(ctx context.Context, fullName string) (resolvedTool, error) {
	c.resolvedCacheMu.RLock()
	if rt, ok := c.resolvedCache[fullName]; ok {
		c.resolvedCacheMu.RUnlock()
		return rt, nil
	}
	c.resolvedCacheMu.RUnlock()

	providerName, bare, ok := splitToolName(fullName)
	if !ok {
		return resolvedTool{}, &InvalidToolNameError{Name: fullName}
	}

	provider, err := c.repository.GetProvider(ctx, providerName)
	if err != nil {
		return resolvedTool{}, err
	}

	protocol, ok := c.protocols[provider.Type()]
	if !ok {
		return resolvedTool{}, &UnknownProtocolError{Protocol: string(provider.Type())}
	}

	callName := fullName
	if provider.Type() == ProtocolMCP || provider.Type() == ProtocolText {
		callName = bare
	}

	base := provider.Base()
	if !base.IsProtocolAllowed(provider.Type()) {
		return resolvedTool{}, &ProtocolNotAllowedError{
			Provider: providerName,
			Tag:      provider.Type(),
			Allowed:  base.AllowedProtocols(),
		}
	}

	rt := resolvedTool{provider: provider, protocol: protocol, callName: callName}
	c.resolvedCacheMu.Lock()
	c.resolvedCache[fullName] = rt
	c.resolvedCacheMu.Unlock()
	return rt, nil
}

func (c *UtcpClient) CallTool(ctx context.Context, toolName string, args map[string]any) (any, error) {
	rt, err := c.resolveTool(ctx, toolName)
	if err != nil {
		return nil, err
	}
	return rt.protocol.CallTool(ctx, rt.callName, args, rt.provider)
}

func (c *UtcpClient) CallToolStream(ctx context.Context, toolName string, args map[string]any) (StreamResult, error) {
	rt, err := c.resolveTool(ctx, toolName)
	if err != nil {
		return nil, err
	}
	return rt.protocol.CallToolStream(ctx, rt.callName, args, rt.provider)
}

func (c *UtcpClient) SearchTools(ctx context.Context, query string, limit int) ([]Tool, error) {
	return c.search.SearchTools(ctx, query, limit)
}
