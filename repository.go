package utcp

import (
	"context"
	"strings"
	"sync"
)

// ToolRepository is the in-memory store of providers and their tool
// lists (C8). Implementations must guard both maps with a single
// read-write lock so save/remove are atomic across the pair.
type ToolRepository interface {
	SaveProviderWithTools(ctx context.Context, provider Provider, tools []Tool) error
	RemoveProvider(ctx context.Context, name string) error
	RemoveTool(ctx context.Context, toolName string) error
	GetTool(ctx context.Context, toolName string) (*Tool, error)
	GetTools(ctx context.Context) ([]Tool, error)
	GetToolsByProvider(ctx context.Context, name string) ([]Tool, error)
	GetProvider(ctx context.Context, name string) (Provider, error)
	GetProviders(ctx context.Context) ([]Provider, error)
}

// InMemoryToolRepository is the reference ToolRepository: two maps keyed
// by provider name, guarded by one RWMutex.
type InMemoryToolRepository struct {
	mu        sync.RWMutex
	providers map[string]Provider
	tools     map[string][]Tool
}

// NewInMemoryToolRepository builds an empty repository.
func NewInMemoryToolRepository() *InMemoryToolRepository {
	return &InMemoryToolRepository{
		providers: make(map[string]Provider),
		tools:     make(map[string][]Tool),
	}
}

func (r *InMemoryToolRepository) SaveProviderWithTools(_ context.Context, provider Provider, tools []Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := provider.Base().Name
	r.providers[name] = provider
	cp := make([]Tool, len(tools))
	copy(cp, tools)
	r.tools[name] = cp
	return nil
}

func (r *InMemoryToolRepository) RemoveProvider(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return &ProviderNotFoundError{Name: name}
	}
	delete(r.providers, name)
	delete(r.tools, name)
	return nil
}

// RemoveTool drops a single tool by its fully-prefixed name, leaving the
// provider and its remaining tools intact.
func (r *InMemoryToolRepository) RemoveTool(_ context.Context, toolName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	providerName, _, ok := splitToolName(toolName)
	if !ok {
		return &InvalidToolNameError{Name: toolName}
	}
	list, ok := r.tools[providerName]
	if !ok {
		return &NoToolsForProviderError{Name: providerName}
	}
	filtered := make([]Tool, 0, len(list))
	found := false
	for _, t := range list {
		if t.Name == toolName {
			found = true
			continue
		}
		filtered = append(filtered, t)
	}
	if !found {
		return &InvalidToolNameError{Name: toolName}
	}
	r.tools[providerName] = filtered
	return nil
}

func (r *InMemoryToolRepository) GetTool(_ context.Context, toolName string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	providerName, _, ok := splitToolName(toolName)
	if !ok {
		return nil, &InvalidToolNameError{Name: toolName}
	}
	for _, t := range r.tools[providerName] {
		if t.Name == toolName {
			tc := t
			return &tc, nil
		}
	}
	return nil, &InvalidToolNameError{Name: toolName}
}

func (r *InMemoryToolRepository) GetTools(_ context.Context) ([]Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []Tool
	for _, list := range r.tools {
		all = append(all, list...)
	}
	return all, nil
}

func (r *InMemoryToolRepository) GetToolsByProvider(_ context.Context, name string) ([]Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list, ok := r.tools[name]
	if !ok {
		return nil, &NoToolsForProviderError{Name: name}
	}
	cp := make([]Tool, len(list))
	copy(cp, list)
	return cp, nil
}

func (r *InMemoryToolRepository) GetProvider(_ context.Context, name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, &ProviderNotFoundError{Name: name}
	}
	return p, nil
}

func (r *InMemoryToolRepository) GetProviders(_ context.Context) ([]Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out, nil
}

// splitToolName splits "provider.bare" on the first dot. ok is false when
// there is no dot or the provider component is empty.
func splitToolName(name string) (provider, bare string, ok bool) {
	idx := strings.Index(name, ".")
	if idx <= 0 {
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}
