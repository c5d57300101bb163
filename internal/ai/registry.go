package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Credentials is what the gateway reads from persisted settings per call.
type Credentials struct {
	Kind   string
	APIKey string
	Model  string
}

type ProviderFactory func(ctx context.Context, creds Credentials) (Provider, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, creds Credentials) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(ctx, creds)
}

// Endpoints carries the non-secret provider settings from config.
type Endpoints struct {
	OpenRouterBaseURL  string
	OpenRouterSiteURL  string
	OpenRouterAppName  string
	AnthropicBaseURL   string
	AnthropicVersion   string
	AnthropicMaxTokens int
}

// NewDefaultRegistry registers the OpenRouter and Anthropic providers.
func NewDefaultRegistry(e Endpoints) *Registry {
	reg := NewRegistry()
	reg.Register(KindOpenRouter, func(_ context.Context, c Credentials) (Provider, error) {
		return NewOpenRouterProvider(e.OpenRouterBaseURL, c.APIKey, c.Model, e.OpenRouterSiteURL, e.OpenRouterAppName), nil
	})
	reg.Register(KindAnthropic, func(_ context.Context, c Credentials) (Provider, error) {
		return NewAnthropicProvider(e.AnthropicBaseURL, c.APIKey, c.Model, e.AnthropicVersion, e.AnthropicMaxTokens), nil
	})
	return reg
}
