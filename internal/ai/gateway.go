package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	KindOpenRouter = "openrouter"
	KindAnthropic  = "anthropic"
)

type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// Gateway resolves the provider from settings at call time, so a key or model
// change applies to the next turn without a restart.
type Gateway struct {
	source       CredentialSource
	registry     *Registry
	defaultModel string
}

func NewGateway(source CredentialSource, registry *Registry, defaultModel string) *Gateway {
	return &Gateway{source: source, registry: registry, defaultModel: defaultModel}
}

func (g *Gateway) resolve(ctx context.Context) (Provider, error) {
	creds, err := g.source.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("ai: read settings: %w", err)
	}
	if strings.TrimSpace(creds.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if creds.Kind == "" {
		creds.Kind = KindOpenRouter
	}
	if strings.TrimSpace(creds.Model) == "" {
		creds.Model = g.defaultModel
	}
	return g.registry.Get(ctx, creds.Kind, creds)
}

// Stream opens a streaming completion over the ordered history. Resolution
// failures (including ErrNotConfigured) arrive on the error channel.
func (g *Gateway) Stream(ctx context.Context, messages []Message) (<-chan StreamEvent, <-chan error) {
	p, err := g.resolve(ctx)
	if err != nil {
		return failed(err)
	}
	sp, ok := p.(StreamProvider)
	if !ok {
		return failed(errors.New("provider does not support streaming"))
	}
	return sp.StreamChat(ctx, messages)
}

// Complete runs a non-streaming completion.
func (g *Gateway) Complete(ctx context.Context, messages []Message) (string, error) {
	p, err := g.resolve(ctx)
	if err != nil {
		return "", err
	}
	return p.Chat(ctx, messages)
}

func failed(err error) (<-chan StreamEvent, <-chan error) {
	events := make(chan StreamEvent)
	errs := make(chan error, 1)
	errs <- err
	close(events)
	close(errs)
	return events, errs
}
