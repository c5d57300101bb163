package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	creds Credentials
	err   error
	calls int
}

func (s *staticSource) Credentials(ctx context.Context) (Credentials, error) {
	s.calls++
	return s.creds, s.err
}

type recordingProvider struct {
	creds Credentials
	last  []Message
}

func (p *recordingProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	p.last = append([]Message(nil), messages...)
	return "ok", nil
}

func (p *recordingProvider) StreamChat(ctx context.Context, messages []Message) (<-chan StreamEvent, <-chan error) {
	p.last = append([]Message(nil), messages...)
	events := make(chan StreamEvent, 2)
	errs := make(chan error)
	events <- StreamEvent{Type: EventTextDelta, Text: "ok"}
	events <- StreamEvent{Type: EventFinish, FinishReason: FinishStop}
	close(events)
	close(errs)
	return events, errs
}

func newTestGateway(src *staticSource) (*Gateway, map[string]*recordingProvider) {
	made := map[string]*recordingProvider{}
	reg := NewRegistry()
	for _, kind := range []string{KindOpenRouter, KindAnthropic} {
		kind := kind
		reg.Register(kind, func(ctx context.Context, c Credentials) (Provider, error) {
			p := &recordingProvider{creds: c}
			made[kind] = p
			return p, nil
		})
	}
	return NewGateway(src, reg, "anthropic/claude-sonnet-4.5"), made
}

func TestGateway_NotConfigured(t *testing.T) {
	g, made := newTestGateway(&staticSource{creds: Credentials{Kind: KindOpenRouter}})

	streamEvents, streamErrs := g.Stream(context.Background(), nil)
	events, err := collect(t, streamEvents, streamErrs)
	assert.Empty(t, events)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Empty(t, made)

	_, err = g.Complete(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestGateway_ReadsSettingsEachCall(t *testing.T) {
	src := &staticSource{creds: Credentials{APIKey: "sk"}}
	g, made := newTestGateway(src)

	streamEvents, streamErrs := g.Stream(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}})
	events, err := collect(t, streamEvents, streamErrs)
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.Contains(t, made, KindOpenRouter, "empty kind defaults to openrouter")
	assert.Equal(t, "anthropic/claude-sonnet-4.5", made[KindOpenRouter].creds.Model)

	src.creds = Credentials{Kind: "Anthropic", APIKey: "sk-ant", Model: "anthropic/claude-haiku-4.5"}
	out, err := g.Complete(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	require.Contains(t, made, KindAnthropic)
	assert.Equal(t, "anthropic/claude-haiku-4.5", made[KindAnthropic].creds.Model)
	assert.Equal(t, 2, src.calls)
}

func TestGateway_SettingsError(t *testing.T) {
	boom := errors.New("disk gone")
	g, _ := newTestGateway(&staticSource{err: boom})
	streamEvents, streamErrs := g.Stream(context.Background(), nil)
	_, err := collect(t, streamEvents, streamErrs)
	assert.ErrorIs(t, err, boom)
}

func TestRegistry_UnknownProvider(t *testing.T) {
	_, err := NewRegistry().Get(context.Background(), "nope", Credentials{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ai provider")
}
