package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, events <-chan StreamEvent, errs <-chan error) ([]StreamEvent, error) {
	t.Helper()
	var out []StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out, <-errs
}

func TestOpenRouter_StreamChat_DeltasUsageFinish(t *testing.T) {
	var got openRouterChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "Kel", r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": OPENROUTER PROCESSING\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"Hel"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"lo!"},"finish_reason":"stop"}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "sk-test", "anthropic/claude-haiku-4.5", "", "Kel")
	streamEvents, streamErrs := p.StreamChat(context.Background(), []Message{
		{Role: RoleUser, Content: "Hi"},
	})
	events, err := collect(t, streamEvents, streamErrs)
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, StreamEvent{Type: EventTextDelta, Text: "Hel"}, events[0])
	assert.Equal(t, StreamEvent{Type: EventTextDelta, Text: "lo!"}, events[1])
	assert.Equal(t, EventFinish, events[2].Type)
	assert.Equal(t, FinishStop, events[2].FinishReason)
	assert.Equal(t, Usage{InputTokens: 5, OutputTokens: 2, TotalTokens: 7}, events[2].Usage)

	assert.True(t, got.Stream)
	require.NotNil(t, got.Usage)
	assert.True(t, got.Usage.Include)
	assert.Equal(t, "anthropic/claude-haiku-4.5", got.Model)
}

func TestOpenRouter_StreamChat_ImageParts(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "sk", "m", "", "")
	streamEvents, streamErrs := p.StreamChat(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "what is on screen?", Images: []string{"QUJD"}},
	})
	_, err := collect(t, streamEvents, streamErrs)
	require.NoError(t, err)

	msgs := raw["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "be brief", msgs[0].(map[string]any)["content"])

	parts := msgs[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	img := parts[1].(map[string]any)
	assert.Equal(t, "image_url", img["type"])
	assert.Equal(t, "data:image/png;base64,QUJD", img["image_url"].(map[string]any)["url"])
}

func TestOpenRouter_StreamChat_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "bad", "m", "", "")
	streamEvents, streamErrs := p.StreamChat(context.Background(), nil)
	events, err := collect(t, streamEvents, streamErrs)
	assert.Empty(t, events)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusUnauthorized, perr.Status)
	assert.Contains(t, perr.Message, "invalid key")
}

func TestOpenRouter_StreamChat_MidStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"a"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"error":{"code":502,"message":"upstream overloaded"}}`+"\n\n")
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "sk", "m", "", "")
	streamEvents, streamErrs := p.StreamChat(context.Background(), nil)
	events, err := collect(t, streamEvents, streamErrs)
	require.Len(t, events, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream overloaded")
}

func TestOpenRouter_StreamChat_MissingKey(t *testing.T) {
	p := NewOpenRouterProvider("http://127.0.0.1:1", "", "m", "", "")
	streamEvents, streamErrs := p.StreamChat(context.Background(), nil)
	_, err := collect(t, streamEvents, streamErrs)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestOpenRouter_StreamChat_CancelStopsRequest(t *testing.T) {
	released := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"Par"}}]}`+"\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(released)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p := NewOpenRouterProvider(srv.URL, "sk", "m", "", "")
	events, errs := p.StreamChat(ctx, nil)

	first := <-events
	assert.Equal(t, "Par", first.Text)
	cancel()

	for range events {
	}
	assert.ErrorIs(t, <-errs, context.Canceled)

	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream request was not cancelled")
	}
}

func TestOpenRouter_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": "Weekend plans"}}},
		})
		w.Write(body)
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "sk", "m", "", "")
	out, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: strings.Repeat("x", 10)}})
	require.NoError(t, err)
	assert.Equal(t, "Weekend plans", out)
}

func TestNormalizeOpenAIFinish(t *testing.T) {
	assert.Equal(t, FinishStop, normalizeOpenAIFinish("stop"))
	assert.Equal(t, FinishLength, normalizeOpenAIFinish("length"))
	assert.Equal(t, FinishContentFilter, normalizeOpenAIFinish("content_filter"))
	assert.Equal(t, FinishToolCalls, normalizeOpenAIFinish("tool_calls"))
	assert.Equal(t, FinishOther, normalizeOpenAIFinish("weird"))
}
