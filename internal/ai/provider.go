package ai

import (
	"context"
	"errors"
	"fmt"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one entry of the ordered history sent to a provider.
// Images are base64-encoded PNG bytes attached to user turns.
type Message struct {
	Role    string
	Content string
	Images  []string
}

type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// StreamProvider is an optional interface. Providers may implement streaming chat.
// Both channels are closed when the stream ends; events stop promptly once ctx is done.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message) (<-chan StreamEvent, <-chan error)
}

type EventType string

const (
	EventTextDelta EventType = "text-delta"
	EventFinish    EventType = "finish"
)

const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishContentFilter = "content-filter"
	FinishToolCalls     = "tool-calls"
	FinishOther         = "other"
)

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type StreamEvent struct {
	Type         EventType
	Text         string
	FinishReason string
	Usage        Usage
}

// ErrNotConfigured is returned when no credential is stored in settings.
var ErrNotConfigured = errors.New("ai: credential is not configured")

// ProviderError is a failure reported by the upstream provider.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// send delivers ev unless ctx is done first.
func send(ctx context.Context, out chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
