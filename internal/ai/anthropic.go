package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// AnthropicProvider talks to the Messages API directly with an Anthropic key.
type AnthropicProvider struct {
	BaseURL   string
	APIKey    string
	Model     string
	Version   string
	MaxTokens int
	Client    *http.Client
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicMsg struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicReq struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	System    string         `json:"system,omitempty"`
	Messages  []anthropicMsg `json:"messages"`
	Stream    bool           `json:"stream"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicErr struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicResp struct {
	Content []anthropicBlock `json:"content"`
	Error   *anthropicErr    `json:"error,omitempty"`
}

type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message,omitempty"`
	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta,omitempty"`
	Usage *anthropicUsage `json:"usage,omitempty"`
	Error *anthropicErr   `json:"error,omitempty"`
}

func NewAnthropicProvider(baseURL, apiKey, model, version string, maxTokens int) *AnthropicProvider {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if version == "" {
		version = "2023-06-01"
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicProvider{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		Model:     AnthropicModelID(model),
		Version:   version,
		MaxTokens: maxTokens,
		Client:    &http.Client{},
	}
}

// AnthropicModelID maps an OpenRouter style id ("anthropic/claude-sonnet-4.5")
// to the native one ("claude-sonnet-4-5"). Native ids pass through.
func AnthropicModelID(model string) string {
	model = strings.TrimSpace(model)
	model = strings.TrimPrefix(model, "anthropic/")
	return strings.ReplaceAll(model, ".", "-")
}

// wireMessages lifts system turns into the top-level system prompt; the
// Messages API only accepts user/assistant roles.
func (p *AnthropicProvider) wireMessages(messages []Message) (string, []anthropicMsg) {
	var system []string
	out := make([]anthropicMsg, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		blocks := make([]anthropicBlock, 0, len(m.Images)+1)
		for _, img := range m.Images {
			blocks = append(blocks, anthropicBlock{
				Type:   "image",
				Source: &anthropicSource{Type: "base64", MediaType: "image/png", Data: img},
			})
		}
		blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Content})
		out = append(out, anthropicMsg{Role: m.Role, Content: blocks})
	}
	return strings.Join(system, "\n\n"), out
}

func (p *AnthropicProvider) newRequest(ctx context.Context, messages []Message, stream bool) (*http.Request, error) {
	if p.Client == nil {
		return nil, errors.New("anthropic: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if p.Model == "" {
		return nil, errors.New("anthropic: model is required")
	}

	system, msgs := p.wireMessages(messages)
	b, err := json.Marshal(anthropicReq{
		Model:     p.Model,
		MaxTokens: p.MaxTokens,
		System:    system,
		Messages:  msgs,
		Stream:    stream,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/messages", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.APIKey)
	req.Header.Set("anthropic-version", p.Version)
	return req, nil
}

func (p *AnthropicProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 90*time.Second)
	defer cancel()

	req, err := p.newRequest(ctx, messages, false)
	if err != nil {
		return "", err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ProviderError{Provider: "anthropic", Status: resp.StatusCode, Message: errorBody(resp.Body)}
	}

	var decoded anthropicResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != nil {
		return "", &ProviderError{Provider: "anthropic", Message: decoded.Error.Message}
	}
	var b strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

// StreamChat streams text deltas from the Messages API event stream.
func (p *AnthropicProvider) StreamChat(ctx context.Context, messages []Message) (<-chan StreamEvent, <-chan error) {
	events := make(chan StreamEvent, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		req, err := p.newRequest(ctx, messages, true)
		if err != nil {
			errs <- err
			return
		}
		resp, err := p.Client.Do(req)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			errs <- &ProviderError{Provider: "anthropic", Status: resp.StatusCode, Message: errorBody(resp.Body)}
			return
		}

		finish := StreamEvent{Type: EventFinish, FinishReason: FinishStop}
		stopped := false

		err = scanSSE(resp.Body, func(_, data string) (bool, error) {
			var ev anthropicStreamEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				return false, err
			}
			switch ev.Type {
			case "error":
				msg := "stream error"
				if ev.Error != nil {
					msg = ev.Error.Message
				}
				return false, &ProviderError{Provider: "anthropic", Message: msg}
			case "message_start":
				if ev.Message != nil {
					finish.Usage.InputTokens = ev.Message.Usage.InputTokens
				}
			case "content_block_delta":
				if ev.Delta != nil && ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
					if !send(ctx, events, StreamEvent{Type: EventTextDelta, Text: ev.Delta.Text}) {
						return false, ctx.Err()
					}
				}
			case "message_delta":
				if ev.Delta != nil && ev.Delta.StopReason != "" {
					finish.FinishReason = normalizeAnthropicStop(ev.Delta.StopReason)
				}
				if ev.Usage != nil {
					finish.Usage.OutputTokens = ev.Usage.OutputTokens
				}
			case "message_stop":
				stopped = true
				return false, nil
			}
			return true, nil
		})
		if ctx.Err() != nil {
			errs <- ctx.Err()
			return
		}
		if err != nil {
			errs <- err
			return
		}
		if !stopped {
			errs <- &ProviderError{Provider: "anthropic", Message: "stream ended before message_stop"}
			return
		}
		finish.Usage.TotalTokens = finish.Usage.InputTokens + finish.Usage.OutputTokens
		send(ctx, events, finish)
	}()

	return events, errs
}

func normalizeAnthropicStop(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return FinishStop
	case "max_tokens":
		return FinishLength
	case "tool_use":
		return FinishToolCalls
	case "refusal":
		return FinishContentFilter
	default:
		return FinishOther
	}
}
