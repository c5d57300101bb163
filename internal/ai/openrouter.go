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

type OpenRouterProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	SiteURL string
	AppName string
	Client  *http.Client
}

type openRouterMsg struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openRouterPart struct {
	Type     string              `json:"type"`
	Text     string              `json:"text,omitempty"`
	ImageURL *openRouterImageURL `json:"image_url,omitempty"`
}

type openRouterImageURL struct {
	URL string `json:"url"`
}

type openRouterUsageOpt struct {
	Include bool `json:"include"`
}

type openRouterChatReq struct {
	Model    string              `json:"model"`
	Messages []openRouterMsg     `json:"messages"`
	Stream   bool                `json:"stream"`
	Usage    *openRouterUsageOpt `json:"usage,omitempty"`
}

type openRouterUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openRouterError struct {
	Code    any    `json:"code,omitempty"`
	Message string `json:"message"`
}

type openRouterChatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *openRouterError `json:"error,omitempty"`
}

type openRouterStreamResp struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openRouterUsage `json:"usage,omitempty"`
	Error *openRouterError `json:"error,omitempty"`
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		SiteURL: siteURL,
		AppName: appName,
		// no client timeout: streaming length is bounded by ctx
		Client: &http.Client{},
	}
}

func (p *OpenRouterProvider) wireMessages(messages []Message) []openRouterMsg {
	out := make([]openRouterMsg, 0, len(messages))
	for _, m := range messages {
		if len(m.Images) == 0 {
			out = append(out, openRouterMsg{Role: m.Role, Content: m.Content})
			continue
		}
		parts := make([]openRouterPart, 0, len(m.Images)+1)
		parts = append(parts, openRouterPart{Type: "text", Text: m.Content})
		for _, img := range m.Images {
			parts = append(parts, openRouterPart{
				Type:     "image_url",
				ImageURL: &openRouterImageURL{URL: "data:image/png;base64," + img},
			})
		}
		out = append(out, openRouterMsg{Role: m.Role, Content: parts})
	}
	return out
}

func (p *OpenRouterProvider) newRequest(ctx context.Context, messages []Message, stream bool) (*http.Request, error) {
	if p.Client == nil {
		return nil, errors.New("openrouter: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	model := strings.TrimSpace(p.Model)
	if model == "" {
		return nil, errors.New("openrouter: model is required")
	}

	reqBody := openRouterChatReq{
		Model:    model,
		Stream:   stream,
		Messages: p.wireMessages(messages),
	}
	if stream {
		reqBody.Usage = &openRouterUsageOpt{Include: true}
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	if p.SiteURL != "" {
		req.Header.Set("HTTP-Referer", p.SiteURL)
	}
	if p.AppName != "" {
		req.Header.Set("X-Title", p.AppName)
	}
	return req, nil
}

func (p *OpenRouterProvider) Chat(ctx context.Context, messages []Message) (string, error) {
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
		return "", &ProviderError{Provider: "openrouter", Status: resp.StatusCode, Message: errorBody(resp.Body)}
	}

	var decoded openRouterChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", &ProviderError{Provider: "openrouter", Message: decoded.Error.Message}
	}
	if len(decoded.Choices) == 0 {
		return "", &ProviderError{Provider: "openrouter", Message: "empty response"}
	}
	return decoded.Choices[0].Message.Content, nil
}

// StreamChat streams assistant content via SSE. The finish event is emitted at
// [DONE] so it can carry the usage chunk that follows finish_reason.
func (p *OpenRouterProvider) StreamChat(ctx context.Context, messages []Message) (<-chan StreamEvent, <-chan error) {
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
			errs <- &ProviderError{Provider: "openrouter", Status: resp.StatusCode, Message: errorBody(resp.Body)}
			return
		}

		finish := StreamEvent{Type: EventFinish, FinishReason: FinishStop}

		err = scanSSE(resp.Body, func(_, data string) (bool, error) {
			if data == "[DONE]" {
				return false, nil
			}
			var decoded openRouterStreamResp
			if err := json.Unmarshal([]byte(data), &decoded); err != nil {
				return false, err
			}
			if decoded.Error != nil && decoded.Error.Message != "" {
				return false, &ProviderError{Provider: "openrouter", Message: decoded.Error.Message}
			}
			if decoded.Usage != nil {
				finish.Usage = Usage{
					InputTokens:  decoded.Usage.PromptTokens,
					OutputTokens: decoded.Usage.CompletionTokens,
					TotalTokens:  decoded.Usage.TotalTokens,
				}
			}
			if len(decoded.Choices) == 0 {
				return true, nil
			}
			choice := decoded.Choices[0]
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				finish.FinishReason = normalizeOpenAIFinish(*choice.FinishReason)
			}
			if delta := choice.Delta.Content; delta != "" {
				if !send(ctx, events, StreamEvent{Type: EventTextDelta, Text: delta}) {
					return false, ctx.Err()
				}
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
		send(ctx, events, finish)
	}()

	return events, errs
}

func normalizeOpenAIFinish(reason string) string {
	switch reason {
	case "stop":
		return FinishStop
	case "length":
		return FinishLength
	case "content_filter":
		return FinishContentFilter
	case "tool_calls", "function_call":
		return FinishToolCalls
	default:
		return FinishOther
	}
}
