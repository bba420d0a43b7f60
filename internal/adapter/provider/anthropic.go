package provider

import (
	"context"
	"net/http"
	"strings"

	"github.com/xiaot623/dualchat/internal/domain"
)

// anthropicVersion pins the Messages API wire format.
const anthropicVersion = "2023-06-01"

// AnthropicAdapter speaks the Anthropic Messages API. It authenticates with
// the x-api-key header rather than a bearer token.
type AnthropicAdapter struct {
	transport
	baseURL string
}

// NewAnthropic returns the Anthropic adapter.
func NewAnthropic(client *http.Client) *AnthropicAdapter {
	return &AnthropicAdapter{
		transport: transport{vendor: "Anthropic", client: client},
		baseURL:   "https://api.anthropic.com/v1",
	}
}

// WithBaseURL points the adapter at a proxy or test server.
func (a *AnthropicAdapter) WithBaseURL(baseURL string) *AnthropicAdapter {
	a.baseURL = strings.TrimSuffix(baseURL, "/")
	return a
}

// Name implements Adapter.
func (a *AnthropicAdapter) Name() string { return a.vendor }

type anthropicRequest struct {
	Model       string               `json:"model"`
	MaxTokens   int                  `json:"max_tokens"`
	Temperature float64              `json:"temperature"`
	System      string               `json:"system,omitempty"`
	Messages    []domain.ChatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string  `json:"type"`
		Text *string `json:"text"`
	} `json:"content"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Send implements Adapter.
func (a *AnthropicAdapter) Send(ctx context.Context, apiKey, model string, messages []domain.ChatMessage) (*Completion, error) {
	system, turns := splitSystem(messages)
	req := anthropicRequest{
		Model:       model,
		MaxTokens:   MaxOutputTokens,
		Temperature: Temperature,
		System:      system,
		Messages:    turns,
	}

	headers := map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponse
	if err := a.postJSON(ctx, a.baseURL+"/messages", headers, req, &resp); err != nil {
		return nil, err
	}

	var text *string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			text = block.Text
			break
		}
	}
	if text == nil {
		return nil, a.missing("content[0].text", "")
	}

	out := &Completion{Text: *text}
	if resp.Usage != nil {
		out.Usage = &domain.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}
	}
	return out, nil
}

// splitSystem lifts system turns out of the conversation; the Messages API
// only accepts user and assistant roles in messages.
func splitSystem(messages []domain.ChatMessage) (string, []domain.ChatMessage) {
	var system []string
	turns := make([]domain.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}
