package provider

import (
	"context"
	"net/http"
	"strings"

	"github.com/xiaot623/dualchat/internal/domain"
)

// ChatCompletionsAdapter speaks the OpenAI chat-completions protocol. OpenAI,
// xAI, DeepSeek and OpenRouter are separate instances, each bound to its own
// endpoint.
type ChatCompletionsAdapter struct {
	transport
	baseURL string
}

// NewOpenAI returns the OpenAI adapter.
func NewOpenAI(client *http.Client) *ChatCompletionsAdapter {
	return newChatCompletions("OpenAI", "https://api.openai.com/v1", client)
}

// NewXAI returns the xAI adapter.
func NewXAI(client *http.Client) *ChatCompletionsAdapter {
	return newChatCompletions("xAI", "https://api.x.ai/v1", client)
}

// NewDeepSeek returns the DeepSeek adapter.
func NewDeepSeek(client *http.Client) *ChatCompletionsAdapter {
	return newChatCompletions("DeepSeek", "https://api.deepseek.com/v1", client)
}

// NewOpenRouter returns the OpenRouter adapter.
func NewOpenRouter(client *http.Client) *ChatCompletionsAdapter {
	return newChatCompletions("OpenRouter", "https://openrouter.ai/api/v1", client)
}

func newChatCompletions(vendor, baseURL string, client *http.Client) *ChatCompletionsAdapter {
	return &ChatCompletionsAdapter{
		transport: transport{vendor: vendor, client: client},
		baseURL:   baseURL,
	}
}

// WithBaseURL points the adapter at a proxy or test server.
func (a *ChatCompletionsAdapter) WithBaseURL(baseURL string) *ChatCompletionsAdapter {
	a.baseURL = strings.TrimSuffix(baseURL, "/")
	return a
}

// Name implements Adapter.
func (a *ChatCompletionsAdapter) Name() string { return a.vendor }

type chatCompletionRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	MaxTokens   int                  `json:"max_tokens"`
	Temperature float64              `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message *struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Send implements Adapter.
func (a *ChatCompletionsAdapter) Send(ctx context.Context, apiKey, model string, messages []domain.ChatMessage) (*Completion, error) {
	req := chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   MaxOutputTokens,
		Temperature: Temperature,
	}

	var resp chatCompletionResponse
	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	if err := a.postJSON(ctx, a.baseURL+"/chat/completions", headers, req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil || resp.Choices[0].Message.Content == nil {
		vendorMsg := ""
		if resp.Error != nil {
			vendorMsg = resp.Error.Message
		}
		return nil, a.missing("choices[0].message.content", vendorMsg)
	}

	out := &Completion{Text: *resp.Choices[0].Message.Content}
	if resp.Usage != nil {
		out.Usage = &domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out, nil
}
