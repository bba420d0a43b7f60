package provider

import (
	"context"
	"net/http"
	"strings"

	"github.com/xiaot623/dualchat/internal/domain"
)

// QwenAdapter speaks the DashScope text-generation API.
type QwenAdapter struct {
	transport
	baseURL string
}

// NewQwen returns the Qwen (DashScope) adapter.
func NewQwen(client *http.Client) *QwenAdapter {
	return &QwenAdapter{
		transport: transport{vendor: "Qwen", client: client},
		baseURL:   "https://dashscope.aliyuncs.com/api/v1",
	}
}

// WithBaseURL points the adapter at a proxy or test server.
func (a *QwenAdapter) WithBaseURL(baseURL string) *QwenAdapter {
	a.baseURL = strings.TrimSuffix(baseURL, "/")
	return a
}

// Name implements Adapter.
func (a *QwenAdapter) Name() string { return a.vendor }

type qwenRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []domain.ChatMessage `json:"messages"`
	} `json:"input"`
	Parameters struct {
		MaxTokens    int     `json:"max_tokens"`
		Temperature  float64 `json:"temperature"`
		ResultFormat string  `json:"result_format"`
	} `json:"parameters"`
}

type qwenResponse struct {
	Output *struct {
		Text    *string `json:"text"`
		Choices []struct {
			Message *struct {
				Content *string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Message string `json:"message"`
}

// Send implements Adapter.
func (a *QwenAdapter) Send(ctx context.Context, apiKey, model string, messages []domain.ChatMessage) (*Completion, error) {
	var req qwenRequest
	req.Model = model
	req.Input.Messages = messages
	req.Parameters.MaxTokens = MaxOutputTokens
	req.Parameters.Temperature = Temperature
	req.Parameters.ResultFormat = "message"

	var resp qwenResponse
	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	if err := a.postJSON(ctx, a.baseURL+"/services/aigc/text-generation/generation", headers, req, &resp); err != nil {
		return nil, err
	}

	text := qwenText(resp)
	if text == nil {
		return nil, a.missing("output.choices[0].message.content", resp.Message)
	}

	out := &Completion{Text: *text}
	if u := resp.Usage; u != nil {
		total := u.TotalTokens
		if total == 0 {
			total = u.InputTokens + u.OutputTokens
		}
		out.Usage = &domain.Usage{PromptTokens: u.InputTokens, CompletionTokens: u.OutputTokens, TotalTokens: total}
	}
	return out, nil
}

// qwenText reads the message-format answer, falling back to the plain text format.
func qwenText(resp qwenResponse) *string {
	if resp.Output == nil {
		return nil
	}
	if len(resp.Output.Choices) > 0 && resp.Output.Choices[0].Message != nil && resp.Output.Choices[0].Message.Content != nil {
		return resp.Output.Choices[0].Message.Content
	}
	return resp.Output.Text
}
