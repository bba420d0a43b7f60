package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/xiaot623/dualchat/internal/domain"
)

// GoogleAdapter speaks the Gemini generateContent API. The API key travels in
// the query string.
type GoogleAdapter struct {
	transport
	baseURL string
}

// NewGoogle returns the Google Gemini adapter.
func NewGoogle(client *http.Client) *GoogleAdapter {
	return &GoogleAdapter{
		transport: transport{vendor: "Google", client: client},
		baseURL:   "https://generativelanguage.googleapis.com/v1beta",
	}
}

// WithBaseURL points the adapter at a proxy or test server.
func (a *GoogleAdapter) WithBaseURL(baseURL string) *GoogleAdapter {
	a.baseURL = strings.TrimSuffix(baseURL, "/")
	return a
}

// Name implements Adapter.
func (a *GoogleAdapter) Name() string { return a.vendor }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Send implements Adapter.
func (a *GoogleAdapter) Send(ctx context.Context, apiKey, model string, messages []domain.ChatMessage) (*Completion, error) {
	req := geminiRequest{
		Contents: make([]geminiContent, 0, len(messages)),
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: MaxOutputTokens,
			Temperature:     Temperature,
		},
	}
	var system []geminiPart
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, geminiPart{Text: m.Content})
		case domain.RoleUser:
			req.Contents = append(req.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		default:
			// Gemini calls the assistant "model".
			req.Contents = append(req.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		req.SystemInstruction = &geminiContent{Parts: system}
	}

	endpoint := a.baseURL + "/models/" + url.PathEscape(model) + ":generateContent?key=" + url.QueryEscape(apiKey)

	var resp geminiResponse
	if err := a.postJSON(ctx, endpoint, nil, req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 || resp.Candidates[0].Content.Parts[0].Text == nil {
		vendorMsg := ""
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			vendorMsg = "prompt blocked: " + resp.PromptFeedback.BlockReason
		}
		return nil, a.missing("candidates[0].content.parts[0].text", vendorMsg)
	}

	out := &Completion{Text: *resp.Candidates[0].Content.Parts[0].Text}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = &domain.Usage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}
	return out, nil
}
