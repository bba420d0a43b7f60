package provider

import (
	"context"
	"fmt"

	"github.com/xiaot623/dualchat/internal/domain"
)

// MockAdapter answers locally without any network call. It is selected with
// GOGO_MODE=MOCK for demos and end-to-end runs.
type MockAdapter struct {
	vendor string
}

// NewMockAdapter creates a mock adapter reporting itself as vendor.
func NewMockAdapter(vendor string) *MockAdapter {
	return &MockAdapter{vendor: vendor}
}

// Ensure MockAdapter implements Adapter.
var _ Adapter = (*MockAdapter)(nil)

// Name implements Adapter.
func (m *MockAdapter) Name() string { return m.vendor }

// Send returns a deterministic echo of the last user turn.
func (m *MockAdapter) Send(ctx context.Context, apiKey, model string, messages []domain.ChatMessage) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.ProviderError{Vendor: m.vendor, Message: err.Error(), Err: err}
	}

	text := m.generateMockResponse(model, messages)
	prompt := estimateTokens(messages)
	completion := len(text) / 4
	return &Completion{
		Text: text,
		Usage: &domain.Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}, nil
}

func (m *MockAdapter) generateMockResponse(model string, messages []domain.ChatMessage) string {
	var lastUserMessage string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			lastUserMessage = messages[i].Content
			break
		}
	}

	if lastUserMessage == "" {
		return fmt.Sprintf("[MOCK %s] This is a mock response.", model)
	}
	return fmt.Sprintf("[MOCK %s] Received your message: %q. This is a mock response.", model, truncate(lastUserMessage, 100))
}

// estimateTokens provides a rough token count estimate.
func estimateTokens(messages []domain.ChatMessage) int {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content) / 4
	}
	return total
}

// truncate shortens s to at most maxLen runes.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
