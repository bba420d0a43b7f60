// Package provider translates the unified relay contract into each vendor's wire protocol.
package provider

import (
	"context"

	"github.com/xiaot623/dualchat/internal/domain"
)

// Generation parameters applied by every adapter.
const (
	MaxOutputTokens = 1000
	Temperature     = 0.7
)

// Adapter sends one conversation to one vendor endpoint.
//
// Send performs exactly one outbound HTTP call and keeps no state between
// calls. Every failure is returned as *domain.ProviderError. Adapters never retry.
type Adapter interface {
	// Name returns the vendor display name used in error messages.
	Name() string

	// Send returns the completion text for the given conversation.
	Send(ctx context.Context, apiKey, model string, messages []domain.ChatMessage) (*Completion, error)
}

// Completion is the unwrapped vendor answer.
type Completion struct {
	Text  string
	Usage *domain.Usage
}
