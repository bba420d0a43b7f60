package domain

import (
	"encoding/json"
	"time"
)

// ModelDescriptor is one selectable model of a provider.
type ModelDescriptor struct {
	ID          string `json:"id" toml:"id"`
	DisplayName string `json:"display_name" toml:"display_name"`
}

// ProviderDescriptor is a supported provider and its selectable models.
type ProviderDescriptor struct {
	ID          string            `json:"id" toml:"id"`
	DisplayName string            `json:"display_name" toml:"display_name"`
	Models      []ModelDescriptor `json:"models" toml:"models"`
}

// HasModel reports whether modelID is selectable for this provider.
func (p ProviderDescriptor) HasModel(modelID string) bool {
	for _, m := range p.Models {
		if m.ID == modelID {
			return true
		}
	}
	return false
}

// Configuration is a user's provider/model selection for a session.
// At most one configuration per owner is active at a time.
type Configuration struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Provider  string    `json:"provider"`
	APIKey    string    `json:"-"`
	ModelA    string    `json:"model_a"`
	ModelB    string    `json:"model_b"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ModelFor returns the model configured for the given slot.
func (c *Configuration) ModelFor(slot ModelType) string {
	if slot == ModelTypeB {
		return c.ModelB
	}
	return c.ModelA
}

// MarshalJSON masks the API key so it never leaves the server in full.
func (c Configuration) MarshalJSON() ([]byte, error) {
	type plain Configuration
	return json.Marshal(struct {
		plain
		APIKey string `json:"api_key"`
	}{plain: plain(c), APIKey: MaskAPIKey(c.APIKey)})
}

// MaskAPIKey keeps the first three and last four characters of a key.
func MaskAPIKey(key string) string {
	runes := []rune(key)
	if len(runes) <= 8 {
		if key == "" {
			return ""
		}
		return "****"
	}
	return string(runes[:3]) + "…" + string(runes[len(runes)-4:])
}

// Session is one dual-model conversation.
type Session struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"owner_id"`
	ConfigurationID string    `json:"configuration_id"`
	Title           string    `json:"title"`
	TurnCount       int       `json:"turn_count"`
	IsPaused        bool      `json:"is_paused"`
	CreatedAt       time.Time `json:"created_at"`
}

// Message is an append-only conversation record.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	ModelType ModelType `json:"model_type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is a relay accounting record.
type Event struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	Ts        int64           `json:"ts"` // Unix milliseconds
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ChatMessage is one turn of the unified adapter contract.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the token accounting reported by a vendor, when it reports any.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// RelayRequest is the transient input of one relay call.
type RelayRequest struct {
	SessionID string        `json:"session_id"`
	ModelType ModelType     `json:"model_type"`
	Messages  []ChatMessage `json:"messages"`
}

// RelayResult is the normalized outcome of a successful relay.
type RelayResult struct {
	Content   string        `json:"content"`
	ModelUsed string        `json:"model_used"`
	MessageID string        `json:"message_id"`
	Usage     *Usage        `json:"usage,omitempty"`
	Latency   time.Duration `json:"-"`
}
