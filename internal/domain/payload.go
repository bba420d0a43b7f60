package domain

// RelayStartedPayload is the payload for relay_started events.
type RelayStartedPayload struct {
	RequestID string    `json:"request_id"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	ModelType ModelType `json:"model_type"`
	Messages  int       `json:"messages"`
}

// RelayDonePayload is the payload for relay_completed and relay_failed events.
type RelayDonePayload struct {
	RequestID        string    `json:"request_id"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	ModelType        ModelType `json:"model_type"`
	LatencyMs        int64     `json:"latency_ms"`
	PromptTokens     int       `json:"prompt_tokens,omitempty"`
	CompletionTokens int       `json:"completion_tokens,omitempty"`
	TotalTokens      int       `json:"total_tokens,omitempty"`
	ResponseChars    int       `json:"response_chars,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// NoteInjectedPayload is the payload for note_injected events.
type NoteInjectedPayload struct {
	MessageID string `json:"message_id"`
	Note      string `json:"note"`
}
