package domain

// StartSessionRequest is the body of POST /start-session.
type StartSessionRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey"`
	ModelA   string `json:"modelA"`
	ModelB   string `json:"modelB"`
}

// StartSessionResponse is returned after a session starts.
type StartSessionResponse struct {
	Session *Session       `json:"session"`
	Config  *Configuration `json:"config"`
}

// ChatRequest is the body of POST /ai-chat.
type ChatRequest struct {
	SessionID string        `json:"sessionId"`
	Messages  []ChatMessage `json:"messages"`
	ModelType ModelType     `json:"modelType"`
}

// ChatResponse is returned after a successful relay.
type ChatResponse struct {
	Response string `json:"response"`
	Model    string `json:"model"`
}

// NoteRequest is the body of POST /sessions/:session_id/notes.
type NoteRequest struct {
	Note string `json:"note"`
}

// ErrorResponse is the payload of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SessionState is the live view of a session pushed to stream clients.
type SessionState struct {
	SessionID    string   `json:"session_id"`
	TurnCount    int      `json:"turn_count"`
	IsPaused     bool     `json:"is_paused"`
	PendingNotes []string `json:"pending_notes"`
	IsActive     bool     `json:"is_active"`
}
