package ws

import (
	"github.com/xiaot623/dualchat/internal/domain"
)

// Message types from client to server
const (
	TypeHello         = "hello"
	TypeStartSession  = "start_session"
	TypeChat          = "chat"
	TypePause         = "pause"
	TypeResume        = "resume"
	TypeInjectNote    = "inject_note"
	TypeExportSession = "export_session"
)

// Message types from server to client
const (
	TypeHelloAck       = "hello_ack"
	TypeSessionStarted = "session_started"
	TypeTyping         = "typing"
	TypeMessageChunk   = "message_chunk"
	TypeSessionUpdate  = "session_update"
	TypeRelayCompleted = "relay_completed"
	TypeExport         = "export"
	TypeError          = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// HelloMessage authenticates the connection.
type HelloMessage struct {
	BaseMessage
	Token string `json:"token"`
}

// HelloAckMessage is sent after a successful hello.
type HelloAckMessage struct {
	BaseMessage
	OwnerID string `json:"owner_id"`
}

// StartSessionMessage starts a session with a new active configuration.
type StartSessionMessage struct {
	BaseMessage
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	ModelA   string `json:"model_a"`
	ModelB   string `json:"model_b"`
}

// SessionStartedMessage answers start_session.
type SessionStartedMessage struct {
	BaseMessage
	Session *domain.Session       `json:"session"`
	Config  *domain.Configuration `json:"config"`
}

// ChatMessage sends one user turn. An empty model_type addresses both slots.
type ChatMessage struct {
	BaseMessage
	Content   string           `json:"content"`
	ModelType domain.ModelType `json:"model_type,omitempty"`
}

// NoteMessage injects a steering note.
type NoteMessage struct {
	BaseMessage
	Note string `json:"note"`
}

// ExportSessionMessage requests a transcript. Format and filter default to json and all.
type ExportSessionMessage struct {
	BaseMessage
	Format string `json:"format,omitempty"`
	Filter string `json:"filter,omitempty"`
}

// TypingMessage reports that a slot started or stopped composing.
type TypingMessage struct {
	BaseMessage
	ModelType domain.ModelType `json:"model_type"`
	IsTyping  bool             `json:"is_typing"`
}

// MessageChunkMessage carries one fragment of a reply, or the terminal chunk.
type MessageChunkMessage struct {
	BaseMessage
	ModelType  domain.ModelType `json:"model_type"`
	Chunk      string           `json:"chunk"`
	IsComplete bool             `json:"is_complete"`
	Content    string           `json:"content,omitempty"`
	Model      string           `json:"model,omitempty"`
	MessageID  string           `json:"message_id,omitempty"`
}

// SessionUpdateMessage pushes the live state of a session.
type SessionUpdateMessage struct {
	BaseMessage
	TurnCount    int      `json:"turn_count"`
	IsPaused     bool     `json:"is_paused"`
	PendingNotes []string `json:"pending_notes"`
	IsActive     bool     `json:"is_active"`
}

// RelayCompletedMessage reports the accounting of a finished relay.
type RelayCompletedMessage struct {
	BaseMessage
	ModelType domain.ModelType `json:"model_type"`
	Model     string           `json:"model"`
	MessageID string           `json:"message_id"`
	LatencyMs int64            `json:"latency_ms"`
	Usage     *domain.Usage    `json:"usage,omitempty"`
}

// ExportMessage carries a rendered transcript.
type ExportMessage struct {
	BaseMessage
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
}

// ErrorMessage is sent when an error occurs.
type ErrorMessage struct {
	BaseMessage
	ModelType domain.ModelType `json:"model_type,omitempty"`
	Code      string           `json:"code"`
	Message   string           `json:"message"`
}

// Protocol error codes. Service failures use the domain error codes.
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeUnauthorized   = domain.CodeUnauthenticated
	ErrorCodeHelloRequired  = "hello_required"
)
