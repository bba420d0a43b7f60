package ws

import (
	"context"
	"sync"
	"time"

	"github.com/xiaot623/dualchat/internal/domain"
	"github.com/xiaot623/dualchat/internal/stream"
)

// connSink presents an exchange on one connection.
type connSink struct {
	ctx       context.Context
	hub       *Hub
	conn      *Connection
	requestID string

	mu   sync.Mutex
	errs []error
}

var _ stream.Sink = (*connSink)(nil)

func newConnSink(ctx context.Context, h *Hub, conn *Connection, requestID string) *connSink {
	return &connSink{ctx: ctx, hub: h, conn: conn, requestID: requestID}
}

func (s *connSink) base(msgType, sessionID string) BaseMessage {
	return BaseMessage{Type: msgType, Ts: time.Now().UnixMilli(), RequestID: s.requestID, SessionID: sessionID}
}

func (s *connSink) Typing(sessionID string, slot domain.ModelType, isTyping bool) error {
	return s.hub.DeliverJSON(s.ctx, s.conn, TypingMessage{
		BaseMessage: s.base(TypeTyping, sessionID),
		ModelType:   slot,
		IsTyping:    isTyping,
	})
}

func (s *connSink) Chunk(c stream.Chunk) error {
	return s.hub.DeliverJSON(s.ctx, s.conn, MessageChunkMessage{
		BaseMessage: s.base(TypeMessageChunk, c.SessionID),
		ModelType:   c.ModelType,
		Chunk:       c.Chunk,
		IsComplete:  c.IsComplete,
		Content:     c.Content,
		Model:       c.Model,
		MessageID:   c.MessageID,
	})
}

func (s *connSink) Error(sessionID string, slot domain.ModelType, err error) error {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()

	return s.hub.DeliverJSON(s.ctx, s.conn, ErrorMessage{
		BaseMessage: s.base(TypeError, sessionID),
		ModelType:   slot,
		Code:        domain.ErrorCode(err),
		Message:     err.Error(),
	})
}

// reported reports whether err already reached the client through Error.
func (s *connSink) reported(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.errs {
		if e == err {
			return true
		}
	}
	return false
}
