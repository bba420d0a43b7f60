// Package ws provides the WebSocket streaming transport.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/dualchat/internal/auth"
	"github.com/xiaot623/dualchat/internal/config"
	"github.com/xiaot623/dualchat/internal/domain"
	"github.com/xiaot623/dualchat/internal/export"
	"github.com/xiaot623/dualchat/internal/service"
	"github.com/xiaot623/dualchat/internal/stream"
)

const defaultPingInterval = 30 * time.Second

// Server handles WebSocket connections.
type Server struct {
	cfg       *config.Config
	hub       *Hub
	service   *service.Service
	tokens    *auth.Tokens
	presenter *stream.Presenter
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *Hub, svc *service.Service, tokens *auth.Tokens, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		hub:       h,
		service:   svc,
		tokens:    tokens,
		presenter: stream.NewPresenter(cfg.StreamChunkSize, cfg.StreamInterval),
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", "error", err)
		return err
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	if s.cfg.MaxMessageSize > 0 {
		ws.SetReadLimit(s.cfg.MaxMessageSize)
	}

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *Connection) {
	// Cancelled on disconnect so in-flight exchanges stop presenting.
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(deadline(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(deadline(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read error", "conn_id", conn.ID, "error", err)
			}
			break
		}

		s.handleMessage(ctx, conn, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *Connection) {
	interval := s.cfg.PingInterval
	if interval <= 0 {
		interval = defaultPingInterval
	}
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message := <-conn.Send:
			conn.SetWriteDeadline(deadline(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("failed to write message", "conn_id", conn.ID, "error", err)
				return
			}

		case <-conn.Done():
			conn.SetWriteDeadline(deadline(s.cfg.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			conn.SetWriteDeadline(deadline(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(ctx context.Context, conn *Connection, data []byte) {
	var baseMsg BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	if baseMsg.Type == TypeHello {
		s.handleHello(conn, data)
		return
	}
	if conn.OwnerID == "" {
		s.sendError(conn, baseMsg.RequestID, ErrorCodeHelloRequired, "must send hello first")
		return
	}

	switch baseMsg.Type {
	case TypeStartSession:
		s.handleStartSession(ctx, conn, data)
	case TypeChat:
		s.handleChat(ctx, conn, data)
	case TypePause:
		s.handlePause(ctx, conn, baseMsg, true)
	case TypeResume:
		s.handlePause(ctx, conn, baseMsg, false)
	case TypeInjectNote:
		s.handleInjectNote(ctx, conn, data)
	case TypeExportSession:
		s.handleExport(ctx, conn, data)
	default:
		s.sendError(conn, baseMsg.RequestID, ErrorCodeInvalidMessage, "unknown message type: "+baseMsg.Type)
	}
}

// handleHello authenticates the connection.
func (s *Server) handleHello(conn *Connection, data []byte) {
	var msg HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid hello message")
		return
	}

	ownerID, ok := s.tokens.Owner(msg.Token)
	if !ok {
		s.sendError(conn, msg.RequestID, ErrorCodeUnauthorized, "invalid token")
		return
	}
	s.hub.BindOwner(conn, ownerID)

	s.hub.SendJSONToConnection(conn, HelloAckMessage{
		BaseMessage: BaseMessage{Type: TypeHelloAck, Ts: time.Now().UnixMilli(), RequestID: msg.RequestID},
		OwnerID:     ownerID,
	})
	s.logger.Info("hello handshake completed", "conn_id", conn.ID, "owner_id", ownerID)
}

func (s *Server) handleStartSession(ctx context.Context, conn *Connection, data []byte) {
	var msg StartSessionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid start_session message")
		return
	}

	resp, err := s.service.StartSession(ctx, conn.OwnerID, domain.StartSessionRequest{
		Provider: msg.Provider,
		APIKey:   msg.APIKey,
		ModelA:   msg.ModelA,
		ModelB:   msg.ModelB,
	})
	if err != nil {
		s.sendServiceError(conn, msg.RequestID, "", err)
		return
	}

	s.hub.SendJSONToConnection(conn, SessionStartedMessage{
		BaseMessage: BaseMessage{Type: TypeSessionStarted, Ts: time.Now().UnixMilli(), RequestID: msg.RequestID, SessionID: resp.Session.ID},
		Session:     resp.Session,
		Config:      resp.Config,
	})
}

// handleChat runs the exchange in the background so the read loop keeps
// serving pause and notes while replies stream.
func (s *Server) handleChat(ctx context.Context, conn *Connection, data []byte) {
	var msg ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid chat message")
		return
	}
	if msg.SessionID == "" {
		s.sendError(conn, msg.RequestID, ErrorCodeInvalidMessage, "session_id is required")
		return
	}

	var slots []domain.ModelType
	if msg.ModelType != "" {
		slots = []domain.ModelType{msg.ModelType}
	}

	// A later hello may rebind the connection while the exchange runs.
	ownerID := conn.OwnerID
	go func() {
		sink := newConnSink(ctx, s.hub, conn, msg.RequestID)
		err := s.service.Converse(ctx, ownerID, msg.SessionID, msg.Content, slots, s.presenter, sink)
		if err != nil && !sink.reported(err) && !errors.Is(err, context.Canceled) {
			s.sendServiceError(conn, msg.RequestID, msg.SessionID, err)
		}
	}()
}

func (s *Server) handlePause(ctx context.Context, conn *Connection, msg BaseMessage, paused bool) {
	var err error
	if paused {
		_, err = s.service.PauseSession(ctx, conn.OwnerID, msg.SessionID)
	} else {
		_, err = s.service.ResumeSession(ctx, conn.OwnerID, msg.SessionID)
	}
	if err != nil {
		s.sendServiceError(conn, msg.RequestID, msg.SessionID, err)
	}
}

func (s *Server) handleInjectNote(ctx context.Context, conn *Connection, data []byte) {
	var msg NoteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid inject_note message")
		return
	}
	if _, err := s.service.InjectNote(ctx, conn.OwnerID, msg.SessionID, msg.Note); err != nil {
		s.sendServiceError(conn, msg.RequestID, msg.SessionID, err)
	}
}

func (s *Server) handleExport(ctx context.Context, conn *Connection, data []byte) {
	var msg ExportSessionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", ErrorCodeInvalidMessage, "invalid export_session message")
		return
	}

	opts := export.DefaultOptions()
	if msg.Format != "" {
		opts.Format = export.Format(strings.ToLower(msg.Format))
	}
	if msg.Filter != "" {
		opts.Filter = export.Filter(msg.Filter)
	}

	file, err := s.service.ExportSession(ctx, conn.OwnerID, msg.SessionID, opts)
	if err != nil {
		s.sendServiceError(conn, msg.RequestID, msg.SessionID, err)
		return
	}

	if err := s.hub.DeliverJSON(ctx, conn, ExportMessage{
		BaseMessage: BaseMessage{Type: TypeExport, Ts: time.Now().UnixMilli(), RequestID: msg.RequestID, SessionID: msg.SessionID},
		Filename:    file.Filename,
		ContentType: file.ContentType,
		Data:        string(file.Data),
	}); err != nil {
		s.logger.Warn("failed to deliver export", "conn_id", conn.ID, "error", err)
	}
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *Connection, requestID, code, message string) {
	s.hub.SendJSONToConnection(conn, ErrorMessage{
		BaseMessage: BaseMessage{Type: TypeError, Ts: time.Now().UnixMilli(), RequestID: requestID},
		Code:        code,
		Message:     message,
	})
}

// sendServiceError reports a service failure with its domain error code.
func (s *Server) sendServiceError(conn *Connection, requestID, sessionID string, err error) {
	code := domain.ErrorCode(err)
	if code == domain.CodeInternal || code == domain.CodePersistenceError {
		s.logger.Error("websocket request failed", "conn_id", conn.ID, "session_id", sessionID, "error", err)
	}
	s.hub.SendJSONToConnection(conn, ErrorMessage{
		BaseMessage: BaseMessage{Type: TypeError, Ts: time.Now().UnixMilli(), RequestID: requestID, SessionID: sessionID},
		Code:        code,
		Message:     err.Error(),
	})
}

// deadline returns now+d, or no deadline when d is not positive.
func deadline(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}
