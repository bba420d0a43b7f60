package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xiaot623/dualchat/internal/domain"
	"github.com/xiaot623/dualchat/internal/service"
)

const sendBufferSize = 256

// ErrConnectionClosed is returned when sending to a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// ErrBufferFull is returned when the send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

// Connection represents a single WebSocket connection.
type Connection struct {
	ID      string
	OwnerID string
	Conn    *websocket.Conn
	Send    chan []byte

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
}

// Hub manages all WebSocket connections and fans out owner-scoped events.
// It observes the service so session updates and relay accounting reach
// every connection of the session's owner.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Owners maps owner_id to set of connection IDs
	owners map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *OwnerMessage
	quit       chan struct{}

	logger *slog.Logger
	mu     sync.RWMutex
}

var (
	_ service.SessionObserver = (*Hub)(nil)
	_ service.RelayObserver   = (*Hub)(nil)
)

// OwnerMessage is a message for every connection of one owner.
type OwnerMessage struct {
	OwnerID string
	Data    []byte
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		connections: make(map[string]*Connection),
		owners:      make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *OwnerMessage, sendBufferSize),
		quit:        make(chan struct{}),
		logger:      logger,
	}
}

// Run starts the hub's main loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.quit)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, conn := range h.connections {
				conn.markClosed()
			}
			h.connections = make(map[string]*Connection)
			h.owners = make(map[string]map[string]bool)
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()
			h.logger.Debug("connection registered", "conn_id", conn.ID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				h.unbindLocked(conn)
				conn.markClosed()
			}
			h.mu.Unlock()
			h.logger.Debug("connection unregistered", "conn_id", conn.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for connID := range h.owners[msg.OwnerID] {
				conn, exists := h.connections[connID]
				if !exists {
					continue
				}
				select {
				case conn.Send <- msg.Data:
				default:
					h.logger.Warn("connection buffer full, closing", "conn_id", connID)
					go h.Unregister(conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConnection creates a new connection.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.quit:
		conn.markClosed()
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.quit:
		conn.markClosed()
	}
}

// BindOwner binds a connection to an authenticated owner.
func (h *Hub) BindOwner(conn *Connection, ownerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unbindLocked(conn)
	conn.OwnerID = ownerID
	if h.owners[ownerID] == nil {
		h.owners[ownerID] = make(map[string]bool)
	}
	h.owners[ownerID][conn.ID] = true
}

func (h *Hub) unbindLocked(conn *Connection) {
	if conn.OwnerID == "" || h.owners[conn.OwnerID] == nil {
		return
	}
	delete(h.owners[conn.OwnerID], conn.ID)
	if len(h.owners[conn.OwnerID]) == 0 {
		delete(h.owners, conn.OwnerID)
	}
}

// BroadcastJSON queues v for every connection of an owner. It never blocks;
// when the queue is full the message is dropped.
func (h *Hub) BroadcastJSON(ownerID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &OwnerMessage{OwnerID: ownerID, Data: data}:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendJSONToConnection queues v for one connection without blocking.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-conn.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// DeliverJSON queues v for one connection, waiting for buffer space until
// ctx is done or the connection closes.
func (h *Hub) DeliverJSON(ctx context.Context, conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case conn.Send <- data:
		return nil
	case <-conn.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SessionChanged pushes a session_update to the owner's connections.
func (h *Hub) SessionChanged(ownerID string, state domain.SessionState) {
	pending := state.PendingNotes
	if pending == nil {
		pending = []string{}
	}
	msg := SessionUpdateMessage{
		BaseMessage:  BaseMessage{Type: TypeSessionUpdate, Ts: time.Now().UnixMilli(), SessionID: state.SessionID},
		TurnCount:    state.TurnCount,
		IsPaused:     state.IsPaused,
		PendingNotes: pending,
		IsActive:     state.IsActive,
	}
	if err := h.BroadcastJSON(ownerID, msg); err != nil {
		h.logger.Warn("failed to queue session_update", "owner_id", ownerID, "error", err)
	}
}

// RelayFinished pushes relay_completed for successful relays.
func (h *Hub) RelayFinished(rec service.RelayRecord) {
	if rec.Err != nil {
		return
	}
	msg := RelayCompletedMessage{
		BaseMessage: BaseMessage{Type: TypeRelayCompleted, Ts: time.Now().UnixMilli(), SessionID: rec.SessionID},
		ModelType:   rec.ModelType,
		Model:       rec.Model,
		MessageID:   rec.MessageID,
		LatencyMs:   rec.Latency.Milliseconds(),
		Usage:       rec.Usage,
	}
	if err := h.BroadcastJSON(rec.OwnerID, msg); err != nil {
		h.logger.Warn("failed to queue relay_completed", "owner_id", rec.OwnerID, "error", err)
	}
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// HasActiveConnections checks if an owner has any active connections.
func (h *Hub) HasActiveConnections(ownerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.owners[ownerID]) > 0
}

func (c *Connection) markClosed() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the hub dropped the connection.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
