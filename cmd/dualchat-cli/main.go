// Package main provides a terminal client for the dualchat WebSocket protocol.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message types
const (
	TypeHello          = "hello"
	TypeHelloAck       = "hello_ack"
	TypeStartSession   = "start_session"
	TypeSessionStarted = "session_started"
	TypeChat           = "chat"
	TypePause          = "pause"
	TypeResume         = "resume"
	TypeInjectNote     = "inject_note"
	TypeExportSession  = "export_session"
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

// Outgoing is any client message; unused fields are omitted.
type Outgoing struct {
	BaseMessage
	Token     string `json:"token,omitempty"`
	Provider  string `json:"provider,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	ModelA    string `json:"model_a,omitempty"`
	ModelB    string `json:"model_b,omitempty"`
	Content   string `json:"content,omitempty"`
	ModelType string `json:"model_type,omitempty"`
	Note      string `json:"note,omitempty"`
	Format    string `json:"format,omitempty"`
}

// Incoming is any server message.
type Incoming struct {
	BaseMessage
	OwnerID      string          `json:"owner_id"`
	Code         string          `json:"code"`
	Message      string          `json:"message"`
	ModelType    string          `json:"model_type"`
	IsTyping     bool            `json:"is_typing"`
	Chunk        string          `json:"chunk"`
	IsComplete   bool            `json:"is_complete"`
	Model        string          `json:"model"`
	TurnCount    int             `json:"turn_count"`
	IsPaused     bool            `json:"is_paused"`
	PendingNotes []string        `json:"pending_notes"`
	LatencyMs    int64           `json:"latency_ms"`
	Usage        json.RawMessage `json:"usage"`
	Filename     string          `json:"filename"`
	Data         string          `json:"data"`
	Session      *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"session"`
}

// Command is one parsed input line.
type Command struct {
	Type      string
	ModelType string
	Text      string
}

// ParseCommand turns an input line into a client message type.
// Plain text chats with both models; /a and /b address one slot.
func ParseCommand(input string) (Command, error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return Command{Type: TypeChat, Text: input}, nil
	}

	name, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "/a", "/b":
		if rest == "" {
			return Command{}, fmt.Errorf("%s needs a message", name)
		}
		return Command{Type: TypeChat, ModelType: strings.ToUpper(name[1:]), Text: rest}, nil
	case "/start":
		return Command{Type: TypeStartSession}, nil
	case "/pause":
		return Command{Type: TypePause}, nil
	case "/resume":
		return Command{Type: TypeResume}, nil
	case "/note":
		if rest == "" {
			return Command{}, fmt.Errorf("/note needs text")
		}
		return Command{Type: TypeInjectNote, Text: rest}, nil
	case "/export":
		format := rest
		if format == "" {
			format = "md"
		}
		return Command{Type: TypeExportSession, Text: format}, nil
	case "/quit":
		return Command{Type: "quit"}, nil
	}
	return Command{}, fmt.Errorf("unknown command %s", name)
}

// Client represents a WebSocket client.
type Client struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	sessionMu sync.Mutex
	sessionID string
	done      chan struct{}
}

// NewClient creates a new client and connects to the server.
func NewClient(addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &Client{
		conn: conn,
		done: make(chan struct{}),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	close(c.done)
	return c.conn.Close()
}

// SessionID returns the current session.
func (c *Client) SessionID() string {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.sessionID
}

func (c *Client) setSession(id string) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	c.sessionID = id
}

// Send writes one message stamped with the current session.
func (c *Client) Send(msg Outgoing) error {
	msg.Ts = time.Now().UnixMilli()
	if msg.SessionID == "" {
		msg.SessionID = c.SessionID()
	}
	if msg.RequestID == "" {
		msg.RequestID = fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// SendHello sends a hello message and waits for hello_ack.
func (c *Client) SendHello(token string) (string, error) {
	if err := c.Send(Outgoing{BaseMessage: BaseMessage{Type: TypeHello}, Token: token}); err != nil {
		return "", fmt.Errorf("write hello: %w", err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("read hello_ack: %w", err)
	}

	var msg Incoming
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", fmt.Errorf("unmarshal hello_ack: %w", err)
	}
	if msg.Type == TypeError {
		return "", fmt.Errorf("hello failed: %s - %s", msg.Code, msg.Message)
	}
	if msg.Type != TypeHelloAck {
		return "", fmt.Errorf("expected hello_ack, got: %s", msg.Type)
	}
	return msg.OwnerID, nil
}

// ReadMessages reads and prints messages from the server.
func (c *Client) ReadMessages(exportDir string) {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("Read error: %v", err)
			}
			return
		}

		var msg Incoming
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Unmarshal error: %v", err)
			continue
		}
		c.render(msg, exportDir)
	}
}

func (c *Client) render(msg Incoming, exportDir string) {
	switch msg.Type {
	case TypeSessionStarted:
		if msg.Session != nil {
			c.setSession(msg.Session.ID)
			fmt.Printf("\nSession started: %s (%s)\n", msg.Session.ID, msg.Session.Title)
		}
	case TypeTyping:
		if msg.IsTyping {
			fmt.Printf("\n[%s] typing...\n", msg.ModelType)
		}
	case TypeMessageChunk:
		if msg.IsComplete {
			fmt.Printf("\n[%s] done (%s)\n", msg.ModelType, msg.Model)
		} else {
			fmt.Printf("[%s] %s\n", msg.ModelType, msg.Chunk)
		}
	case TypeSessionUpdate:
		fmt.Printf("\n[session] turns=%d paused=%v notes=%d\n", msg.TurnCount, msg.IsPaused, len(msg.PendingNotes))
	case TypeRelayCompleted:
		fmt.Printf("[%s] latency=%dms usage=%s\n", msg.ModelType, msg.LatencyMs, string(msg.Usage))
	case TypeExport:
		path := msg.Filename
		if exportDir != "" {
			path = exportDir + string(os.PathSeparator) + msg.Filename
		}
		if err := os.WriteFile(path, []byte(msg.Data), 0o644); err != nil {
			log.Printf("Export write error: %v", err)
			return
		}
		fmt.Printf("\nTranscript saved to %s\n", path)
	case TypeError:
		fmt.Printf("\n[error] %s: %s\n", msg.Code, msg.Message)
	default:
		fmt.Printf("\n[%s]\n", msg.Type)
	}
}

func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket server address")
	token := flag.String("token", "", "Bearer token for authentication")
	providerID := flag.String("provider", "openai", "Provider id used by /start")
	apiKey := flag.String("api-key", os.Getenv("DUALCHAT_API_KEY"), "Vendor API key used by /start")
	modelA := flag.String("model-a", "gpt-4o", "Model for slot A")
	modelB := flag.String("model-b", "gpt-4o-mini", "Model for slot B")
	sessionID := flag.String("session", "", "Resume an existing session instead of starting one")
	exportDir := flag.String("export-dir", ".", "Directory for exported transcripts")
	flag.Parse()

	log.SetFlags(log.Ltime)

	fmt.Printf("Connecting to %s...\n", *addr)

	client, err := NewClient(*addr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	owner, err := client.SendHello(*token)
	if err != nil {
		log.Fatalf("Hello failed: %v", err)
	}
	fmt.Printf("Authenticated as %s\n", owner)

	go client.ReadMessages(*exportDir)

	startSession := func() error {
		return client.Send(Outgoing{
			BaseMessage: BaseMessage{Type: TypeStartSession},
			Provider:    *providerID,
			APIKey:      *apiKey,
			ModelA:      *modelA,
			ModelB:      *modelB,
		})
	}

	if *sessionID != "" {
		client.setSession(*sessionID)
	} else if err := startSession(); err != nil {
		log.Fatalf("Start session failed: %v", err)
	}

	fmt.Println("\nType a message and press Enter to send it to both models.")
	fmt.Println("Commands: /a <msg>, /b <msg>, /note <text>, /pause, /resume, /export [json|txt|csv|md], /start, /quit")

	// Handle Ctrl+C
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-interrupt:
			fmt.Println("\nInterrupted")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}

			cmd, err := ParseCommand(line)
			if err != nil {
				fmt.Println(err)
				continue
			}

			switch cmd.Type {
			case "quit":
				fmt.Println("Bye!")
				return
			case TypeStartSession:
				err = startSession()
			case TypeChat:
				err = client.Send(Outgoing{BaseMessage: BaseMessage{Type: TypeChat}, Content: cmd.Text, ModelType: cmd.ModelType})
			case TypeInjectNote:
				err = client.Send(Outgoing{BaseMessage: BaseMessage{Type: TypeInjectNote}, Note: cmd.Text})
			case TypeExportSession:
				err = client.Send(Outgoing{BaseMessage: BaseMessage{Type: TypeExportSession}, Format: cmd.Text})
			default:
				err = client.Send(Outgoing{BaseMessage: BaseMessage{Type: cmd.Type}})
			}
			if err != nil {
				log.Printf("Send error: %v", err)
			}
		}
	}
}
