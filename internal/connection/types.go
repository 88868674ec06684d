package connection

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	gomcp "github.com/mark3labs/mcp-go/mcp"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrStaleConnection  = errors.New("connection stale (no ping)")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrSetupFailed      = errors.New("connection failed during setup")
	ErrConnectTimeout   = errors.New("connection timeout")
	ErrRequestTimeout   = errors.New("request timeout")
	ErrConnectionClosed = errors.New("connection closed")
	ErrPoolDestroyed    = errors.New("pool destroyed")
	ErrInvalidFrame     = errors.New("invalid response frame")
)

// HandshakeType is the discriminator of the frame the bot sends when a socket opens.
const HandshakeType = "cf_agent_mcp_servers"

// ReadyState mirrors WebSocket readyState numbering.
type ReadyState int

const (
	StateConnecting ReadyState = 0
	StateOpen       ReadyState = 1
	StateClosing    ReadyState = 2
	StateClosed     ReadyState = 3
)

func (s ReadyState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// BotRequest is the frame sent to the bot for one prompt.
type BotRequest struct {
	RequestID string `json:"requestId"`
	ChatID    string `json:"chatId"`
	Prompt    string `json:"prompt"`
}

// BotResponse is a correlated reply from the bot. Success=false is a
// business-level failure delivered in-band.
type BotResponse struct {
	Success bool            `json:"success"`
	Data    BotResponseData `json:"data"`

	Raw json.RawMessage `json:"-"` // Frame exactly as received
}

// BotResponseData is the payload of a BotResponse.
type BotResponseData struct {
	RequestID string `json:"requestId"`
	ChatID    string `json:"chatId"`
	Message   string `json:"message"`
}

// Handshake is the capability frame sent by the bot when a socket opens.
type Handshake struct {
	Type string       `json:"type"`
	MCP  HandshakeMCP `json:"mcp"`
}

// HandshakeMCP lists the MCP servers and tools the bot has attached.
type HandshakeMCP struct {
	Servers map[string]json.RawMessage `json:"servers"`
	Tools   []gomcp.Tool               `json:"tools"`
}

// ToolNames returns the names of the advertised tools.
func (h Handshake) ToolNames() []string {
	names := make([]string, 0, len(h.MCP.Tools))
	for _, tool := range h.MCP.Tools {
		names = append(names, tool.Name)
	}
	return names
}

// inboundFrame is the union of every frame the bot sends. Pointer fields
// distinguish missing keys from zero values.
type inboundFrame struct {
	Type    string `json:"type"`
	Success *bool  `json:"success"`
	Data    *struct {
		RequestID *string `json:"requestId"`
		ChatID    *string `json:"chatId"`
		Message   *string `json:"message"`
	} `json:"data"`
}

// response validates the frame as a BotResponse.
func (f inboundFrame) response(raw []byte) (*BotResponse, error) {
	var missing []string
	if f.Success == nil {
		missing = append(missing, "success")
	}
	if f.Data == nil {
		missing = append(missing, "data")
	} else {
		if f.Data.RequestID == nil {
			missing = append(missing, "data.requestId")
		}
		if f.Data.ChatID == nil {
			missing = append(missing, "data.chatId")
		}
		if f.Data.Message == nil {
			missing = append(missing, "data.message")
		}
	}
	if len(missing) > 0 {
		return nil, &FrameError{Missing: missing}
	}

	return &BotResponse{
		Success: *f.Success,
		Data: BotResponseData{
			RequestID: *f.Data.RequestID,
			ChatID:    *f.Data.ChatID,
			Message:   *f.Data.Message,
		},
		Raw: append(json.RawMessage(nil), raw...),
	}, nil
}

// FrameError reports a response frame that failed validation.
type FrameError struct {
	Missing []string
}

func (e *FrameError) Error() string {
	return "invalid response frame: missing " + strings.Join(e.Missing, ", ")
}

func (e *FrameError) Unwrap() error {
	return ErrInvalidFrame
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL, e.g. ws://localhost:8787/bot/xmtp/<conversationId>/message
	Header       http.Header   // Extra handshake headers
	PingInterval time.Duration // How often to send keepalive pings
	PingTimeout  time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 30 * time.Second,
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   64,
	}
}

// PoolConfig configures the Connection Pool.
type PoolConfig struct {
	URLTemplate              string        // Bot URL with a {conversationId} placeholder
	MaxConnections           int           // Open sockets kept after a sweep
	ConnectTimeout           time.Duration // Limit for opening a socket; also the request timeout
	IdleTimeout              time.Duration // Sockets unused for longer are swept
	MaxRequestsPerConnection int           // Sockets that served more requests are swept
	SweepInterval            time.Duration
	Client                   ClientConfig // Template for per-conversation clients; URL is filled in
}

// DefaultPoolConfig returns sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		URLTemplate:              "ws://localhost:8787/bot/xmtp/{conversationId}/message",
		MaxConnections:           10,
		ConnectTimeout:           30 * time.Second,
		IdleTimeout:              5 * time.Minute,
		MaxRequestsPerConnection: 1000,
		SweepInterval:            time.Minute,
		Client:                   DefaultClientConfig(),
	}
}

// URLFor returns the bot socket URL for a conversation.
func (c PoolConfig) URLFor(conversationID string) string {
	return strings.ReplaceAll(c.URLTemplate, "{conversationId}", url.PathEscape(conversationID))
}

// PoolStats is a read-only snapshot of the pool.
type PoolStats struct {
	ActiveConnections int               `json:"activeConnections"`
	PendingRequests   int               `json:"pendingRequests"`
	Connections       []ConnectionStats `json:"connections"`
}

// ConnectionStats describes one pooled connection.
type ConnectionStats struct {
	ID           string     `json:"id"`
	IsConnecting bool       `json:"isConnecting"`
	LastUsed     time.Time  `json:"lastUsed"`
	RequestCount int        `json:"requestCount"`
	ReadyState   ReadyState `json:"readyState"`
	Tools        []string   `json:"tools,omitempty"`
}
