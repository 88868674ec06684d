package chat

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the gateway does not know a conversation.
	ErrNotFound = errors.New("conversation not found")
)

// Content types delivered by the gateway.
const (
	ContentText  = "text"
	ContentReply = "reply"
)

// Message is an inbound chat message.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderInboxID  string    `json:"senderInboxId"`
	ContentType    string    `json:"contentType"`
	Content        string    `json:"content"`
	Reference      string    `json:"reference,omitempty"` // replied-to message id
	Fallback       string    `json:"fallback,omitempty"`
	SentAt         time.Time `json:"sentAt"`
}

var replyFallback = regexp.MustCompile(`^Replied with "(.+)" to an earlier message$`)

// Text returns the user-visible text of a message. Replies without inline
// content fall back to the text quoted in their fallback string.
func (m Message) Text() string {
	if m.Content != "" || m.ContentType != ContentReply {
		return m.Content
	}
	if match := replyFallback.FindStringSubmatch(m.Fallback); match != nil {
		return match[1]
	}
	return m.Fallback
}

// IsFrom reports whether the message was sent by inboxID (case-insensitive).
func (m Message) IsFrom(inboxID string) bool {
	return inboxID != "" && strings.EqualFold(m.SenderInboxID, inboxID)
}

// ConversationType distinguishes direct messages from groups.
type ConversationType string

const (
	ConversationDM    ConversationType = "dm"
	ConversationGroup ConversationType = "group"
)

// Conversation is a DM or group the agent is a member of.
type Conversation struct {
	ID        string           `json:"id"`
	Type      ConversationType `json:"type"`
	CreatedAt time.Time        `json:"createdAt"`
}

// IsDM reports whether the conversation is a direct message.
func (c Conversation) IsDM() bool {
	return c.Type == ConversationDM
}

// Identity describes the agent's own inbox.
type Identity struct {
	InboxID string `json:"inboxId"`
	Address string `json:"address"`
	Env     string `json:"env"`
}

// streamEvent is one frame on a gateway stream.
type streamEvent struct {
	Message      *Message      `json:"message,omitempty"`
	Conversation *Conversation `json:"conversation,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// StreamError is an error reported by the gateway on an open stream.
type StreamError struct {
	Kind    string
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s stream: %s", e.Kind, e.Message)
}

// GatewayError is a non-2xx response from the gateway REST API.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Message)
}
