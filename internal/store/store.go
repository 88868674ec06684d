package store

import (
	"context"
	"time"
)

// Store is the persistence surface used by the bot layer.
type Store interface {
	// IsWelcomed reports whether a welcome message was already sent.
	IsWelcomed(ctx context.Context, conversationID string) (bool, error)
	// MarkWelcomed records a sent welcome message.
	MarkWelcomed(ctx context.Context, conversationID string, at time.Time) error
	// MarkProcessed claims an inbound message. It returns false when the
	// message was claimed before.
	MarkProcessed(ctx context.Context, messageID string, at time.Time) (bool, error)
	// RecordExchange appends a bot round trip to the exchange log.
	RecordExchange(ctx context.Context, ex Exchange) error
	// RecentExchanges returns up to limit exchanges, newest first.
	RecentExchanges(ctx context.Context, limit int) ([]Exchange, error)
	// Close flushes pending writes and releases resources.
	Close(ctx context.Context) error
}

// Exchange is one prompt sent to the bot service and its outcome.
type Exchange struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	MessageID      string        `json:"messageId,omitempty"`
	Prompt         string        `json:"prompt"`
	Reply          string        `json:"reply,omitempty"`
	Success        bool          `json:"success"`
	Error          string        `json:"error,omitempty"`
	StartedAt      time.Time     `json:"startedAt"`
	Duration       time.Duration `json:"duration"`
}
