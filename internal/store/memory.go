package store

import (
	"context"
	"sync"
	"time"
)

// Memory keeps state in process. Processed message ids and exchanges are
// bounded; the oldest entries are forgotten first.
type Memory struct {
	mu        sync.Mutex
	welcomed  map[string]time.Time
	processed map[string]struct{}
	order     *ring[string]
	exchanges *ring[Exchange]
}

// NewMemory creates a memory store remembering up to historySize processed
// messages and exchanges.
func NewMemory(historySize int) *Memory {
	return &Memory{
		welcomed:  make(map[string]time.Time),
		processed: make(map[string]struct{}),
		order:     newRing[string](historySize),
		exchanges: newRing[Exchange](historySize),
	}
}

func (m *Memory) IsWelcomed(_ context.Context, conversationID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.welcomed[conversationID]
	return ok, nil
}

func (m *Memory) MarkWelcomed(_ context.Context, conversationID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.welcomed[conversationID]; !ok {
		m.welcomed[conversationID] = at
	}
	return nil
}

func (m *Memory) MarkProcessed(_ context.Context, messageID string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.processed[messageID]; ok {
		return false, nil
	}
	m.processed[messageID] = struct{}{}
	if old, evicted := m.order.push(messageID); evicted {
		delete(m.processed, old)
	}
	return true, nil
}

func (m *Memory) RecordExchange(_ context.Context, ex Exchange) error {
	m.exchanges.push(ex)
	return nil
}

func (m *Memory) RecentExchanges(_ context.Context, limit int) ([]Exchange, error) {
	return m.exchanges.newest(limit), nil
}

func (m *Memory) Close(context.Context) error { return nil }
