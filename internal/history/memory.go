package history

import (
	"context"
	"sync"
	"time"

	"github.com/toran-bot/engage/internal/model"
)

// Memory keeps a bounded ring of messages per chat in process memory.
// The bound caps memory use per chat regardless of traffic.
type Memory struct {
	maxPerChat int

	mu    sync.RWMutex
	chats map[string][]model.StoredMessage
}

// NewMemory creates an in-process history store keeping at most maxPerChat
// messages per chat.
func NewMemory(maxPerChat int) *Memory {
	if maxPerChat <= 0 {
		maxPerChat = 2000
	}
	return &Memory{
		maxPerChat: maxPerChat,
		chats:      make(map[string][]model.StoredMessage),
	}
}

// Append implements Store.
func (m *Memory) Append(ctx context.Context, msg model.StoredMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := append(m.chats[msg.ChatID], msg)
	if len(msgs) > m.maxPerChat {
		msgs = msgs[len(msgs)-m.maxPerChat:]
	}
	m.chats[msg.ChatID] = msgs
	return nil
}

// Recent implements Store.
func (m *Memory) Recent(ctx context.Context, chatID string, limit int) ([]model.StoredMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.chats[chatID]
	truncated := false
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
		truncated = true
	}
	out := make([]model.StoredMessage, len(msgs))
	copy(out, msgs)
	return out, truncated, nil
}

// Range implements Store.
func (m *Memory) Range(ctx context.Context, chatID string, start, end time.Time, limit int) ([]model.StoredMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.StoredMessage
	truncated := false
	for _, msg := range m.chats[chatID] {
		if msg.Timestamp.Before(start) || !msg.Timestamp.Before(end) {
			continue
		}
		if limit > 0 && len(out) == limit {
			truncated = true
			break
		}
		out = append(out, msg)
	}
	return out, truncated, nil
}
