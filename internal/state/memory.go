package state

import (
	"context"
	"sync"

	"github.com/toran-bot/engage/internal/model"
)

// Memory is an in-process state store. Single-instance deployments run on
// this; the Redis store covers multi-instance setups.
type Memory struct {
	mu     sync.RWMutex
	states map[string]model.ConversationState
}

// NewMemory creates an in-process state store.
func NewMemory() *Memory {
	return &Memory{states: make(map[string]model.ConversationState)}
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, chatID string) (*model.ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.states[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := s.Snapshot()
	return &cp, nil
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, state *model.ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.ChatID] = state.Snapshot()
	return nil
}

// ChatIDs implements Store.
func (m *Memory) ChatIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	return ids, nil
}
