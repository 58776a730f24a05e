// Package state persists per-conversation state through a key-value-shaped
// store abstraction. The concrete backend is an external concern; the
// engine only needs get, put, and chat enumeration.
package state

import (
	"context"
	"errors"

	"github.com/toran-bot/engage/internal/model"
)

// ErrNotFound is returned when no state exists for a chat.
var ErrNotFound = errors.New("conversation state not found")

// ErrUnavailable is returned when the backing store cannot be reached.
// The caller must not make a decision for the affected event.
var ErrUnavailable = errors.New("state store unavailable")

// Store is the conversation state persistence contract.
type Store interface {
	// Get returns the state for a chat, or ErrNotFound.
	Get(ctx context.Context, chatID string) (*model.ConversationState, error)

	// Put stores the state for a chat.
	Put(ctx context.Context, state *model.ConversationState) error

	// ChatIDs lists every chat with stored state.
	ChatIDs(ctx context.Context) ([]string, error)
}
