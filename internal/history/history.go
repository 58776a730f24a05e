// Package history stores and serves conversation message history.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/toran-bot/engage/internal/model"
)

// ErrUnavailable is returned when the history backend cannot be reached.
var ErrUnavailable = errors.New("history store unavailable")

// Store is the message history contract. The engine appends every
// processed message and the context assembler reads; nothing here mutates
// existing entries.
type Store interface {
	// Append adds a message to a chat's history.
	Append(ctx context.Context, msg model.StoredMessage) error

	// Recent returns up to limit most recent messages for a chat in
	// chronological order. truncated reports whether older messages were
	// dropped to fit the limit.
	Recent(ctx context.Context, chatID string, limit int) (msgs []model.StoredMessage, truncated bool, err error)

	// Range returns messages with start <= timestamp < end in
	// chronological order, up to limit. truncated reports whether the
	// window held more messages than limit.
	Range(ctx context.Context, chatID string, start, end time.Time, limit int) (msgs []model.StoredMessage, truncated bool, err error)
}
