package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/toran-bot/engage/internal/model"
)

const (
	redisStateKeyPrefix = "engage:state:"
	redisChatSetKey     = "engage:chats"
)

// Redis is a state store backed by Redis for multi-instance deployments.
// Backend failures map to ErrUnavailable so callers can NACK the event.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed state store.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, chatID string) (*model.ConversationState, error) {
	data, err := r.client.Get(ctx, redisStateKeyPrefix+chatID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var state model.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode state for %s: %w", chatID, err)
	}
	if state.OptedOutUsers == nil {
		state.OptedOutUsers = make(map[string]bool)
	}
	return &state, nil
}

// Put implements Store.
func (r *Redis) Put(ctx context.Context, state *model.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state for %s: %w", state.ChatID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisStateKeyPrefix+state.ChatID, data, 0)
	pipe.SAdd(ctx, redisChatSetKey, state.ChatID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ChatIDs implements Store.
func (r *Redis) ChatIDs(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, redisChatSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ids, nil
}
