package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/toran-bot/engage/pkg/logger"
	"github.com/toran-bot/engage/pkg/metrics"
)

const redisKeyPrefix = "engage:dedup:"

// Redis is a deduplicator backed by Redis, for deployments with more than
// one engine instance. SET NX with a TTL gives exactly-once acceptance
// within the retention window across instances.
type Redis struct {
	client    *redis.Client
	retention time.Duration
	logger    *logger.Logger
}

// NewRedis creates a Redis-backed deduplicator.
func NewRedis(client *redis.Client, retention time.Duration, log *logger.Logger) *Redis {
	return &Redis{
		client:    client,
		retention: retention,
		logger:    log,
	}
}

// Accept implements Deduplicator. On backend failure it accepts the event
// (fail-open) and records the failure.
func (r *Redis) Accept(ctx context.Context, eventID, chatID string) bool {
	if eventID == "" {
		r.logger.Warn("event without id, accepting", zap.String("chat_id", chatID))
		return true
	}

	ok, err := r.client.SetNX(ctx, redisKeyPrefix+eventID, 1, r.retention).Result()
	if err != nil {
		metrics.DedupFailuresTotal.Inc()
		r.logger.Warn("dedup store unavailable, accepting event",
			zap.String("event_id", eventID),
			zap.String("chat_id", chatID),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		metrics.DuplicateEventsTotal.Inc()
		r.logger.Debug("duplicate event dropped",
			zap.String("event_id", eventID),
			zap.String("chat_id", chatID),
		)
	}
	return ok
}

// Release implements Deduplicator.
func (r *Redis) Release(ctx context.Context, eventID string) {
	if eventID == "" {
		return
	}
	if err := r.client.Del(ctx, redisKeyPrefix+eventID).Err(); err != nil {
		metrics.DedupFailuresTotal.Inc()
		r.logger.Warn("failed to release event id",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
	}
}
