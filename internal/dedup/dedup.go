// Package dedup filters duplicate and replayed inbound events.
package dedup

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/toran-bot/engage/pkg/logger"
	"github.com/toran-bot/engage/pkg/metrics"
)

// Deduplicator decides whether an event id has been seen before.
//
// Accept returns true exactly once per distinct event id within the
// retention window, and false for replays. Implementations are fail-open:
// if the backing store is unavailable the event is accepted with a logged
// warning, because a silent drop is worse than an occasional double reply.
//
// Release forgets an accepted id. Callers invoke it when processing
// failed and the platform will redeliver, so the redelivery is not
// rejected as a replay.
type Deduplicator interface {
	Accept(ctx context.Context, eventID, chatID string) bool
	Release(ctx context.Context, eventID string)
}

// Memory is an in-process deduplicator backed by an expiring map. Entries
// are evicted after the retention window, so duplicate detection stays
// correct regardless of traffic volume.
type Memory struct {
	retention time.Duration
	logger    *logger.Logger

	mu   sync.Mutex
	seen map[string]time.Time

	now func() time.Time
}

// NewMemory creates an in-process deduplicator. A janitor goroutine evicts
// expired entries until ctx is done.
func NewMemory(ctx context.Context, retention time.Duration, log *logger.Logger) *Memory {
	m := &Memory{
		retention: retention,
		logger:    log,
		seen:      make(map[string]time.Time),
		now:       time.Now,
	}
	go m.janitor(ctx)
	return m
}

// Accept implements Deduplicator.
func (m *Memory) Accept(ctx context.Context, eventID, chatID string) bool {
	if eventID == "" {
		// Events without an id cannot be deduplicated; process them.
		m.logger.Warn("event without id, accepting", zap.String("chat_id", chatID))
		return true
	}

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if expiry, ok := m.seen[eventID]; ok && now.Before(expiry) {
		metrics.DuplicateEventsTotal.Inc()
		m.logger.Debug("duplicate event dropped",
			zap.String("event_id", eventID),
			zap.String("chat_id", chatID),
		)
		return false
	}

	m.seen[eventID] = now.Add(m.retention)
	return true
}

// Release implements Deduplicator.
func (m *Memory) Release(ctx context.Context, eventID string) {
	if eventID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, eventID)
}

func (m *Memory) janitor(ctx context.Context) {
	interval := m.retention / 10
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *Memory) evictExpired() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, expiry := range m.seen {
		if !now.Before(expiry) {
			delete(m.seen, id)
		}
	}
}
