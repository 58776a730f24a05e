package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/toran-bot/engage/pkg/logger"
)

func newTestMemory(t *testing.T, retention time.Duration) (*Memory, *time.Time) {
	t.Helper()

	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	m := &Memory{
		retention: retention,
		logger:    logger.NewNop(),
		seen:      make(map[string]time.Time),
		now:       func() time.Time { return now },
	}
	return m, &now
}

func TestMemoryAcceptExactlyOnce(t *testing.T) {
	t.Parallel()

	m, _ := newTestMemory(t, 24*time.Hour)
	ctx := context.Background()

	if !m.Accept(ctx, "evt-1", "chat-a") {
		t.Fatal("first delivery should be accepted")
	}
	for i := 0; i < 5; i++ {
		if m.Accept(ctx, "evt-1", "chat-a") {
			t.Fatalf("replay %d should be rejected", i)
		}
	}
	if !m.Accept(ctx, "evt-2", "chat-a") {
		t.Fatal("distinct event id should be accepted")
	}
}

func TestMemoryAcceptAfterRetention(t *testing.T) {
	t.Parallel()

	m, now := newTestMemory(t, time.Hour)
	ctx := context.Background()

	if !m.Accept(ctx, "evt-1", "chat-a") {
		t.Fatal("first delivery should be accepted")
	}

	*now = now.Add(2 * time.Hour)
	if !m.Accept(ctx, "evt-1", "chat-a") {
		t.Fatal("event id past retention should be accepted again")
	}
}

func TestMemoryEvictExpired(t *testing.T) {
	t.Parallel()

	m, now := newTestMemory(t, time.Hour)
	ctx := context.Background()

	m.Accept(ctx, "evt-old", "chat-a")
	*now = now.Add(90 * time.Minute)
	m.Accept(ctx, "evt-new", "chat-a")

	m.evictExpired()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen["evt-old"]; ok {
		t.Error("expired entry should have been evicted")
	}
	if _, ok := m.seen["evt-new"]; !ok {
		t.Error("live entry should have been kept")
	}
}

func TestMemoryAcceptsEmptyEventID(t *testing.T) {
	t.Parallel()

	m, _ := newTestMemory(t, time.Hour)
	ctx := context.Background()

	// Fail-open: events that cannot be deduplicated still flow through.
	if !m.Accept(ctx, "", "chat-a") {
		t.Fatal("empty event id should be accepted")
	}
	if !m.Accept(ctx, "", "chat-a") {
		t.Fatal("empty event id should always be accepted")
	}
}

func TestMemoryReleaseAllowsRedelivery(t *testing.T) {
	t.Parallel()

	m, _ := newTestMemory(t, 24*time.Hour)
	ctx := context.Background()

	if !m.Accept(ctx, "evt-1", "chat-a") {
		t.Fatal("first delivery should be accepted")
	}
	m.Release(ctx, "evt-1")
	if !m.Accept(ctx, "evt-1", "chat-a") {
		t.Fatal("released event id should be accepted again")
	}
	if m.Accept(ctx, "evt-1", "chat-a") {
		t.Fatal("replay after re-acceptance should be rejected")
	}
}
