package assemble

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/toran-bot/engage/internal/history"
	"github.com/toran-bot/engage/internal/model"
)

func ts(minute int) time.Time {
	return time.Date(2025, 6, 2, 12, minute, 0, 0, time.UTC)
}

func fill(t *testing.T, store *history.Memory, chatID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := store.Append(context.Background(), model.StoredMessage{
			ChatID:    chatID,
			UserID:    fmt.Sprintf("user-%d", i%4),
			Timestamp: ts(i),
			Text:      fmt.Sprintf("message %d", i),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestRecentBoundsWindow(t *testing.T) {
	t.Parallel()

	store := history.NewMemory(0)
	fill(t, store, "chat-a", 50)

	a := New(store, Config{RecentMessages: 20})
	window, err := a.Recent(context.Background(), "chat-a", model.TriggerMention)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}

	if window.Trigger != model.TriggerMention {
		t.Errorf("trigger = %q, want mention", window.Trigger)
	}
	if len(window.Messages) != 20 {
		t.Fatalf("got %d messages, want 20", len(window.Messages))
	}
	if window.Messages[0].Text != "message 30" || window.Messages[19].Text != "message 49" {
		t.Errorf("window edges wrong: %q .. %q", window.Messages[0].Text, window.Messages[19].Text)
	}
	for i := 1; i < len(window.Messages); i++ {
		if window.Messages[i].Timestamp.Before(window.Messages[i-1].Timestamp) {
			t.Fatalf("messages out of chronological order at %d", i)
		}
	}
}

func TestRecentMarksDroppedOlderContext(t *testing.T) {
	t.Parallel()

	store := history.NewMemory(0)
	fill(t, store, "chat-a", 30)

	a := New(store, Config{RecentMessages: 20})
	window, err := a.Recent(context.Background(), "chat-a", model.TriggerMention)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if !window.Truncated {
		t.Error("window that dropped older messages should be truncated")
	}

	// A chat that fits entirely is not truncated.
	fill(t, store, "chat-b", 5)
	window, err = a.Recent(context.Background(), "chat-b", model.TriggerMention)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if window.Truncated {
		t.Error("window under the limit should not be truncated")
	}
}

func TestRecentEmptyChat(t *testing.T) {
	t.Parallel()

	a := New(history.NewMemory(0), Config{})
	window, err := a.Recent(context.Background(), "never-seen", model.TriggerProactive)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(window.Messages) != 0 || window.Truncated {
		t.Errorf("empty chat should yield empty untruncated window, got %d msgs truncated=%v",
			len(window.Messages), window.Truncated)
	}
}

func TestPerMessageImageCap(t *testing.T) {
	t.Parallel()

	store := history.NewMemory(0)
	refs := []string{"img1", "img2", "img3", "img4", "img5", "img6"}
	if err := store.Append(context.Background(), model.StoredMessage{
		ChatID: "chat-a", UserID: "u1", Timestamp: ts(0), ImageRefs: refs,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	a := New(store, Config{ImagesPerMessage: 4, ImagesPerWindow: 12})
	window, err := a.Recent(context.Background(), "chat-a", model.TriggerSticky)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}

	if got := window.Messages[0].ImageRefs; len(got) != 4 {
		t.Errorf("kept %d image refs, want 4", len(got))
	}
	if !window.Truncated {
		t.Error("dropping image refs should mark the window truncated")
	}
}

func TestWindowImageBudgetFavorsNewest(t *testing.T) {
	t.Parallel()

	store := history.NewMemory(0)
	for i := 0; i < 5; i++ {
		err := store.Append(context.Background(), model.StoredMessage{
			ChatID:    "chat-a",
			UserID:    "u1",
			Timestamp: ts(i),
			ImageRefs: []string{fmt.Sprintf("img-%d-a", i), fmt.Sprintf("img-%d-b", i), fmt.Sprintf("img-%d-c", i)},
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	a := New(store, Config{ImagesPerMessage: 4, ImagesPerWindow: 7})
	window, err := a.Recent(context.Background(), "chat-a", model.TriggerMention)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}

	// Newest two messages keep all three refs, the third keeps one, the
	// oldest two keep none.
	counts := make([]int, 5)
	for i, msg := range window.Messages {
		counts[i] = len(msg.ImageRefs)
	}
	want := []int{0, 0, 1, 3, 3}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("image counts = %v, want %v", counts, want)
		}
	}
	if !window.Truncated {
		t.Error("budget overflow should mark the window truncated")
	}
}

func TestImageCapDoesNotMutateHistory(t *testing.T) {
	t.Parallel()

	store := history.NewMemory(0)
	if err := store.Append(context.Background(), model.StoredMessage{
		ChatID: "chat-a", UserID: "u1", Timestamp: ts(0),
		ImageRefs: []string{"a", "b", "c", "d", "e"},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	a := New(store, Config{ImagesPerMessage: 2})
	if _, err := a.Recent(context.Background(), "chat-a", model.TriggerMention); err != nil {
		t.Fatalf("recent: %v", err)
	}

	stored, _, _ := store.Recent(context.Background(), "chat-a", 1)
	if len(stored[0].ImageRefs) != 5 {
		t.Errorf("stored message has %d refs after assembly, want 5", len(stored[0].ImageRefs))
	}
}

func TestSummaryWindowExcludesOptedOutUsers(t *testing.T) {
	t.Parallel()

	store := history.NewMemory(0)
	fill(t, store, "chat-a", 12)

	a := New(store, Config{})
	window, err := a.SummaryWindow(context.Background(), model.SummaryJob{
		ChatID:        "chat-a",
		Period:        model.PeriodWeekly,
		WindowStart:   ts(0),
		WindowEnd:     ts(12),
		ExcludedUsers: []string{"user-0"},
	})
	if err != nil {
		t.Fatalf("summary window: %v", err)
	}

	if window.Trigger != model.TriggerSummary {
		t.Errorf("trigger = %q, want summary", window.Trigger)
	}
	if len(window.Messages) != 9 {
		t.Fatalf("got %d messages, want 9 after exclusion", len(window.Messages))
	}
	for _, msg := range window.Messages {
		if msg.UserID == "user-0" {
			t.Fatalf("opted-out user's message leaked into summary window")
		}
	}
}

func TestSummaryWindowRespectsBounds(t *testing.T) {
	t.Parallel()

	store := history.NewMemory(0)
	fill(t, store, "chat-a", 30)

	a := New(store, Config{SummaryMessages: 10})
	window, err := a.SummaryWindow(context.Background(), model.SummaryJob{
		ChatID:      "chat-a",
		Period:      model.PeriodWeekly,
		WindowStart: ts(0),
		WindowEnd:   ts(30),
	})
	if err != nil {
		t.Fatalf("summary window: %v", err)
	}

	if len(window.Messages) != 10 {
		t.Errorf("got %d messages, want capped 10", len(window.Messages))
	}
	if !window.Truncated {
		t.Error("capped summary window should be truncated")
	}
}

func TestSummaryWindowHonorsTimeBounds(t *testing.T) {
	t.Parallel()

	store := history.NewMemory(0)
	fill(t, store, "chat-a", 30)

	a := New(store, Config{})
	window, err := a.SummaryWindow(context.Background(), model.SummaryJob{
		ChatID:      "chat-a",
		Period:      model.PeriodWeekly,
		WindowStart: ts(5),
		WindowEnd:   ts(10),
	})
	if err != nil {
		t.Fatalf("summary window: %v", err)
	}

	if len(window.Messages) != 5 {
		t.Fatalf("got %d messages, want 5", len(window.Messages))
	}
	if window.Messages[0].Text != "message 5" || window.Messages[4].Text != "message 9" {
		t.Errorf("window edges wrong: %q .. %q", window.Messages[0].Text, window.Messages[4].Text)
	}
}
