package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/toran-bot/engage/internal/assemble"
	"github.com/toran-bot/engage/internal/dedup"
	"github.com/toran-bot/engage/internal/engage"
	"github.com/toran-bot/engage/internal/heat"
	"github.com/toran-bot/engage/internal/history"
	"github.com/toran-bot/engage/internal/intent"
	"github.com/toran-bot/engage/internal/lane"
	"github.com/toran-bot/engage/internal/model"
	"github.com/toran-bot/engage/internal/state"
	"github.com/toran-bot/engage/internal/summary"
	"github.com/toran-bot/engage/pkg/logger"
)

const botID = "bot-1"

// 2025-06-02 is a Monday.
var start = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

type fixture struct {
	eng       *Engine
	responder *MemoryResponder
	states    *state.Memory
	hist      *history.Memory
	now       time.Time
	seq       int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := logger.NewNop()
	fx := &fixture{
		responder: NewMemoryResponder(),
		states:    state.NewMemory(),
		hist:      history.NewMemory(0),
		now:       start,
	}

	lanes := lane.NewManager(time.Minute, 64, log)
	t.Cleanup(func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer closeCancel()
		_ = lanes.Close(closeCtx)
	})

	fx.eng = New(Options{
		Dedup:            dedup.NewMemory(ctx, time.Hour, log),
		Classifier:       intent.NewClassifier(nil, time.Second, log),
		Scorer:           heat.NewScorer(0, 0.55, 0),
		Machine:          engage.NewMachine(engage.Config{StickyTTL: 10 * time.Minute, MuteDuration: 5 * time.Minute}),
		States:           fx.states,
		History:          fx.hist,
		Assembler:        assemble.New(fx.hist, assemble.Config{}),
		Scheduler:        summary.NewScheduler(summary.Config{WeeklyBoundaryDay: time.Monday}),
		Lanes:            lanes,
		Responder:        fx.responder,
		Logger:           log,
		BotUserID:        botID,
		DefaultThreshold: 0.5,
		Now:              func() time.Time { return fx.now },
	})
	return fx
}

func (fx *fixture) msg(user, text string, mention bool) model.InboundMessage {
	fx.seq++
	return model.InboundMessage{
		EventID:     fmt.Sprintf("evt-%d", fx.seq),
		ChatID:      "chat-a",
		UserID:      user,
		Timestamp:   fx.now,
		MentionsBot: mention,
		Text:        text,
	}
}

func (fx *fixture) handle(t *testing.T, msg model.InboundMessage) {
	t.Helper()
	if err := fx.eng.HandleEvent(context.Background(), msg); err != nil {
		t.Fatalf("handle %q: %v", msg.Text, err)
	}
}

func TestMentionAlwaysDispatches(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.handle(t, fx.msg("user-1", "hey, you there?", true))

	got := fx.responder.Dispatches()
	if len(got) != 1 {
		t.Fatalf("got %d dispatches, want 1", len(got))
	}
	d := got[0]
	if d.Decision == nil || d.Decision.Kind != model.DecisionRespond || d.Decision.RespondReason != model.RespondMention {
		t.Errorf("decision = %+v, want respond/mention", d.Decision)
	}
	if d.Window.Trigger != model.TriggerMention {
		t.Errorf("trigger = %q, want mention", d.Window.Trigger)
	}
	if len(d.Window.Messages) != 1 || d.Window.Messages[0].Text != "hey, you there?" {
		t.Errorf("window should contain the triggering message, got %+v", d.Window.Messages)
	}
}

func TestDuplicateEventDecidedOnce(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	msg := fx.msg("user-1", "hey, you there?", true)

	fx.handle(t, msg)
	err := fx.eng.HandleEvent(context.Background(), msg)
	if !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("replay err = %v, want ErrDuplicateEvent", err)
	}
	if got := fx.responder.Dispatches(); len(got) != 1 {
		t.Errorf("replayed event produced %d dispatches, want 1", len(got))
	}
}

func TestLowHeatMessageStaysSilent(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.handle(t, fx.msg("user-1", "lol nice", false))

	if got := fx.responder.Dispatches(); len(got) != 0 {
		t.Fatalf("low-heat message produced %d dispatches, want 0", len(got))
	}

	// The message still updates ambient heat and lands in history.
	st, err := fx.states.Get(context.Background(), "chat-a")
	if err != nil {
		t.Fatalf("state not persisted: %v", err)
	}
	if st.AmbientHeat <= 0 {
		t.Errorf("ambient heat = %v, want > 0", st.AmbientHeat)
	}
	msgs, _, _ := fx.hist.Recent(context.Background(), "chat-a", 10)
	if len(msgs) != 1 {
		t.Errorf("history has %d messages, want 1", len(msgs))
	}
}

func TestHotQuestionTriggersProactiveReply(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.handle(t, fx.msg("user-1", "how do we deploy this?", false))

	got := fx.responder.Dispatches()
	if len(got) != 1 {
		t.Fatalf("got %d dispatches, want 1", len(got))
	}
	if got[0].Decision.RespondReason != model.RespondProactive {
		t.Errorf("reason = %q, want proactive", got[0].Decision.RespondReason)
	}
}

func TestStickyWindowKeepsConversationGoing(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.handle(t, fx.msg("user-1", "hey, you there?", true))

	// A low-heat follow-up five minutes later, no mention.
	fx.now = fx.now.Add(5 * time.Minute)
	fx.handle(t, fx.msg("user-1", "lol nice", false))

	got := fx.responder.Dispatches()
	if len(got) != 2 {
		t.Fatalf("got %d dispatches, want 2", len(got))
	}
	if got[1].Decision.RespondReason != model.RespondSticky {
		t.Errorf("follow-up reason = %q, want sticky", got[1].Decision.RespondReason)
	}

	// After the window expires the same message goes unanswered.
	fx.now = fx.now.Add(time.Hour)
	fx.handle(t, fx.msg("user-1", "lol nice", false))
	if got := fx.responder.Dispatches(); len(got) != 2 {
		t.Errorf("expired window still produced a dispatch")
	}
}

func TestSilenceRequestMutesProactivePath(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.handle(t, fx.msg("user-1", "闭嘴", false))

	// A question that would normally clear the threshold stays silent
	// while the mute holds.
	fx.now = fx.now.Add(time.Minute)
	fx.handle(t, fx.msg("user-2", "how do we deploy this?", false))
	if got := fx.responder.Dispatches(); len(got) != 0 {
		t.Fatalf("muted chat produced %d dispatches, want 0", len(got))
	}

	// A mention cuts through the mute.
	fx.now = fx.now.Add(time.Minute)
	fx.handle(t, fx.msg("user-2", "you still with us?", true))
	if got := fx.responder.Dispatches(); len(got) != 1 {
		t.Fatalf("mention during mute produced %d dispatches, want 1", len(got))
	}
}

func TestBotOwnMessagesIgnored(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.handle(t, fx.msg(botID, "how do we deploy this?", false))

	if got := fx.responder.Dispatches(); len(got) != 0 {
		t.Errorf("bot's own message produced %d dispatches, want 0", len(got))
	}
	if _, err := fx.states.Get(context.Background(), "chat-a"); !errors.Is(err, state.ErrNotFound) {
		t.Error("bot's own message should not create chat state")
	}
}

func TestHelpCommandReplies(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	msg := fx.msg("user-1", "/help", false)
	msg.IsCommand = true
	fx.handle(t, msg)

	got := fx.responder.Dispatches()
	if len(got) != 1 {
		t.Fatalf("got %d dispatches, want 1", len(got))
	}
	if got[0].Window.Trigger != model.TriggerCommand || !strings.Contains(got[0].Text, "/summary") {
		t.Errorf("help reply = %+v", got[0])
	}
}

func TestUnknownCommandRepliesWithUsage(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.handle(t, fx.msg("user-1", "/dance", false))

	got := fx.responder.Dispatches()
	if len(got) != 1 {
		t.Fatalf("got %d dispatches, want 1", len(got))
	}
	if !strings.Contains(got[0].Text, "unknown command") {
		t.Errorf("reply = %q, want usage with error", got[0].Text)
	}
}

func TestQuietModeCommandSilencesProactive(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.handle(t, fx.msg("user-1", "/settings mode quiet", false))

	fx.now = fx.now.Add(time.Minute)
	fx.handle(t, fx.msg("user-2", "how do we deploy this?", false))

	got := fx.responder.Dispatches()
	if len(got) != 1 {
		t.Fatalf("got %d dispatches, want only the settings ack", len(got))
	}

	st, _ := fx.states.Get(context.Background(), "chat-a")
	if st.Mode != model.ModeQuiet {
		t.Errorf("mode = %q, want quiet", st.Mode)
	}
}

func TestThresholdCommandPersists(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.handle(t, fx.msg("user-1", "/settings threshold 0.9", false))

	st, err := fx.states.Get(context.Background(), "chat-a")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.Threshold != 0.9 {
		t.Errorf("threshold = %v, want 0.9", st.Threshold)
	}

	// 0.59 heat no longer clears the raised bar.
	fx.now = fx.now.Add(time.Minute)
	fx.handle(t, fx.msg("user-2", "how do we deploy this?", false))
	if got := fx.responder.Dispatches(); len(got) != 1 {
		t.Errorf("raised threshold still produced a proactive dispatch")
	}
}

func TestOptOutExcludesUserFromManualSummary(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	for i := 0; i < 4; i++ {
		user := "user-a"
		if i%2 == 1 {
			user = "user-b"
		}
		_ = fx.hist.Append(context.Background(), model.StoredMessage{
			ChatID:    "chat-a",
			UserID:    user,
			Timestamp: fx.now.Add(time.Duration(i-10) * time.Minute),
			Text:      fmt.Sprintf("message %d", i),
		})
	}

	optout := fx.msg("user-a", "/optout", false)
	fx.handle(t, optout)
	fx.handle(t, fx.msg("user-a", "/summary weekly", false))

	var jobDispatch *Dispatch
	for _, d := range fx.responder.Dispatches() {
		if d.Job != nil {
			d := d
			jobDispatch = &d
		}
	}
	if jobDispatch == nil {
		t.Fatal("no summary dispatch found")
	}
	if jobDispatch.Job.Period != model.PeriodWeekly || !jobDispatch.Job.Manual {
		t.Errorf("job = %+v, want manual weekly", jobDispatch.Job)
	}
	if len(jobDispatch.Job.ExcludedUsers) != 1 || jobDispatch.Job.ExcludedUsers[0] != "user-a" {
		t.Errorf("excluded = %v, want [user-a]", jobDispatch.Job.ExcludedUsers)
	}
	for _, m := range jobDispatch.Window.Messages {
		if m.UserID == "user-a" {
			t.Fatal("opted-out user's message leaked into the summary window")
		}
	}
	if len(jobDispatch.Window.Messages) != 2 {
		t.Errorf("summary window has %d messages, want 2", len(jobDispatch.Window.Messages))
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.handle(t, fx.msg("user-1", "/settings mode active", false))
	fx.handle(t, fx.msg("user-1", "/settings threshold 0.2", false))
	fx.handle(t, fx.msg("user-1", "/reset", false))

	st, _ := fx.states.Get(context.Background(), "chat-a")
	if st.Mode != model.ModeNormal || st.Threshold != 0.5 {
		t.Errorf("after reset mode=%q threshold=%v, want normal/0.5", st.Mode, st.Threshold)
	}
}

func TestPeriodicSummaryEmittedOnceAcrossTicks(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	st := model.NewConversationState("chat-a", 0.5)
	st.LastWeeklySummaryAt = monday
	st.LastMonthlySummaryAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := fx.states.Put(context.Background(), st); err != nil {
		t.Fatalf("seed state: %v", err)
	}
	_ = fx.hist.Append(context.Background(), model.StoredMessage{
		ChatID: "chat-a", UserID: "user-1", Timestamp: monday.Add(48 * time.Hour), Text: "midweek chatter",
	})

	fx.now = monday.AddDate(0, 0, 7).Add(time.Hour)
	if err := fx.eng.EvaluateSummaries(context.Background()); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	fx.barrier(t)

	dispatches := fx.responder.Dispatches()
	if len(dispatches) != 1 {
		t.Fatalf("got %d dispatches, want 1", len(dispatches))
	}
	d := dispatches[0]
	if d.Job == nil || d.Job.Period != model.PeriodWeekly || d.Job.Manual {
		t.Fatalf("dispatch = %+v, want periodic weekly job", d)
	}
	if !d.Job.WindowEnd.Equal(monday.AddDate(0, 0, 7)) {
		t.Errorf("window end = %v, want the boundary", d.Job.WindowEnd)
	}
	if len(d.Window.Messages) != 1 {
		t.Errorf("summary window has %d messages, want 1", len(d.Window.Messages))
	}

	// A second tick in the same period emits nothing new.
	if err := fx.eng.EvaluateSummaries(context.Background()); err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	fx.barrier(t)

	if got := fx.responder.Dispatches(); len(got) != 1 {
		t.Errorf("second tick produced %d extra dispatches", len(got)-1)
	}
	snap, _ := fx.states.Get(context.Background(), "chat-a")
	if !snap.LastWeeklySummaryAt.Equal(monday.AddDate(0, 0, 7)) {
		t.Errorf("weekly cursor = %v, want the boundary", snap.LastWeeklySummaryAt)
	}
}

func TestMemberJoinedDispatchesWelcome(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.handle(t, fx.msg("user-1", "lol nice", false))

	if err := fx.eng.HandleMemberJoined(context.Background(), "chat-a", "user-9"); err != nil {
		t.Fatalf("member joined: %v", err)
	}

	got := fx.responder.Dispatches()
	if len(got) != 1 {
		t.Fatalf("got %d dispatches, want 1", len(got))
	}
	if got[0].Window.Trigger != model.TriggerWelcome || got[0].JoinedUserID != "user-9" {
		t.Errorf("welcome dispatch = %+v", got[0])
	}
	if len(got[0].Window.Messages) != 1 {
		t.Errorf("welcome window has %d messages, want recent context", len(got[0].Window.Messages))
	}
}

func TestStoreOutageRejectsEvent(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.eng.opts.States = failingStates{}

	err := fx.eng.HandleEvent(context.Background(), fx.msg("user-1", "how do we deploy this?", false))
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
	if got := fx.responder.Dispatches(); len(got) != 0 {
		t.Errorf("outage produced %d dispatches, want 0", len(got))
	}
}

func TestNackedEventRedeliveredAfterRecovery(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.eng.opts.States = failingStates{}

	msg := fx.msg("user-1", "hey, you there?", true)
	if err := fx.eng.HandleEvent(context.Background(), msg); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("first delivery err = %v, want ErrStoreUnavailable", err)
	}

	// The store recovers and the platform redelivers the same event id.
	// The NACKed delivery must not have consumed the id.
	fx.eng.opts.States = fx.states
	if err := fx.eng.HandleEvent(context.Background(), msg); err != nil {
		t.Fatalf("redelivery after recovery: %v", err)
	}

	got := fx.responder.Dispatches()
	if len(got) != 1 {
		t.Fatalf("got %d dispatches, want 1", len(got))
	}
	if got[0].Decision.RespondReason != model.RespondMention {
		t.Errorf("reason = %q, want mention", got[0].Decision.RespondReason)
	}

	// A replay after the successful decision is still dropped.
	if err := fx.eng.HandleEvent(context.Background(), msg); !errors.Is(err, ErrDuplicateEvent) {
		t.Errorf("replay err = %v, want ErrDuplicateEvent", err)
	}
	if got := fx.responder.Dispatches(); len(got) != 1 {
		t.Errorf("replay produced %d extra dispatches", len(got)-1)
	}
}

func TestSnapshotReflectsLaneState(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.handle(t, fx.msg("user-1", "hey, you there?", true))

	snap, err := fx.eng.Snapshot(context.Background(), "chat-a")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.Sticky(fx.now) {
		t.Error("snapshot should show an open sticky window after a mention")
	}
}

type failingStates struct{}

func (failingStates) Get(ctx context.Context, chatID string) (*model.ConversationState, error) {
	return nil, state.ErrUnavailable
}

func (failingStates) Put(ctx context.Context, st *model.ConversationState) error {
	return state.ErrUnavailable
}

func (failingStates) ChatIDs(ctx context.Context) ([]string, error) {
	return nil, state.ErrUnavailable
}

// barrier waits for everything queued on chat-a's lane to finish. Lane
// tasks for one key run in submission order, so a snapshot submitted now
// completes only after all earlier work.
func (fx *fixture) barrier(t *testing.T) {
	t.Helper()
	if _, err := fx.eng.Snapshot(context.Background(), "chat-a"); err != nil {
		t.Fatalf("barrier snapshot: %v", err)
	}
}
