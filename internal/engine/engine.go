// Package engine wires dedup, classification, heat scoring, the engagement
// state machine, and context assembly into the per-chat processing
// pipeline. All per-chat state mutation happens inside that chat's lane.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/toran-bot/engage/internal/assemble"
	"github.com/toran-bot/engage/internal/command"
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
	"github.com/toran-bot/engage/pkg/metrics"
)

// Options holds the engine's collaborators and tunables.
type Options struct {
	Dedup      dedup.Deduplicator
	Classifier *intent.Classifier
	Scorer     *heat.Scorer
	Machine    *engage.Machine
	States     state.Store
	History    history.Store
	Assembler  *assemble.Assembler
	Scheduler  *summary.Scheduler
	Lanes      *lane.Manager
	Responder  Responder
	Logger     *logger.Logger

	// BotUserID filters out the bot's own echoed messages.
	BotUserID string

	// DefaultThreshold seeds the proactive threshold of new chats.
	DefaultThreshold float64

	// Now overrides the clock. Test use only.
	Now func() time.Time
}

// Engine is the message processing pipeline.
type Engine struct {
	opts Options
	log  *logger.Logger
	now  func() time.Time
}

// New creates an engine.
func New(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{opts: opts, log: opts.Logger, now: now}
}

// HandleEvent runs one inbound message through the pipeline and returns
// once the chat's lane has processed it. Returns ErrDuplicateEvent for
// replays and ErrStoreUnavailable when no decision could be made.
func (e *Engine) HandleEvent(ctx context.Context, msg model.InboundMessage) error {
	if msg.UserID != "" && msg.UserID == e.opts.BotUserID {
		metrics.EventsTotal.WithLabelValues("self").Inc()
		return nil
	}

	if !e.opts.Dedup.Accept(ctx, msg.EventID, msg.ChatID) {
		metrics.EventsTotal.WithLabelValues("duplicate").Inc()
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, msg.EventID)
	}

	err := e.runInLane(ctx, msg.ChatID, func(taskCtx context.Context) error {
		return e.process(taskCtx, msg)
	})
	if errors.Is(err, ErrStoreUnavailable) {
		// The caller NACKs and the platform redelivers; forget the id so
		// the redelivery is not dropped as a replay.
		e.opts.Dedup.Release(ctx, msg.EventID)
	}
	return err
}

// process runs inside the chat's lane.
func (e *Engine) process(ctx context.Context, msg model.InboundMessage) error {
	st, err := e.loadState(ctx, msg.ChatID)
	if err != nil {
		return err
	}

	if msg.IsCommand || command.Is(msg.Text) {
		metrics.EventsTotal.WithLabelValues("command").Inc()
		return e.processCommand(ctx, st, msg)
	}

	res := e.opts.Classifier.Classify(ctx, msg)
	score, ambient := e.opts.Scorer.Score(msg, res, st.AmbientHeat)
	st.AmbientHeat = ambient

	decision := e.opts.Machine.Decide(st, msg, res, score, e.now())

	if err := e.opts.History.Append(ctx, model.StoredMessage{
		ChatID:    msg.ChatID,
		UserID:    msg.UserID,
		Timestamp: msg.Timestamp,
		Text:      msg.Text,
		ImageRefs: msg.ImageRefs,
	}); err != nil {
		// History loss degrades context quality but must not swallow the
		// decision itself.
		e.log.Warn("failed to append history",
			zap.String("chat_id", msg.ChatID), zap.Error(err))
	}

	if err := e.saveState(ctx, st); err != nil {
		return err
	}

	metrics.EventsTotal.WithLabelValues("processed").Inc()
	metrics.RecordDecision(string(decision.Kind), decision.Reason())
	e.log.Debug("engagement decided",
		zap.String("chat_id", msg.ChatID),
		zap.String("kind", string(decision.Kind)),
		zap.String("reason", decision.Reason()),
		zap.Float64("heat", decision.HeatScore),
		zap.String("intent", string(res.Label)),
	)

	if decision.Kind != model.DecisionRespond {
		return nil
	}

	window, err := e.opts.Assembler.Recent(ctx, msg.ChatID, decision.Trigger())
	if err != nil {
		return e.wrapStoreErr(err)
	}
	return e.dispatch(ctx, Dispatch{
		Window:   window,
		Decision: &decision,
		Message:  &msg,
	})
}

// processCommand applies a slash command inside the chat's lane. Parse
// failures turn into a usage reply rather than an error, so a typo never
// NACKs the event.
func (e *Engine) processCommand(ctx context.Context, st *model.ConversationState, msg model.InboundMessage) error {
	cmd, err := command.Parse(msg.Text)
	if err != nil {
		return e.reply(ctx, st.ChatID, fmt.Sprintf("%s\n\n%s", err.Error(), command.HelpText))
	}

	switch cmd.Kind {
	case command.KindHelp:
		return e.reply(ctx, st.ChatID, command.HelpText)

	case command.KindSummary:
		job := e.opts.Scheduler.Manual(st, cmd.Period, e.now())
		return e.emitSummary(ctx, job, "manual")

	case command.KindThreshold:
		st.Threshold = cmd.Threshold
		if err := e.saveState(ctx, st); err != nil {
			return err
		}
		return e.reply(ctx, st.ChatID, fmt.Sprintf("Proactive reply threshold set to %.2f.", cmd.Threshold))

	case command.KindMode:
		st.Mode = cmd.Mode
		if err := e.saveState(ctx, st); err != nil {
			return err
		}
		return e.reply(ctx, st.ChatID, fmt.Sprintf("Engagement mode set to %s.", cmd.Mode))

	case command.KindOptOut:
		if st.OptedOutUsers == nil {
			st.OptedOutUsers = make(map[string]bool)
		}
		st.OptedOutUsers[msg.UserID] = true
		if err := e.saveState(ctx, st); err != nil {
			return err
		}
		return e.reply(ctx, st.ChatID, "Your messages are now excluded from summaries.")

	case command.KindReset:
		fresh := model.NewConversationState(st.ChatID, e.opts.DefaultThreshold)
		// Summary cursors survive a reset so past windows are not re-emitted.
		fresh.LastWeeklySummaryAt = st.LastWeeklySummaryAt
		fresh.LastMonthlySummaryAt = st.LastMonthlySummaryAt
		if err := e.saveState(ctx, fresh); err != nil {
			return err
		}
		return e.reply(ctx, st.ChatID, "Chat settings restored to defaults.")

	default:
		return e.reply(ctx, st.ChatID, command.HelpText)
	}
}

// EvaluateSummaries checks every known chat for crossed summary boundaries
// and emits the due jobs. Each chat is evaluated inside its own lane.
func (e *Engine) EvaluateSummaries(ctx context.Context) error {
	chatIDs, err := e.opts.States.ChatIDs(ctx)
	if err != nil {
		return e.wrapStoreErr(err)
	}

	for _, chatID := range chatIDs {
		chatID := chatID
		err := e.opts.Lanes.Submit(ctx, chatID, func(taskCtx context.Context) {
			if err := e.evaluateChatSummaries(taskCtx, chatID); err != nil {
				e.log.Warn("summary evaluation failed",
					zap.String("chat_id", chatID), zap.Error(err))
			}
		})
		if err != nil {
			e.log.Warn("failed to schedule summary evaluation",
				zap.String("chat_id", chatID), zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) evaluateChatSummaries(ctx context.Context, chatID string) error {
	st, err := e.loadState(ctx, chatID)
	if err != nil {
		return err
	}

	jobs := e.opts.Scheduler.Due(st, e.now())
	if err := e.saveState(ctx, st); err != nil {
		return err
	}

	for _, job := range jobs {
		if err := e.emitSummary(ctx, job, "periodic"); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) emitSummary(ctx context.Context, job model.SummaryJob, trigger string) error {
	window, err := e.opts.Assembler.SummaryWindow(ctx, job)
	if err != nil {
		return e.wrapStoreErr(err)
	}

	metrics.SummaryJobsTotal.WithLabelValues(string(job.Period), trigger).Inc()
	metrics.DispatchesTotal.WithLabelValues(string(model.TriggerSummary)).Inc()
	e.log.Info("summary job emitted",
		zap.String("chat_id", job.ChatID),
		zap.String("period", string(job.Period)),
		zap.String("trigger", trigger),
		zap.Time("window_start", job.WindowStart),
		zap.Time("window_end", job.WindowEnd),
	)
	return e.opts.Responder.Dispatch(ctx, Dispatch{Window: window, Job: &job})
}

// HandleMemberJoined greets a new chat member with recent context.
func (e *Engine) HandleMemberJoined(ctx context.Context, chatID, userID string) error {
	return e.runInLane(ctx, chatID, func(taskCtx context.Context) error {
		st, err := e.loadState(taskCtx, chatID)
		if err != nil {
			return err
		}
		if err := e.saveState(taskCtx, st); err != nil {
			return err
		}

		window, err := e.opts.Assembler.Recent(taskCtx, chatID, model.TriggerWelcome)
		if err != nil {
			return e.wrapStoreErr(err)
		}
		return e.dispatch(taskCtx, Dispatch{Window: window, JoinedUserID: userID})
	})
}

// Snapshot returns a copy of a chat's state. Diagnostics use.
func (e *Engine) Snapshot(ctx context.Context, chatID string) (model.ConversationState, error) {
	var snap model.ConversationState
	err := e.runInLane(ctx, chatID, func(taskCtx context.Context) error {
		st, err := e.loadState(taskCtx, chatID)
		if err != nil {
			return err
		}
		snap = st.Snapshot()
		return nil
	})
	return snap, err
}

// Lanes returns the number of live processing lanes. Diagnostics use.
func (e *Engine) Lanes() int {
	return e.opts.Lanes.Len()
}

func (e *Engine) reply(ctx context.Context, chatID, text string) error {
	return e.dispatch(ctx, Dispatch{
		Window: model.ContextWindow{ChatID: chatID, Trigger: model.TriggerCommand},
		Text:   text,
	})
}

func (e *Engine) dispatch(ctx context.Context, d Dispatch) error {
	metrics.DispatchesTotal.WithLabelValues(string(d.Window.Trigger)).Inc()
	if err := e.opts.Responder.Dispatch(ctx, d); err != nil {
		return fmt.Errorf("failed to dispatch: %w", err)
	}
	return nil
}

// runInLane submits fn to the chat's lane and waits for it to complete.
func (e *Engine) runInLane(ctx context.Context, chatID string, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	err := e.opts.Lanes.Submit(ctx, chatID, func(taskCtx context.Context) {
		done <- fn(taskCtx)
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue for chat %s: %w", chatID, err)
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loadState returns the chat's state, lazily creating defaults for chats
// never seen before.
func (e *Engine) loadState(ctx context.Context, chatID string) (*model.ConversationState, error) {
	st, err := e.opts.States.Get(ctx, chatID)
	if errors.Is(err, state.ErrNotFound) {
		return model.NewConversationState(chatID, e.opts.DefaultThreshold), nil
	}
	if err != nil {
		metrics.StoreFailuresTotal.Inc()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return st, nil
}

func (e *Engine) saveState(ctx context.Context, st *model.ConversationState) error {
	if err := e.opts.States.Put(ctx, st); err != nil {
		metrics.StoreFailuresTotal.Inc()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (e *Engine) wrapStoreErr(err error) error {
	if errors.Is(err, history.ErrUnavailable) || errors.Is(err, state.ErrUnavailable) {
		metrics.StoreFailuresTotal.Inc()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
