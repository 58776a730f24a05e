package engine

import (
	"context"
	"fmt"

	"github.com/toran-bot/engage/internal/command"
	"github.com/toran-bot/engage/internal/model"
)

// SetThreshold sets a chat's proactive reply threshold.
func (e *Engine) SetThreshold(ctx context.Context, chatID string, threshold float64) error {
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: threshold must be in [0, 1], got %v", command.ErrInvalidArgument, threshold)
	}
	return e.runInLane(ctx, chatID, func(taskCtx context.Context) error {
		st, err := e.loadState(taskCtx, chatID)
		if err != nil {
			return err
		}
		st.Threshold = threshold
		return e.saveState(taskCtx, st)
	})
}

// SetMode sets a chat's engagement mode.
func (e *Engine) SetMode(ctx context.Context, chatID string, mode model.Mode) error {
	if !model.ValidMode(mode) {
		return fmt.Errorf("%w: unknown mode %q", command.ErrInvalidArgument, mode)
	}
	return e.runInLane(ctx, chatID, func(taskCtx context.Context) error {
		st, err := e.loadState(taskCtx, chatID)
		if err != nil {
			return err
		}
		st.Mode = mode
		return e.saveState(taskCtx, st)
	})
}

// OptOut sets or clears a user's summary opt-out in a chat.
func (e *Engine) OptOut(ctx context.Context, chatID, userID string, optedOut bool) error {
	if userID == "" {
		return fmt.Errorf("%w: user id required", command.ErrInvalidArgument)
	}
	return e.runInLane(ctx, chatID, func(taskCtx context.Context) error {
		st, err := e.loadState(taskCtx, chatID)
		if err != nil {
			return err
		}
		if st.OptedOutUsers == nil {
			st.OptedOutUsers = make(map[string]bool)
		}
		if optedOut {
			st.OptedOutUsers[userID] = true
		} else {
			delete(st.OptedOutUsers, userID)
		}
		return e.saveState(taskCtx, st)
	})
}

// ResetChat restores a chat's defaults. Summary cursors are preserved.
func (e *Engine) ResetChat(ctx context.Context, chatID string) error {
	return e.runInLane(ctx, chatID, func(taskCtx context.Context) error {
		st, err := e.loadState(taskCtx, chatID)
		if err != nil {
			return err
		}
		fresh := model.NewConversationState(chatID, e.opts.DefaultThreshold)
		fresh.LastWeeklySummaryAt = st.LastWeeklySummaryAt
		fresh.LastMonthlySummaryAt = st.LastMonthlySummaryAt
		return e.saveState(taskCtx, fresh)
	})
}

// ManualSummary emits an on-demand summary job for a chat.
func (e *Engine) ManualSummary(ctx context.Context, chatID string, period model.Period) error {
	if !model.ValidPeriod(period) {
		return fmt.Errorf("%w: unknown period %q", command.ErrInvalidArgument, period)
	}
	return e.runInLane(ctx, chatID, func(taskCtx context.Context) error {
		st, err := e.loadState(taskCtx, chatID)
		if err != nil {
			return err
		}
		job := e.opts.Scheduler.Manual(st, period, e.now())
		return e.emitSummary(taskCtx, job, "manual")
	})
}
